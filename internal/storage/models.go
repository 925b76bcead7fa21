// internal/storage/models.go
package storage

// Protocol is a client-submitted protocol description, keyed by its
// keccak256 hash. The escrow ledger carries only the hash; the full text
// lives here so the analysis worker can retrieve it.
type Protocol struct {
	Hash        string `json:"hash"` // 0x-prefixed keccak256 of Description
	Description string `json:"description"`
	SubmittedBy string `json:"submitted_by"` // client address
	CreatedAt   int64  `json:"created_at"`
}

// Report is a completed risk analysis. One report per service request;
// ReportHash is the keccak256 of Body and is the value committed on the
// escrow ledger at completion.
type Report struct {
	ID           string `json:"id"` // uuid
	RequestID    uint64 `json:"request_id"`
	ProtocolHash string `json:"protocol_hash"`
	ReportHash   string `json:"report_hash"`
	Body         string `json:"body"` // analysis JSON
	CreatedAt    int64  `json:"created_at"`
}
