package reputation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aegis-agents/yieldrisk/internal/events"
	"github.com/aegis-agents/yieldrisk/internal/registry"
)

// Feedback submission errors.
var (
	ErrSelfFeedback       = errors.New("self-feedback not allowed")
	ErrScoreOutOfRange    = errors.New("feedback score out of range")
	ErrIndexLimitExceeded = errors.New("feedback index limit exceeded")
)

// MaxScore is the upper bound of the 0-100 feedback scale.
const MaxScore = 100

// Entry is one accepted feedback submission. Entries are append-only.
type Entry struct {
	AgentID      uint64         `json:"agent_id"`
	Client       common.Address `json:"client"`
	ClientIndex  uint64         `json:"client_index"` // position among this client's submissions, from 1
	Score        uint8          `json:"score"`
	Tag1         common.Hash    `json:"tag1"`
	Tag2         common.Hash    `json:"tag2"`
	FeedbackURI  string         `json:"feedback_uri"`
	FeedbackHash common.Hash    `json:"feedback_hash"`
	SubmittedAt  int64          `json:"submitted_at"`
}

// NewFeedback is published on every accepted submission.
type NewFeedback struct {
	AgentID     uint64
	Client      common.Address
	ClientIndex uint64
	Score       uint8
	Tag1        common.Hash
	Tag2        common.Hash
}

// Summary is the aggregate reputation of one agent.
type Summary struct {
	Count        uint64 `json:"count"`
	AverageScore uint8  `json:"average_score"`
}

// Registry is the append-only reputation ledger. Every write is gated by a
// verified FeedbackAuth token and the self-feedback check.
type Registry struct {
	mu       sync.Mutex
	identity registry.OwnershipLookup
	verifier *AuthVerifier
	feed     *events.Feed

	entries map[uint64][]Entry                    // agentID -> entries
	indices map[uint64]map[common.Address]uint64  // agentID -> client -> submissions used
	now     func() int64
}

// NewRegistry creates a Registry gated by the given verifier. feed may be nil.
func NewRegistry(identity registry.OwnershipLookup, verifier *AuthVerifier, feed *events.Feed) *Registry {
	return &Registry{
		identity: identity,
		verifier: verifier,
		feed:     feed,
		entries:  make(map[uint64][]Entry),
		indices:  make(map[uint64]map[common.Address]uint64),
		now:      func() int64 { return time.Now().Unix() },
	}
}

// GiveFeedback validates and appends a feedback entry from caller for the
// given agent. authBlob is the owner-signed FeedbackAuth token.
func (r *Registry) GiveFeedback(caller common.Address, agentID uint64, score uint8, tag1, tag2 common.Hash, feedbackURI string, feedbackHash common.Hash, authBlob []byte) (Entry, error) {
	if score > MaxScore {
		return Entry{}, fmt.Errorf("score %d: %w", score, ErrScoreOutOfRange)
	}

	owner, err := r.identity.OwnerOf(agentID)
	if err != nil {
		return Entry{}, err
	}
	if caller == owner {
		return Entry{}, fmt.Errorf("agent %d: %w", agentID, ErrSelfFeedback)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	auth, err := r.verifier.Verify(authBlob, agentID, caller, now)
	if err != nil {
		return Entry{}, err
	}

	used := r.indices[agentID][caller]
	if used >= auth.IndexLimit {
		return Entry{}, fmt.Errorf("client %s used %d of %d: %w", caller, used, auth.IndexLimit, ErrIndexLimitExceeded)
	}

	entry := Entry{
		AgentID:      agentID,
		Client:       caller,
		ClientIndex:  used + 1,
		Score:        score,
		Tag1:         tag1,
		Tag2:         tag2,
		FeedbackURI:  feedbackURI,
		FeedbackHash: feedbackHash,
		SubmittedAt:  now,
	}
	r.entries[agentID] = append(r.entries[agentID], entry)
	if r.indices[agentID] == nil {
		r.indices[agentID] = make(map[common.Address]uint64)
	}
	r.indices[agentID][caller] = used + 1

	if r.feed != nil {
		r.feed.Publish(NewFeedback{
			AgentID:     agentID,
			Client:      caller,
			ClientIndex: entry.ClientIndex,
			Score:       score,
			Tag1:        tag1,
			Tag2:        tag2,
		})
	}
	return entry, nil
}

// Summary returns the entry count and truncated average score for an agent.
// An agent with no feedback has an average of zero.
func (r *Registry) Summary(agentID uint64) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries[agentID]
	if len(entries) == 0 {
		return Summary{}
	}
	var total uint64
	for _, e := range entries {
		total += uint64(e.Score)
	}
	return Summary{
		Count:        uint64(len(entries)),
		AverageScore: uint8(total / uint64(len(entries))),
	}
}

// ClientScores returns every score the given client has recorded for the
// agent, in submission order. The escrow core uses this to verify that a
// refund claim cites a score the client actually submitted.
func (r *Registry) ClientScores(agentID uint64, client common.Address) []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var scores []uint8
	for _, e := range r.entries[agentID] {
		if e.Client == client {
			scores = append(scores, e.Score)
		}
	}
	return scores
}

// Entries returns a copy of all feedback entries for an agent.
func (r *Registry) Entries(agentID uint64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries[agentID]))
	copy(out, r.entries[agentID])
	return out
}
