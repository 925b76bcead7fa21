package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to a SQLite database.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) a SQLite database at path and runs schema migrations.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Enable foreign keys.
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS protocols (
    hash TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    submitted_by TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    request_id INTEGER NOT NULL UNIQUE,
    protocol_hash TEXT NOT NULL,
    report_hash TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (protocol_hash) REFERENCES protocols(hash)
);

CREATE INDEX IF NOT EXISTS idx_reports_protocol ON reports(protocol_hash);
CREATE INDEX IF NOT EXISTS idx_protocols_submitter ON protocols(submitted_by);`
	_, err := d.db.Exec(schema)
	return err
}

// --- Protocol CRUD ---

// CreateProtocol inserts a new protocol record. Re-submitting an identical
// description is a no-op: the hash is the identity.
func (d *DB) CreateProtocol(p *Protocol) error {
	_, err := d.db.Exec(
		`INSERT INTO protocols (hash, description, submitted_by, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		p.Hash, p.Description, p.SubmittedBy, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create protocol: %w", err)
	}
	return nil
}

// GetProtocol retrieves a protocol by its hash.
func (d *DB) GetProtocol(hash string) (*Protocol, error) {
	p := &Protocol{}
	err := d.db.QueryRow(
		`SELECT hash, description, submitted_by, created_at
		 FROM protocols WHERE hash = ?`, hash,
	).Scan(&p.Hash, &p.Description, &p.SubmittedBy, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get protocol: %w", err)
	}
	return p, nil
}

// ListProtocols returns all protocols, newest first.
func (d *DB) ListProtocols() ([]Protocol, error) {
	rows, err := d.db.Query(
		`SELECT hash, description, submitted_by, created_at
		 FROM protocols ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list protocols: %w", err)
	}
	defer rows.Close()

	var protocols []Protocol
	for rows.Next() {
		var p Protocol
		if err := rows.Scan(&p.Hash, &p.Description, &p.SubmittedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan protocol: %w", err)
		}
		protocols = append(protocols, p)
	}
	return protocols, rows.Err()
}

// --- Report CRUD ---

// CreateReport inserts a new report record. The UNIQUE constraint on
// request_id rejects a second report for the same request.
func (d *DB) CreateReport(r *Report) error {
	_, err := d.db.Exec(
		`INSERT INTO reports (id, request_id, protocol_hash, report_hash, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.ProtocolHash, r.ReportHash, r.Body, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by its ID.
func (d *DB) GetReport(id string) (*Report, error) {
	r := &Report{}
	err := d.db.QueryRow(
		`SELECT id, request_id, protocol_hash, report_hash, body, created_at
		 FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.RequestID, &r.ProtocolHash, &r.ReportHash, &r.Body, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// GetReportByRequest retrieves the report delivered for a service request.
func (d *DB) GetReportByRequest(requestID uint64) (*Report, error) {
	r := &Report{}
	err := d.db.QueryRow(
		`SELECT id, request_id, protocol_hash, report_hash, body, created_at
		 FROM reports WHERE request_id = ?`, requestID,
	).Scan(&r.ID, &r.RequestID, &r.ProtocolHash, &r.ReportHash, &r.Body, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get report by request: %w", err)
	}
	return r, nil
}

// ListReports returns all reports without their bodies, newest first.
func (d *DB) ListReports() ([]Report, error) {
	rows, err := d.db.Query(
		`SELECT id, request_id, protocol_hash, report_hash, created_at
		 FROM reports ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.RequestID, &r.ProtocolHash, &r.ReportHash, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// CountReports returns the number of stored reports.
func (d *DB) CountReports() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// AverageRiskScore returns the mean overallRiskScore across all stored
// reports, and zero when none exist.
func (d *DB) AverageRiskScore() (float64, error) {
	var avg sql.NullFloat64
	err := d.db.QueryRow(
		`SELECT AVG(json_extract(body, '$.overallRiskScore')) FROM reports`,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average risk score: %w", err)
	}
	return avg.Float64, nil
}
