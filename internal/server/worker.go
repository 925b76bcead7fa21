package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/aegis-agents/yieldrisk/internal/analysis"
	"github.com/aegis-agents/yieldrisk/internal/escrow"
	"github.com/aegis-agents/yieldrisk/internal/events"
	"github.com/aegis-agents/yieldrisk/internal/ratelimit"
	"github.com/aegis-agents/yieldrisk/internal/storage"
)

// Analyzer produces a risk analysis for a protocol description.
type Analyzer interface {
	AnalyzeProtocol(ctx context.Context, description string) (*analysis.RiskAnalysis, error)
}

// Worker consumes ServiceRequested events, runs the risk analysis, stores
// the report, and commits its hash on the escrow ledger as the agent owner.
type Worker struct {
	db       *storage.DB
	core     *escrow.Service
	analyzer Analyzer
	owner    common.Address
	feed     *events.Feed
	pace     *ratelimit.Limiter
}

// NewWorker creates a Worker committing completions as owner.
func NewWorker(db *storage.DB, core *escrow.Service, analyzer Analyzer, owner common.Address, feed *events.Feed) *Worker {
	return &Worker{
		db:       db,
		core:     core,
		analyzer: analyzer,
		owner:    owner,
		feed:     feed,
		// Model quota guard: at most 30 analyses per minute.
		pace: ratelimit.New(30, time.Minute),
	}
}

// Run processes requests until ctx is cancelled. Call in a goroutine.
func (w *Worker) Run(ctx context.Context) {
	ch, cancel := w.feed.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			req, isRequest := ev.(escrow.ServiceRequested)
			if !isRequest {
				continue
			}
			if err := w.process(ctx, req); err != nil {
				log.Printf("[worker] request %d: %v", req.RequestID, err)
			}
		}
	}
}

// process runs one analysis end to end.
func (w *Worker) process(ctx context.Context, req escrow.ServiceRequested) error {
	for !w.pace.Allow() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	proto, err := w.db.GetProtocol(req.ProtocolHash.Hex())
	if err != nil {
		return err
	}

	result, err := w.analyzer.AnalyzeProtocol(ctx, proto.Description)
	if err != nil {
		return err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	reportHash := crypto.Keccak256Hash(body)

	rep := &storage.Report{
		ID:           uuid.New().String(),
		RequestID:    req.RequestID,
		ProtocolHash: req.ProtocolHash.Hex(),
		ReportHash:   reportHash.Hex(),
		Body:         string(body),
		CreatedAt:    time.Now().Unix(),
	}
	if err := w.db.CreateReport(rep); err != nil {
		return err
	}

	if err := w.core.CompleteService(w.owner, req.RequestID, reportHash); err != nil {
		return err
	}
	log.Printf("[worker] completed request %d: %s risk %d (%s)",
		req.RequestID, result.ProtocolName, result.OverallRiskScore, result.RiskLevel)
	return nil
}
