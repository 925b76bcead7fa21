package reputation

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// repFixture wires a Registry around an authFixture with a frozen clock.
type repFixture struct {
	*authFixture
	reg *Registry
}

func newRepFixture(t *testing.T) *repFixture {
	t.Helper()
	f := newAuthFixture(t)
	reg := NewRegistry(f.identity, f.verifier, nil)
	reg.now = func() int64 { return f.now }
	return &repFixture{authFixture: f, reg: reg}
}

func (f *repFixture) give(t *testing.T, client common.Address, score uint8, blob []byte) (Entry, error) {
	t.Helper()
	tag1 := crypto.Keccak256Hash([]byte("Accuracy"))
	tag2 := crypto.Keccak256Hash([]byte("Speed"))
	return f.reg.GiveFeedback(client, f.agentID, score, tag1, tag2, "ipfs://QmFeedback", crypto.Keccak256Hash([]byte("evidence")), blob)
}

func TestGiveFeedbackAndSummary(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, func(a *FeedbackAuth) { a.IndexLimit = 3 })

	entry, err := f.give(t, f.client, 95, blob)
	if err != nil {
		t.Fatalf("GiveFeedback: %v", err)
	}
	if entry.ClientIndex != 1 {
		t.Errorf("ClientIndex = %d, want 1", entry.ClientIndex)
	}

	s := f.reg.Summary(f.agentID)
	if s.Count != 1 {
		t.Errorf("Count = %d, want 1", s.Count)
	}
	if s.AverageScore != 95 {
		t.Errorf("AverageScore = %d, want 95", s.AverageScore)
	}
}

func TestSummaryTruncatesAverage(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, func(a *FeedbackAuth) { a.IndexLimit = 3 })

	for _, score := range []uint8{20, 21} {
		if _, err := f.give(t, f.client, score, blob); err != nil {
			t.Fatalf("GiveFeedback(%d): %v", score, err)
		}
	}

	// (20 + 21) / 2 truncates to 20.
	if s := f.reg.Summary(f.agentID); s.AverageScore != 20 {
		t.Errorf("AverageScore = %d, want 20", s.AverageScore)
	}
}

func TestSummaryEmptyAgent(t *testing.T) {
	f := newRepFixture(t)

	s := f.reg.Summary(f.agentID)
	if s.Count != 0 || s.AverageScore != 0 {
		t.Errorf("Summary = %+v, want zero value", s)
	}
}

func TestSelfFeedbackRejected(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, func(a *FeedbackAuth) { a.ClientAddress = f.ownerAddr })

	_, err := f.give(t, f.ownerAddr, 100, blob)
	if !errors.Is(err, ErrSelfFeedback) {
		t.Errorf("GiveFeedback by owner error = %v, want ErrSelfFeedback", err)
	}
	if s := f.reg.Summary(f.agentID); s.Count != 0 {
		t.Errorf("Count after rejected self-feedback = %d, want 0", s.Count)
	}
}

func TestIndexLimitEnforced(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, nil) // IndexLimit = 1

	if _, err := f.give(t, f.client, 80, blob); err != nil {
		t.Fatalf("first GiveFeedback: %v", err)
	}

	_, err := f.give(t, f.client, 70, blob)
	if !errors.Is(err, ErrIndexLimitExceeded) {
		t.Errorf("second GiveFeedback error = %v, want ErrIndexLimitExceeded", err)
	}
	if s := f.reg.Summary(f.agentID); s.Count != 1 {
		t.Errorf("Count = %d, want 1", s.Count)
	}
}

func TestScoreOutOfRange(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, nil)

	_, err := f.give(t, f.client, 101, blob)
	if !errors.Is(err, ErrScoreOutOfRange) {
		t.Errorf("GiveFeedback(101) error = %v, want ErrScoreOutOfRange", err)
	}
}

func TestExpiredAuthRejectedAtSubmission(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, nil)

	f.now += 86400 + 1 // past token expiry

	_, err := f.give(t, f.client, 50, blob)
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("GiveFeedback error = %v, want ErrAuthExpired", err)
	}
}

func TestClientScores(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, func(a *FeedbackAuth) { a.IndexLimit = 5 })

	for _, score := range []uint8{20, 90} {
		if _, err := f.give(t, f.client, score, blob); err != nil {
			t.Fatalf("GiveFeedback(%d): %v", score, err)
		}
	}

	scores := f.reg.ClientScores(f.agentID, f.client)
	if len(scores) != 2 || scores[0] != 20 || scores[1] != 90 {
		t.Errorf("ClientScores = %v, want [20 90]", scores)
	}

	if got := f.reg.ClientScores(f.agentID, f.ownerAddr); len(got) != 0 {
		t.Errorf("ClientScores for non-submitter = %v, want empty", got)
	}
}

func TestEntriesCopied(t *testing.T) {
	f := newRepFixture(t)
	blob := f.mintAuth(t, nil)

	if _, err := f.give(t, f.client, 42, blob); err != nil {
		t.Fatalf("GiveFeedback: %v", err)
	}

	entries := f.reg.Entries(f.agentID)
	if len(entries) != 1 {
		t.Fatalf("Entries length = %d, want 1", len(entries))
	}
	entries[0].Score = 0

	if got := f.reg.Entries(f.agentID)[0].Score; got != 42 {
		t.Errorf("stored entry mutated through copy: score = %d, want 42", got)
	}
}
