package credit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlane/utr/pkg/asset"
)

type recordingMover struct {
	moves []string
	err   error
}

func (m *recordingMover) Move(from, to string, ref asset.Ref, amount uint64) error {
	if m.err != nil {
		return m.err
	}
	m.moves = append(m.moves, from+"->"+to)
	return nil
}

func TestIssueOverwrites(t *testing.T) {
	l := NewLedger(&recordingMover{})
	l.Issue("k", 50)
	l.Issue("k", 30)
	assert.Equal(t, uint64(30), l.Remaining("k"), "last write wins, no accumulation")
}

func TestDiscard(t *testing.T) {
	l := NewLedger(&recordingMover{})
	l.Issue("k", 50)

	require.NoError(t, l.Discard("k", 20))
	assert.Equal(t, uint64(30), l.Remaining("k"))

	err := l.Discard("k", 31)
	assert.ErrorIs(t, err, ErrInsufficientCredit)
	assert.Equal(t, uint64(30), l.Remaining("k"), "failed discard leaves the entry untouched")
}

func TestDiscardZeroAuthenticatesSender(t *testing.T) {
	l := NewLedger(&recordingMover{})
	l.Issue("k", 0)

	// A zero-amount credit can be discarded (proof of issuance)...
	require.NoError(t, l.Discard("k", 0))
	// ...but an unissued key supports the same call, so the proof is the
	// issuance itself, observable via Remaining before the discard.
	require.NoError(t, l.Discard("unknown", 0))
}

func TestConsumeAndTransfer(t *testing.T) {
	mover := &recordingMover{}
	l := NewLedger(mover)
	l.Issue("k", 50)

	require.NoError(t, l.ConsumeAndTransfer("k", 30, "alice", "bob", asset.Fungible("0xgold")))
	assert.Equal(t, uint64(20), l.Remaining("k"))
	assert.Equal(t, []string{"alice->bob"}, mover.moves)

	err := l.ConsumeAndTransfer("k", 21, "alice", "bob", asset.Fungible("0xgold"))
	assert.ErrorIs(t, err, ErrInsufficientCredit)
	assert.Len(t, mover.moves, 1, "no transfer on a failed consume")
}

func TestConsumeToZeroThenClearIsNoop(t *testing.T) {
	mover := &recordingMover{}
	l := NewLedger(mover)
	l.Issue("k", 50)

	require.NoError(t, l.Discard("k", 20))
	require.NoError(t, l.ConsumeAndTransfer("k", 30, "alice", "bob", asset.Fungible("0xgold")))
	assert.Equal(t, uint64(0), l.Remaining("k"))

	l.ClearAll([]string{"k"})
	assert.Equal(t, uint64(0), l.Remaining("k"))
	assert.Empty(t, l.ActiveKeys())
}

func TestClearAllForcesZero(t *testing.T) {
	l := NewLedger(&recordingMover{})
	l.Issue("a", 10)
	l.Issue("b", 20)
	l.Issue("c", 0)

	l.ClearAll([]string{"a", "c", "missing"})
	assert.Equal(t, uint64(0), l.Remaining("a"))
	assert.Equal(t, uint64(20), l.Remaining("b"))
	assert.Equal(t, []string{"b"}, l.ActiveKeys())
}
