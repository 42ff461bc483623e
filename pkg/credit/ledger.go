// Package credit implements the ephemeral payment-credit ledger: a table of
// key -> remaining-amount entries that lives exactly as long as one top-level
// router call. A credit authorizes a named recipient to pull up to a bounded
// amount of a specific asset from a specific payer, and only within that call.
//
// One ledger instance is allocated per Execute call and shared by reference
// with nested callee invocations; nothing persists across calls (the frame is
// garbage once Execute returns, which is what makes invariant I1 hold on the
// failure path for free).
package credit

import (
	"errors"
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
)

var ErrInsufficientCredit = errors.New("insufficient payment credit")

// TransferAgent is the custody primitive ConsumeAndTransfer settles through.
type TransferAgent interface {
	Move(from, to string, ref asset.Ref, amount uint64) error
}

// Ledger is the call-scoped credit table.
type Ledger struct {
	mover   TransferAgent
	entries map[string]uint64
}

// NewLedger creates an empty ledger settling transfers through mover.
func NewLedger(mover TransferAgent) *Ledger {
	return &Ledger{
		mover:   mover,
		entries: make(map[string]uint64),
	}
}

// Issue sets the entry for key to amount. Last write wins; issuing twice for
// the same key replaces the earlier credit, it never accumulates.
func (l *Ledger) Issue(key string, amount uint64) {
	l.entries[key] = amount
}

// Remaining reads the consumable amount left under key.
func (l *Ledger) Remaining(key string) uint64 {
	return l.entries[key]
}

// Discard decrements the entry for key by amount without moving anything.
// Pure bookkeeping; a zero-amount discard against an existing credit is the
// sender-authentication pattern.
func (l *Ledger) Discard(key string, amount uint64) error {
	have := l.entries[key]
	if have < amount {
		return fmt.Errorf("%w: key %s has %d, needs %d", ErrInsufficientCredit, key, have, amount)
	}
	l.entries[key] = have - amount
	return nil
}

// ConsumeAndTransfer discards amount from key and settles it: a custodial
// transfer of amount from from to to. This is how a callee pulls exactly the
// payment established for it earlier by Issue.
func (l *Ledger) ConsumeAndTransfer(key string, amount uint64, from, to string, ref asset.Ref) error {
	if err := l.Discard(key, amount); err != nil {
		return err
	}
	return l.mover.Move(from, to, ref, amount)
}

// ClearAll force-zeroes the listed entries regardless of remaining amount.
// Idempotent on already-zero entries.
func (l *Ledger) ClearAll(keys []string) {
	for _, k := range keys {
		delete(l.entries, k)
	}
}

// ActiveKeys returns the keys with a nonzero remaining amount.
func (l *Ledger) ActiveKeys() []string {
	var keys []string
	for k, v := range l.entries {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	return keys
}
