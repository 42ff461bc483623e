package token

import (
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
)

// SFTContract is an in-process semi-fungible token: per-unit-id fungible
// balances with per-owner operator approval, multi-token style.
type SFTContract struct {
	addr      string
	name      string
	journal   *Journal
	balances  map[uint64]map[string]uint64 // unit id -> holder -> amount
	operators map[string]map[string]bool   // owner -> operator
}

// NewSFTContract deploys a semi-fungible token into the world.
func NewSFTContract(w *World, addr, name string) (*SFTContract, error) {
	t := &SFTContract{
		addr:      addr,
		name:      name,
		journal:   w.Journal(),
		balances:  make(map[uint64]map[string]uint64),
		operators: make(map[string]map[string]bool),
	}
	if err := w.Deploy(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SFTContract) Address() string         { return t.addr }
func (t *SFTContract) AssetClass() asset.Class { return asset.ClassSemiFungible }

// BalanceOf reads a holder's balance of one unit class.
func (t *SFTContract) BalanceOf(owner string, unitID uint64) uint64 {
	return t.balances[unitID][owner]
}

// Mint credits amount of a unit class to an account.
func (t *SFTContract) Mint(to string, unitID uint64, amount uint64) error {
	sum, err := asset.AddAmount(t.balances[unitID][to], amount)
	if err != nil {
		return err
	}
	t.setBalance(unitID, to, sum)
	return nil
}

// SetApprovalForAll grants or revokes operator rights over all of owner's units.
func (t *SFTContract) SetApprovalForAll(owner, operator string, approved bool) {
	row, rowExisted := t.operators[owner]
	if !rowExisted {
		row = make(map[string]bool)
		t.operators[owner] = row
		t.journal.Record(func() { delete(t.operators, owner) })
	}
	prev, existed := row[operator]
	t.journal.Record(func() {
		if existed {
			row[operator] = prev
		} else {
			delete(row, operator)
		}
	})
	row[operator] = approved
}

// TransferFrom moves amount of one unit class from from to to, initiated by
// operator. The holder may move its own balance; anyone else needs approval.
func (t *SFTContract) TransferFrom(operator, from, to string, unitID uint64, amount uint64) error {
	if operator != from && !t.operators[from][operator] {
		return fmt.Errorf("%w: %s is not an approved operator for %s on %s", ErrNotAuthorized, operator, from, t.name)
	}
	have := t.balances[unitID][from]
	if have < amount {
		return fmt.Errorf("%w: %s holds %d of %s unit %d, needs %d", ErrInsufficientBalance, from, have, t.name, unitID, amount)
	}
	// A self-transfer must not credit against the pre-debit balance.
	if from == to {
		return nil
	}
	sum, err := asset.AddAmount(t.balances[unitID][to], amount)
	if err != nil {
		return err
	}
	t.setBalance(unitID, from, have-amount)
	t.setBalance(unitID, to, sum)
	return nil
}

func (t *SFTContract) setBalance(unitID uint64, owner string, amount uint64) {
	row, rowExisted := t.balances[unitID]
	if !rowExisted {
		row = make(map[string]uint64)
		t.balances[unitID] = row
		t.journal.Record(func() { delete(t.balances, unitID) })
	}
	prev, existed := row[owner]
	t.journal.Record(func() {
		if existed {
			row[owner] = prev
		} else {
			delete(row, owner)
		}
	})
	row[owner] = amount
}
