package token

import (
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
)

// NFTContract is an in-process non-fungible token: each unit id has exactly
// one owner. Operator approval is per-owner, all-units.
type NFTContract struct {
	addr      string
	name      string
	journal   *Journal
	owners    map[uint64]string
	counts    map[string]uint64          // owner -> units held
	operators map[string]map[string]bool // owner -> operator
}

// NewNFTContract deploys a non-fungible token into the world.
func NewNFTContract(w *World, addr, name string) (*NFTContract, error) {
	t := &NFTContract{
		addr:      addr,
		name:      name,
		journal:   w.Journal(),
		owners:    make(map[uint64]string),
		counts:    make(map[string]uint64),
		operators: make(map[string]map[string]bool),
	}
	if err := w.Deploy(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *NFTContract) Address() string         { return t.addr }
func (t *NFTContract) AssetClass() asset.Class { return asset.ClassNonFungible }

// OwnerOf returns the owner of a unit, or ErrUnitNotMinted. Callers reading
// balances must treat the error as "not owned", never as success.
func (t *NFTContract) OwnerOf(unitID uint64) (string, error) {
	owner, ok := t.owners[unitID]
	if !ok {
		return "", fmt.Errorf("%w: %s unit %d", ErrUnitNotMinted, t.name, unitID)
	}
	return owner, nil
}

// BalanceOf counts all units held by owner.
func (t *NFTContract) BalanceOf(owner string) uint64 {
	return t.counts[owner]
}

// Mint assigns a fresh unit id to an owner.
func (t *NFTContract) Mint(to string, unitID uint64) error {
	if unitID == asset.AggregateBalance {
		return fmt.Errorf("%w: unit id %d is reserved", asset.ErrInvalidAssetRef, unitID)
	}
	if _, ok := t.owners[unitID]; ok {
		return fmt.Errorf("%w: %s unit %d", ErrUnitAlreadyMinted, t.name, unitID)
	}
	t.setOwner(unitID, to)
	return nil
}

// SetApprovalForAll grants or revokes operator rights over all of owner's units.
func (t *NFTContract) SetApprovalForAll(owner, operator string, approved bool) {
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

// TransferFrom moves one unit from from to to, initiated by operator.
func (t *NFTContract) TransferFrom(operator, from, to string, unitID uint64) error {
	owner, err := t.OwnerOf(unitID)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: %s unit %d owned by %s, not %s", ErrNotAuthorized, t.name, unitID, owner, from)
	}
	if operator != from && !t.operators[from][operator] {
		return fmt.Errorf("%w: %s is not an approved operator for %s on %s", ErrNotAuthorized, operator, from, t.name)
	}
	t.setOwner(unitID, to)
	return nil
}

func (t *NFTContract) setOwner(unitID uint64, to string) {
	prevOwner, existed := t.owners[unitID]
	prevFromCount := t.counts[prevOwner]
	prevToCount := t.counts[to]
	t.journal.Record(func() {
		if existed {
			t.owners[unitID] = prevOwner
			t.counts[prevOwner] = prevFromCount
		} else {
			delete(t.owners, unitID)
		}
		t.counts[to] = prevToCount
		if t.counts[to] == 0 {
			delete(t.counts, to)
		}
		if existed && t.counts[prevOwner] == 0 {
			delete(t.counts, prevOwner)
		}
	})
	if existed {
		t.counts[prevOwner]--
	}
	t.owners[unitID] = to
	t.counts[to]++
}
