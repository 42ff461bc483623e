package token

import (
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
)

// FungibleToken is an in-process fungible token: balances plus operator
// allowances. Transfer guards mirror the standard fungible-token rules:
// TransferFrom requires both sufficient balance and, when the operator is not
// the holder, sufficient allowance.
type FungibleToken struct {
	addr       string
	name       string
	journal    *Journal
	balances   map[string]uint64
	allowances map[string]map[string]uint64 // owner -> operator -> amount
}

// NewFungibleToken deploys a fungible token into the world.
func NewFungibleToken(w *World, addr, name string) (*FungibleToken, error) {
	t := &FungibleToken{
		addr:       addr,
		name:       name,
		journal:    w.Journal(),
		balances:   make(map[string]uint64),
		allowances: make(map[string]map[string]uint64),
	}
	if err := w.Deploy(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *FungibleToken) Address() string         { return t.addr }
func (t *FungibleToken) Name() string            { return t.name }
func (t *FungibleToken) AssetClass() asset.Class { return asset.ClassFungible }

// BalanceOf reads a holder's balance.
func (t *FungibleToken) BalanceOf(owner string) uint64 {
	return t.balances[owner]
}

// Allowance reads what operator may still move on owner's behalf.
func (t *FungibleToken) Allowance(owner, operator string) uint64 {
	return t.allowances[owner][operator]
}

// Mint credits amount to an account.
func (t *FungibleToken) Mint(to string, amount uint64) error {
	sum, err := asset.AddAmount(t.balances[to], amount)
	if err != nil {
		return err
	}
	t.setBalance(to, sum)
	return nil
}

// Approve sets (not adds) operator's allowance over owner's balance.
func (t *FungibleToken) Approve(owner, operator string, amount uint64) {
	t.setAllowance(owner, operator, amount)
}

// TransferFrom moves amount from from to to, initiated by operator.
// When operator differs from the holder the allowance is consumed.
func (t *FungibleToken) TransferFrom(operator, from, to string, amount uint64) error {
	have := t.balances[from]
	if have < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientBalance, from, have, t.name, amount)
	}
	if operator != from {
		allowed := t.allowances[from][operator]
		if allowed < amount {
			return fmt.Errorf("%w: %s allowed %d of %s by %s, needs %d", ErrNotAuthorized, operator, allowed, t.name, from, amount)
		}
		t.setAllowance(from, operator, allowed-amount)
	}
	// Self-transfers consume allowance but must leave the balance untouched;
	// crediting from the pre-debit read would mint.
	if from == to {
		return nil
	}
	sum, err := asset.AddAmount(t.balances[to], amount)
	if err != nil {
		return err
	}
	t.setBalance(from, have-amount)
	t.setBalance(to, sum)
	return nil
}

func (t *FungibleToken) setBalance(owner string, amount uint64) {
	prev, existed := t.balances[owner]
	t.journal.Record(func() {
		if existed {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
	t.balances[owner] = amount
}

func (t *FungibleToken) setAllowance(owner, operator string, amount uint64) {
	row, rowExisted := t.allowances[owner]
	if !rowExisted {
		row = make(map[string]uint64)
		t.allowances[owner] = row
		t.journal.Record(func() { delete(t.allowances, owner) })
	}
	prev, existed := row[operator]
	t.journal.Record(func() {
		if existed {
			row[operator] = prev
		} else {
			delete(row, operator)
		}
	})
	row[operator] = amount
}
