// Package token holds the in-process world state the router executes against:
// native value accounts plus fungible, non-fungible, and semi-fungible token
// contracts. All writes go through a shared journal so a failed call can be
// unwound in full.
//
// World and the contracts deployed into it are not internally synchronized.
// Execution of a call is one logical thread (reentrancy is nested synchronous
// invocation, not parallelism); callers serialize top-level calls.
package token

import (
	"errors"
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
)

var (
	ErrAddressInUse        = errors.New("address already in use")
	ErrUnknownContract     = errors.New("unknown contract")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotAuthorized       = errors.New("not authorized to transfer")
	ErrUnitNotMinted       = errors.New("unit not minted")
	ErrUnitAlreadyMinted   = errors.New("unit already minted")
)

// Contract is anything deployed at an address in the world.
type Contract interface {
	Address() string
}

// AssetContract is the capability probe: a contract answering with an asset
// class implements transferable-asset semantics and must not be invoked as a
// callee unless it also carries the RouterSafe override marker.
type AssetContract interface {
	Contract
	AssetClass() asset.Class
}

// RouterSafe is the explicit pass-through marker a contract implements to
// declare itself callable even though it probes as an asset contract.
type RouterSafe interface {
	RouterSafe()
}

// World is the address space one router instance executes against.
type World struct {
	journal   Journal
	contracts map[string]Contract
	native    map[string]uint64
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		contracts: make(map[string]Contract),
		native:    make(map[string]uint64),
	}
}

// Journal exposes the shared write journal to contracts deployed in this world.
func (w *World) Journal() *Journal {
	return &w.journal
}

// Deploy registers a contract at its address.
func (w *World) Deploy(c Contract) error {
	addr := c.Address()
	if addr == "" {
		return errors.New("contract has empty address")
	}
	if _, ok := w.contracts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	w.contracts[addr] = c
	return nil
}

// Contract looks up the contract deployed at addr.
func (w *World) Contract(addr string) (Contract, bool) {
	c, ok := w.contracts[addr]
	return c, ok
}

// NativeBalance reads an account's native value.
func (w *World) NativeBalance(addr string) uint64 {
	return w.native[addr]
}

// MintNative credits native value to an account. Journaled like any write so
// bootstrap minting inside a call still reverts with the call.
func (w *World) MintNative(addr string, amount uint64) error {
	sum, err := asset.AddAmount(w.native[addr], amount)
	if err != nil {
		return err
	}
	w.setNative(addr, sum)
	return nil
}

// TransferNative moves native value between accounts.
func (w *World) TransferNative(from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	have := w.native[from]
	if have < amount {
		return fmt.Errorf("%w: %s has %d native, needs %d", ErrInsufficientBalance, from, have, amount)
	}
	// A self-transfer must not credit against the pre-debit balance.
	if from == to {
		return nil
	}
	sum, err := asset.AddAmount(w.native[to], amount)
	if err != nil {
		return err
	}
	w.setNative(from, have-amount)
	w.setNative(to, sum)
	return nil
}

// Snapshot marks the current journal position.
func (w *World) Snapshot() int {
	return w.journal.Mark()
}

// RevertTo unwinds every write made since the snapshot.
func (w *World) RevertTo(mark int) {
	w.journal.RevertTo(mark)
}

func (w *World) setNative(addr string, amount uint64) {
	prev, existed := w.native[addr]
	w.journal.Record(func() {
		if existed {
			w.native[addr] = prev
		} else {
			delete(w.native, addr)
		}
	})
	w.native[addr] = amount
}
