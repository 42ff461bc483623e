// Package custody adapts the token contracts behind the two primitives the
// router core consumes: reading a party's holding of an asset (the balance
// oracle) and moving custody of an asset (the asset mover).
//
// Dispatch is by asset class through a registry of adapters fixed at
// construction. Supporting a new class tag means registering an adapter; the
// router and executor contracts do not change.
package custody

import (
	"errors"
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
	"github.com/chainlane/utr/pkg/token"
)

// Oracle reads a party's holding of an asset. Side-effect-free.
type Oracle interface {
	Read(party string, ref asset.Ref) (uint64, error)
}

// Mover performs a custodial transfer. Irreversible from the mover's
// perspective; reversal is the caller's job via full-call rollback.
type Mover interface {
	Move(from, to string, ref asset.Ref, amount uint64) error
}

// Adapter implements both primitives for one asset class.
type Adapter interface {
	Oracle
	Mover
}

// Custody dispatches oracle reads and mover transfers by asset class.
type Custody struct {
	adapters map[asset.Class]Adapter
}

// New builds a Custody over a world, with adapters for the four built-in
// classes. Token-class transfers are initiated with operator as the
// allowance-holding party (the router's address).
func New(world *token.World, operator string) *Custody {
	c := &Custody{adapters: make(map[asset.Class]Adapter)}
	c.Register(asset.ClassNative, &nativeAdapter{world: world})
	c.Register(asset.ClassFungible, &fungibleAdapter{world: world, operator: operator})
	c.Register(asset.ClassNonFungible, &nonFungibleAdapter{world: world, operator: operator})
	c.Register(asset.ClassSemiFungible, &semiFungibleAdapter{world: world, operator: operator})
	return c
}

// Register installs (or replaces) the adapter for a class tag.
func (c *Custody) Register(class asset.Class, a Adapter) {
	c.adapters[class] = a
}

// Read returns party's holding of ref. For a non-fungible ref with the
// aggregate sentinel it returns the count of all units owned; for a specific
// unit it returns 1 or 0, with failed ownership probes read as 0.
func (c *Custody) Read(party string, ref asset.Ref) (uint64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	a, ok := c.adapters[ref.Class]
	if !ok {
		return 0, fmt.Errorf("%w: class tag %d", asset.ErrUnsupportedClass, uint8(ref.Class))
	}
	return a.Read(party, ref)
}

// Move transfers amount of ref from from to to. The aggregate-balance
// sentinel is never a valid transfer target.
func (c *Custody) Move(from, to string, ref asset.Ref, amount uint64) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if ref.Class == asset.ClassNonFungible && ref.UnitID == asset.AggregateBalance {
		return fmt.Errorf("%w: aggregate balance is not transferable", asset.ErrInvalidAssetRef)
	}
	a, ok := c.adapters[ref.Class]
	if !ok {
		return fmt.Errorf("%w: class tag %d", asset.ErrUnsupportedClass, uint8(ref.Class))
	}
	return a.Move(from, to, ref, amount)
}

type nativeAdapter struct {
	world *token.World
}

func (n *nativeAdapter) Read(party string, _ asset.Ref) (uint64, error) {
	return n.world.NativeBalance(party), nil
}

func (n *nativeAdapter) Move(from, to string, _ asset.Ref, amount uint64) error {
	return n.world.TransferNative(from, to, amount)
}

type fungibleAdapter struct {
	world    *token.World
	operator string
}

func (f *fungibleAdapter) contract(ref asset.Ref) (*token.FungibleToken, error) {
	c, ok := f.world.Contract(ref.Contract)
	if !ok {
		return nil, fmt.Errorf("%w: %s", token.ErrUnknownContract, ref.Contract)
	}
	t, ok := c.(*token.FungibleToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a fungible token", asset.ErrInvalidAssetRef, ref.Contract)
	}
	return t, nil
}

func (f *fungibleAdapter) Read(party string, ref asset.Ref) (uint64, error) {
	t, err := f.contract(ref)
	if err != nil {
		return 0, err
	}
	return t.BalanceOf(party), nil
}

func (f *fungibleAdapter) Move(from, to string, ref asset.Ref, amount uint64) error {
	t, err := f.contract(ref)
	if err != nil {
		return err
	}
	return t.TransferFrom(f.operator, from, to, amount)
}

type nonFungibleAdapter struct {
	world    *token.World
	operator string
}

func (n *nonFungibleAdapter) contract(ref asset.Ref) (*token.NFTContract, error) {
	c, ok := n.world.Contract(ref.Contract)
	if !ok {
		return nil, fmt.Errorf("%w: %s", token.ErrUnknownContract, ref.Contract)
	}
	t, ok := c.(*token.NFTContract)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a non-fungible token", asset.ErrInvalidAssetRef, ref.Contract)
	}
	return t, nil
}

func (n *nonFungibleAdapter) Read(party string, ref asset.Ref) (uint64, error) {
	t, err := n.contract(ref)
	if err != nil {
		return 0, err
	}
	if ref.UnitID == asset.AggregateBalance {
		return t.BalanceOf(party), nil
	}
	owner, err := t.OwnerOf(ref.UnitID)
	if err != nil {
		// A failed ownership probe reads as "not owned", never as a fatal error.
		if errors.Is(err, token.ErrUnitNotMinted) {
			return 0, nil
		}
		return 0, err
	}
	if owner == party {
		return 1, nil
	}
	return 0, nil
}

// Move transfers a specific unit. Quantity is implied by the unit id; the
// amount argument is ignored for this class.
func (n *nonFungibleAdapter) Move(from, to string, ref asset.Ref, _ uint64) error {
	t, err := n.contract(ref)
	if err != nil {
		return err
	}
	return t.TransferFrom(n.operator, from, to, ref.UnitID)
}

type semiFungibleAdapter struct {
	world    *token.World
	operator string
}

func (s *semiFungibleAdapter) contract(ref asset.Ref) (*token.SFTContract, error) {
	c, ok := s.world.Contract(ref.Contract)
	if !ok {
		return nil, fmt.Errorf("%w: %s", token.ErrUnknownContract, ref.Contract)
	}
	t, ok := c.(*token.SFTContract)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a semi-fungible token", asset.ErrInvalidAssetRef, ref.Contract)
	}
	return t, nil
}

func (s *semiFungibleAdapter) Read(party string, ref asset.Ref) (uint64, error) {
	t, err := s.contract(ref)
	if err != nil {
		return 0, err
	}
	return t.BalanceOf(party, ref.UnitID), nil
}

func (s *semiFungibleAdapter) Move(from, to string, ref asset.Ref, amount uint64) error {
	t, err := s.contract(ref)
	if err != nil {
		return err
	}
	return t.TransferFrom(s.operator, from, to, ref.UnitID, amount)
}
