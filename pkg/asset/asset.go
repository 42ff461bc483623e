// Package asset defines asset references and the amount arithmetic shared by
// the router, the custody adapters, and the payment-credit ledger.
//
// An asset reference names a unit of transferable value by class tag, contract
// address, and (for non-fungible and semi-fungible classes) a unit id. The tag
// space is open: new classes are added by registering a custody adapter, not
// by changing call sites.
package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"

	"github.com/gowebpki/jcs"
)

// Class tags a category of transferable value.
type Class uint8

const (
	ClassNative       Class = 0
	ClassFungible     Class = 1
	ClassNonFungible  Class = 2
	ClassSemiFungible Class = 3
)

// AggregateBalance is the reserved unit id meaning "count of all units owned"
// for non-fungible references. It is never a valid transfer target.
const AggregateBalance = ^uint64(0)

var (
	ErrInvalidAssetRef  = errors.New("invalid asset reference")
	ErrUnsupportedClass = errors.New("unsupported asset class")
	ErrAmountOverflow   = errors.New("amount overflow")
)

func (c Class) String() string {
	switch c {
	case ClassNative:
		return "NATIVE"
	case ClassFungible:
		return "FUNGIBLE"
	case ClassNonFungible:
		return "NON_FUNGIBLE"
	case ClassSemiFungible:
		return "SEMI_FUNGIBLE"
	default:
		return fmt.Sprintf("CLASS_%d", uint8(c))
	}
}

// Ref identifies an asset: class tag, contract address, and unit id.
// UnitID is meaningful only for NonFungible and SemiFungible classes.
// A Ref is immutable once constructed; all methods are value receivers.
type Ref struct {
	Class    Class  `json:"class"`
	Contract string `json:"contract,omitempty"`
	UnitID   uint64 `json:"unit_id,omitempty"`
}

// Native returns the reference for the chain's native value.
func Native() Ref {
	return Ref{Class: ClassNative}
}

// Fungible returns a reference to a fungible token contract.
func Fungible(contract string) Ref {
	return Ref{Class: ClassFungible, Contract: contract}
}

// NonFungible returns a reference to one unit of a non-fungible contract.
func NonFungible(contract string, unitID uint64) Ref {
	return Ref{Class: ClassNonFungible, Contract: contract, UnitID: unitID}
}

// SemiFungible returns a reference to one unit class of a semi-fungible contract.
func SemiFungible(contract string, unitID uint64) Ref {
	return Ref{Class: ClassSemiFungible, Contract: contract, UnitID: unitID}
}

// Validate checks structural well-formedness of the reference.
func (r Ref) Validate() error {
	switch r.Class {
	case ClassNative:
		if r.Contract != "" {
			return fmt.Errorf("%w: native reference carries contract %q", ErrInvalidAssetRef, r.Contract)
		}
		if r.UnitID != 0 {
			return fmt.Errorf("%w: native reference carries unit id %d", ErrInvalidAssetRef, r.UnitID)
		}
	case ClassFungible:
		if r.Contract == "" {
			return fmt.Errorf("%w: fungible reference missing contract", ErrInvalidAssetRef)
		}
		if r.UnitID != 0 {
			return fmt.Errorf("%w: fungible reference carries unit id %d", ErrInvalidAssetRef, r.UnitID)
		}
	case ClassNonFungible, ClassSemiFungible:
		if r.Contract == "" {
			return fmt.Errorf("%w: %s reference missing contract", ErrInvalidAssetRef, r.Class)
		}
	default:
		// Open tag space: an unknown class is structurally valid as long as it
		// names a contract. Whether anything can serve it is decided by the
		// custody adapter registry, not here.
		if r.Contract == "" {
			return fmt.Errorf("%w: %s reference missing contract", ErrInvalidAssetRef, r.Class)
		}
	}
	return nil
}

func (r Ref) String() string {
	switch r.Class {
	case ClassNative:
		return "native"
	case ClassFungible:
		return fmt.Sprintf("fungible:%s", r.Contract)
	default:
		if r.Class == ClassNonFungible && r.UnitID == AggregateBalance {
			return fmt.Sprintf("%s:%s:*", r.Class, r.Contract)
		}
		return fmt.Sprintf("%s:%s:%d", r.Class, r.Contract, r.UnitID)
	}
}

// AddAmount returns a+b, failing with ErrAmountOverflow if the sum wraps.
func AddAmount(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, a, b)
	}
	return sum, nil
}

// CreditKey derives the payment-credit ledger key for a (payer, recipient,
// asset) tuple. The tuple is serialized to canonical JSON (RFC 8785) before
// hashing so equal tuples always produce equal keys regardless of field order.
func CreditKey(payer, recipient string, ref Ref) (string, error) {
	raw, err := json.Marshal(struct {
		Payer     string `json:"payer"`
		Recipient string `json:"recipient"`
		Asset     Ref    `json:"asset"`
	}{payer, recipient, ref})
	if err != nil {
		return "", fmt.Errorf("failed to marshal credit key tuple: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize credit key tuple: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
