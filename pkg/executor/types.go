package executor

import (
	"context"
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
	"github.com/chainlane/utr/pkg/token"
)

// InputMode selects how an action input stages value for the callee.
type InputMode uint8

const (
	// ModePaymentCredit issues an ephemeral pull-authorization the callee can
	// consume during its invocation.
	ModePaymentCredit InputMode = iota
	// ModeDirectTransfer moves the asset from the outer caller to the
	// recipient immediately, before the callee runs.
	ModeDirectTransfer
	// ModeNativeValueStage records the native value to forward with the
	// callee invocation. Later stages overwrite earlier ones.
	ModeNativeValueStage
)

func (m InputMode) String() string {
	switch m {
	case ModePaymentCredit:
		return "PAYMENT_CREDIT"
	case ModeDirectTransfer:
		return "DIRECT_TRANSFER"
	case ModeNativeValueStage:
		return "NATIVE_VALUE_STAGE"
	default:
		return fmt.Sprintf("MODE_%d", uint8(m))
	}
}

// Input stages one asset movement or authorization for an action.
type Input struct {
	Mode      InputMode `json:"mode"`
	Recipient string    `json:"recipient,omitempty"`
	Asset     asset.Ref `json:"asset"`
	Amount    uint64    `json:"amount"`
}

// Action is one callee invocation with its ordered input list.
type Action struct {
	Inputs   []Input `json:"inputs,omitempty"`
	Callee   string  `json:"callee"`
	Calldata []byte  `json:"calldata,omitempty"`
}

// CallEnv is the surface a callee sees during its invocation: the original
// caller's identity and the payment-credit operations. Nested calls share the
// same call-scoped credit ledger by reference.
type CallEnv interface {
	// Caller returns the original top-level caller of the execute call.
	Caller() string
	// IssuePaymentCredit grants recipient the right to pull up to amount of
	// ref from payer. A callee may only issue credits naming itself as payer.
	IssuePaymentCredit(payer, recipient string, ref asset.Ref, amount uint64) error
	// ConsumePaymentCredit pulls amount of ref from payer to recipient
	// against the matching credit, settling the transfer immediately.
	ConsumePaymentCredit(payer, recipient string, ref asset.Ref, amount uint64) error
	// DiscardPaymentCredit burns amount of the matching credit without any
	// transfer. Bookkeeping only; zero-amount discards against an issued
	// credit are the sender-authentication pattern.
	DiscardPaymentCredit(payer, recipient string, ref asset.Ref, amount uint64) error
	// PaymentCredit reads the remaining amount of the matching credit.
	PaymentCredit(payer, recipient string, ref asset.Ref) (uint64, error)
}

// Callee is a contract invocable by the executor.
type Callee interface {
	token.Contract
	Call(ctx context.Context, env CallEnv, value uint64, calldata []byte) error
}
