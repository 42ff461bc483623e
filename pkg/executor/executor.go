// Package executor runs the action list of one router call: staging inputs,
// gating callees, invoking them, and clearing each action's payment credits
// once its invocation returns.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainlane/utr/pkg/asset"
	"github.com/chainlane/utr/pkg/credit"
	"github.com/chainlane/utr/pkg/token"
)

var (
	ErrCalleeNotCallable = errors.New("callee not callable")
	ErrInsufficientValue = errors.New("insufficient native value")
	ErrUnauthorized      = errors.New("caller not authorized")
)

// Executor executes actions against one world on behalf of one caller.
// An Executor is built per top-level call and shares the call's credit ledger.
type Executor struct {
	world      *token.World
	mover      credit.TransferAgent
	credits    *credit.Ledger
	policy     *CalleePolicy
	routerAddr string
	caller     string
}

// New creates an executor for one call frame. mover performs direct transfers
// and credit settlements; routerAddr is the account holding the call's staged
// native value.
func New(world *token.World, mover credit.TransferAgent, credits *credit.Ledger, routerAddr, caller string) *Executor {
	return &Executor{
		world:      world,
		mover:      mover,
		credits:    credits,
		routerAddr: routerAddr,
		caller:     caller,
	}
}

// WithPolicy installs an optional callee admission policy.
func (e *Executor) WithPolicy(p *CalleePolicy) *Executor {
	e.policy = p
	return e
}

// Run executes the actions in list order and returns the native value
// consumed by staging. Any failure aborts immediately; unwinding the effects
// of completed actions is the caller's responsibility.
//
// A DirectTransfer input and a PaymentCredit for the same (payer, recipient,
// asset) key may coexist in one action: the transfer moves immediately and
// the credit remains independently consumable. Double movement is possible by
// construction; the declared output floors are the caller's protection.
func (e *Executor) Run(ctx context.Context, supplied uint64, actions []Action) (uint64, error) {
	remaining := supplied
	for i, action := range actions {
		used, err := e.runAction(ctx, i, action, remaining)
		if err != nil {
			return supplied - remaining, err
		}
		remaining -= used
	}
	return supplied - remaining, nil
}

func (e *Executor) runAction(ctx context.Context, idx int, action Action, remaining uint64) (uint64, error) {
	// 1. Stage inputs, strictly in list order.
	staged := uint64(0)
	var keys []string
	for _, in := range action.Inputs {
		switch in.Mode {
		case ModeNativeValueStage:
			// Staging past the unconsumed supplied value is a hard failure at
			// the staging site, not something a later transfer discovers.
			if in.Amount > remaining {
				return 0, fmt.Errorf("%w: action %d stages %d, %d remaining", ErrInsufficientValue, idx, in.Amount, remaining)
			}
			staged = in.Amount
		case ModePaymentCredit:
			if err := in.Asset.Validate(); err != nil {
				return 0, fmt.Errorf("action %d: %w", idx, err)
			}
			key, err := asset.CreditKey(e.caller, in.Recipient, in.Asset)
			if err != nil {
				return 0, fmt.Errorf("action %d: %w", idx, err)
			}
			e.credits.Issue(key, in.Amount)
			keys = append(keys, key)
		case ModeDirectTransfer:
			if err := e.mover.Move(e.caller, in.Recipient, in.Asset, in.Amount); err != nil {
				return 0, fmt.Errorf("action %d: direct transfer: %w", idx, err)
			}
		default:
			return 0, fmt.Errorf("action %d: unknown input mode %d", idx, uint8(in.Mode))
		}
	}

	// 2. Callee admission: capability probe, then the optional policy.
	callee, err := e.admitCallee(action.Callee, staged, len(action.Calldata))
	if err != nil {
		return 0, fmt.Errorf("action %d: %w", idx, err)
	}

	// 3. Forward staged native value and invoke.
	if staged > 0 {
		if err := e.world.TransferNative(e.routerAddr, action.Callee, staged); err != nil {
			return 0, fmt.Errorf("action %d: forwarding staged value: %w", idx, err)
		}
	}
	env := &callEnv{
		caller:     e.caller,
		calleeAddr: action.Callee,
		credits:    e.credits,
		mover:      e.mover,
		keys:       &keys,
	}
	if err := callee.Call(ctx, env, staged, action.Calldata); err != nil {
		return 0, fmt.Errorf("action %d: callee %s: %w", idx, action.Callee, err)
	}

	// 4. Force-clear every credit key this action touched, spent or not.
	e.credits.ClearAll(keys)
	return staged, nil
}

// admitCallee applies the non-asset capability gate: a contract that probes
// as a transferable-asset contract is never invoked unless it carries the
// explicit RouterSafe override. This keeps the router from being used to call
// an asset's own transfer-authorization entry points directly.
func (e *Executor) admitCallee(addr string, staged uint64, calldataLen int) (Callee, error) {
	c, ok := e.world.Contract(addr)
	if !ok {
		return nil, fmt.Errorf("%w: no contract at %s", ErrCalleeNotCallable, addr)
	}
	callee, ok := c.(Callee)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no call entry point", ErrCalleeNotCallable, addr)
	}
	_, routerSafe := c.(token.RouterSafe)
	if ac, isAsset := c.(token.AssetContract); isAsset && !routerSafe {
		return nil, fmt.Errorf("%w: %s probes as a %s asset contract", ErrCalleeNotCallable, addr, ac.AssetClass())
	}
	if e.policy != nil {
		assetClass := ""
		if ac, isAsset := c.(token.AssetContract); isAsset {
			assetClass = ac.AssetClass().String()
		}
		allowed, err := e.policy.Allow(map[string]any{
			"callee": map[string]any{
				"address":     addr,
				"asset_class": assetClass,
				"router_safe": routerSafe,
			},
			"value":         int64(staged),
			"calldata_size": int64(calldataLen),
		})
		if err != nil {
			return nil, fmt.Errorf("admission policy: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s denied by admission policy", ErrCalleeNotCallable, addr)
		}
	}
	return callee, nil
}

// callEnv implements CallEnv for one action's invocation. Credits issued by
// the callee are tracked in the same key list as the action's declared
// credits so the post-call clear reaches them too.
type callEnv struct {
	caller     string
	calleeAddr string
	credits    *credit.Ledger
	mover      credit.TransferAgent
	keys       *[]string
}

func (c *callEnv) Caller() string {
	return c.caller
}

func (c *callEnv) IssuePaymentCredit(payer, recipient string, ref asset.Ref, amount uint64) error {
	if payer != c.calleeAddr {
		return fmt.Errorf("%w: %s cannot issue a credit drawing on %s", ErrUnauthorized, c.calleeAddr, payer)
	}
	key, err := asset.CreditKey(payer, recipient, ref)
	if err != nil {
		return err
	}
	c.credits.Issue(key, amount)
	*c.keys = append(*c.keys, key)
	return nil
}

func (c *callEnv) ConsumePaymentCredit(payer, recipient string, ref asset.Ref, amount uint64) error {
	key, err := asset.CreditKey(payer, recipient, ref)
	if err != nil {
		return err
	}
	return c.credits.ConsumeAndTransfer(key, amount, payer, recipient, ref)
}

func (c *callEnv) DiscardPaymentCredit(payer, recipient string, ref asset.Ref, amount uint64) error {
	key, err := asset.CreditKey(payer, recipient, ref)
	if err != nil {
		return err
	}
	return c.credits.Discard(key, amount)
}

func (c *callEnv) PaymentCredit(payer, recipient string, ref asset.Ref) (uint64, error) {
	key, err := asset.CreditKey(payer, recipient, ref)
	if err != nil {
		return 0, err
	}
	return c.credits.Remaining(key), nil
}
