// Package router implements the execution entry point of the token router:
// one call batches declared outputs and a list of actions, and either every
// effect commits or none do.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/chainlane/utr/pkg/asset"
	"github.com/chainlane/utr/pkg/credit"
	"github.com/chainlane/utr/pkg/custody"
	"github.com/chainlane/utr/pkg/executor"
	"github.com/chainlane/utr/pkg/ledger"
	"github.com/chainlane/utr/pkg/token"
)

var (
	ErrOutputOverflow     = errors.New("output floor overflow")
	ErrInsufficientOutput = errors.New("insufficient output")
)

// Output declares a minimum balance increase the call must deliver.
type Output struct {
	Recipient    string    `json:"recipient"`
	Asset        asset.Ref `json:"asset"`
	MinimumDelta uint64    `json:"minimum_delta"`
}

// phase names the internal state of one execute call. Externally a call is
// only ever observed as succeeded or failed.
type phase string

const (
	phaseInit     phase = "INIT"
	phaseSnapshot phase = "SNAPSHOT_TAKEN"
	phaseActions  phase = "ACTIONS_RUNNING"
	phaseRefund   phase = "REFUNDED"
	phaseVerify   phase = "VERIFIED"
)

// Router is the orchestrator. It owns an address in the world (the account
// that holds staged native value and the transfer allowances callers grant),
// and serializes top-level calls; reentrancy within a call is nested
// synchronous invocation, not a second entry through Execute.
type Router struct {
	mu      sync.Mutex
	world   *token.World
	custody *custody.Custody
	addr    string
	runLog  *ledger.RunLedger
	policy  *executor.CalleePolicy
	logger  *slog.Logger
	clock   func() time.Time

	tracer      trace.Tracer
	callCounter metric.Int64Counter
}

// New creates a router executing against world from the given address.
func New(world *token.World, addr string) *Router {
	meter := otel.Meter("github.com/chainlane/utr/pkg/router")
	callCounter, _ := meter.Int64Counter("utr.execute.calls",
		metric.WithDescription("Execute calls by terminal status"))

	return &Router{
		world:       world,
		custody:     custody.New(world, addr),
		addr:        addr,
		runLog:      ledger.NewRunLedger(),
		logger:      slog.Default(),
		clock:       time.Now,
		tracer:      otel.Tracer("github.com/chainlane/utr/pkg/router"),
		callCounter: callCounter,
	}
}

// WithPolicy installs a callee admission policy applied to every action.
func (r *Router) WithPolicy(p *executor.CalleePolicy) *Router {
	r.policy = p
	return r
}

// WithLogger overrides the default logger.
func (r *Router) WithLogger(l *slog.Logger) *Router {
	r.logger = l
	return r
}

// WithClock overrides the clock for testing.
func (r *Router) WithClock(clock func() time.Time) *Router {
	r.clock = clock
	return r
}

// Address returns the router's account address.
func (r *Router) Address() string {
	return r.addr
}

// Oracle exposes balance reads against the router's custody adapters.
func (r *Router) Oracle() custody.Oracle {
	return r.custody
}

// RunLedger exposes the append-only log of completed calls.
func (r *Router) RunLedger() *ledger.RunLedger {
	return r.runLog
}

// Execute runs one router call: snapshot the declared outputs, execute the
// actions in order, refund unconsumed native value, and verify every output
// floor. On any failure every state change made during the call — including
// transfers performed by earlier, successful actions — is discarded.
func (r *Router) Execute(ctx context.Context, caller string, value uint64, outputs []Output, actions []executor.Action) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	callID := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "utr.execute", trace.WithAttributes(
		attribute.String("utr.call_id", callID),
		attribute.String("utr.caller", caller),
		attribute.Int("utr.outputs", len(outputs)),
		attribute.Int("utr.actions", len(actions)),
	))
	defer span.End()

	mark := r.world.Snapshot()
	receipt, err := r.execute(ctx, callID, caller, value, outputs, actions)
	if err != nil {
		r.world.RevertTo(mark)
		span.RecordError(err)
		r.callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "FAILED")))
		r.logger.Warn("execute call failed",
			"call_id", callID, "caller", caller, "error", err)
		r.appendRunEntry(callID, caller, "FAILED", map[string]any{"error": err.Error()})
		return nil, err
	}

	r.callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "SUCCESS")))
	r.logger.Info("execute call committed",
		"call_id", callID, "caller", caller,
		"actions", receipt.ActionsRun, "refunded", receipt.Refunded)
	r.appendRunEntry(callID, caller, "SUCCESS", map[string]any{
		"actions_run":  receipt.ActionsRun,
		"value_used":   receipt.Used,
		"refunded":     receipt.Refunded,
		"content_hash": receipt.ContentHash,
	})
	return receipt, nil
}

func (r *Router) execute(ctx context.Context, callID, caller string, value uint64, outputs []Output, actions []executor.Action) (*Receipt, error) {
	st := phaseInit

	// Pull the supplied native value into the router's custody for staging.
	if err := r.world.TransferNative(caller, r.addr, value); err != nil {
		return nil, fmt.Errorf("%s: supplying native value: %w", st, err)
	}

	// 1. Snapshot: turn each declared minimum delta into an absolute floor.
	floors := make([]uint64, len(outputs))
	for i, out := range outputs {
		if err := out.Asset.Validate(); err != nil {
			return nil, fmt.Errorf("%s: output %d: %w", st, i, err)
		}
		baseline, err := r.custody.Read(out.Recipient, out.Asset)
		if err != nil {
			return nil, fmt.Errorf("%s: output %d baseline: %w", st, i, err)
		}
		floor, err := asset.AddAmount(baseline, out.MinimumDelta)
		if err != nil {
			return nil, fmt.Errorf("%w: output %d: baseline %d + delta %d wraps", ErrOutputOverflow, i, baseline, out.MinimumDelta)
		}
		floors[i] = floor
	}
	st = phaseSnapshot

	// 2. Run the actions. The credit ledger lives in this frame and is shared
	// by reference with every nested invocation; it dies with the frame.
	credits := credit.NewLedger(r.custody)
	exec := executor.New(r.world, r.custody, credits, r.addr, caller).WithPolicy(r.policy)
	st = phaseActions
	used, err := exec.Run(ctx, value, actions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", st, err)
	}

	// 3. Refund whatever the actions did not stage. Failure to return the
	// leftover is fatal to the call.
	leftover := value - used
	if leftover > 0 {
		if err := r.world.TransferNative(r.addr, caller, leftover); err != nil {
			return nil, fmt.Errorf("%s: refunding %d: %w", phaseRefund, leftover, err)
		}
	}
	st = phaseVerify

	// 4. Verify every declared output floor against fresh reads.
	for i, out := range outputs {
		got, err := r.custody.Read(out.Recipient, out.Asset)
		if err != nil {
			return nil, fmt.Errorf("%s: output %d re-read: %w", st, i, err)
		}
		if got < floors[i] {
			return nil, fmt.Errorf("%w: output %d (%s %s): balance %d below floor %d",
				ErrInsufficientOutput, i, out.Recipient, out.Asset, got, floors[i])
		}
	}

	receipt, err := newReceipt(callID, caller, len(actions), value, used, leftover, r.clock())
	if err != nil {
		return nil, fmt.Errorf("sealing receipt: %w", err)
	}
	return receipt, nil
}

func (r *Router) appendRunEntry(callID, caller, status string, data map[string]any) {
	data["call_id"] = callID
	data["status"] = status
	if _, err := r.runLog.Append(ledger.EntryExecuteCall, caller, data); err != nil {
		// The call itself already settled; a run-log append failure is
		// reported but does not unwind custody state.
		r.logger.Error("run ledger append failed", "call_id", callID, "error", err)
	}
}
