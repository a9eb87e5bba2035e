package ledgergate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/castkeep/ledgergate/authz"
	"github.com/castkeep/ledgergate/constraint"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/guard"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/sequencer"
	"github.com/castkeep/ledgergate/store"
	"github.com/castkeep/ledgergate/typetag"
)

// Engine is the resource-authorization gatekeeper.
//
// All evaluation and mutation happens in the single-writer Run loop
// goroutine: operations that reference the same address are serialized, and
// each operation is evaluated against the state the previous one committed.
// External callers submit from any goroutine via Submit.
//
// The engine holds no long-lived locks. Every check is a pure function of
// the snapshot taken at the start of the operation, and every operation
// either commits its full effect set or applies nothing.
type Engine struct {
	store      *store.Store
	specs      map[string]*constraint.Spec
	handlers   map[string]Handler
	predicates map[string]constraint.Predicate
	registry   *typetag.Registry
	guard      *guard.Guard
	seq        *sequencer.Sequencer
	queue      *opQueue
	clock      *Clock
	tokens     TokenGenerator
	invoker    sequencer.Invoker
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithGuard sets the invocation whitelist. Operations may only invoke the
// listed components; the set cannot grow at request time.
func WithGuard(targets ...record.ComponentID) Option {
	return func(e *Engine) { e.guard = guard.New(targets...) }
}

// WithHandlers registers business logic per operation type.
func WithHandlers(handlers map[string]Handler) Option {
	return func(e *Engine) {
		for op, h := range handlers {
			e.handlers[op] = h
		}
	}
}

// WithPredicates registers named custom predicates referenced by constraint
// specifications.
func WithPredicates(predicates map[string]constraint.Predicate) Option {
	return func(e *Engine) {
		for name, p := range predicates {
			e.predicates[name] = p
		}
	}
}

// WithRegistry supplies a type tag registry pre-populated with the hosting
// system's types.
func WithRegistry(reg *typetag.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithInvoker wires the dispatcher for post-commit external invocations.
func WithInvoker(inv sequencer.Invoker) Option {
	return func(e *Engine) { e.invoker = inv }
}

// WithTokenGenerator overrides operation token generation, for deterministic
// tests.
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(e *Engine) { e.tokens = gen }
}

// WithClock overrides the logical clock, for resuming over an existing
// ledger.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithQueueCapacity sets the initial queue allocation.
func WithQueueCapacity(n int) Option {
	return func(e *Engine) { e.queue = newOpQueue(n) }
}

// New constructs an Engine over the given store and constraint
// specifications.
//
// Construction validates the wiring the way specification compilation
// validates the declarations: every operation type needs a handler, every
// referenced predicate must be registered, every slot type must be in the
// registry, and every cross-slot reference must be in range. A broken wiring
// refuses to construct rather than reject at runtime. Programmatically built
// specifications get the same checks the CUE compiler applies.
func New(st *store.Store, specs map[string]*constraint.Spec, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:      st,
		specs:      specs,
		handlers:   make(map[string]Handler),
		predicates: make(map[string]constraint.Predicate),
		registry:   typetag.NewRegistry(),
		guard:      guard.New(),
		queue:      newOpQueue(0),
		clock:      NewClock(),
		tokens:     UUIDv7Generator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.seq = sequencer.New(st, e.guard, e.invoker)

	for op, spec := range e.specs {
		if _, ok := e.handlers[op]; !ok {
			return nil, fmt.Errorf("operation %q has no registered handler", op)
		}
		for si, slot := range spec.Slots {
			if slot.Type != "" {
				if _, ok := e.registry.Lookup(slot.Type); !ok {
					return nil, fmt.Errorf("operation %q slot %d: type %q is not registered", op, si, slot.Type)
				}
			}
			for _, c := range slot.Constraints {
				switch c.Kind {
				case constraint.KindCustomPredicate:
					if _, ok := e.predicates[c.Predicate]; !ok {
						return nil, fmt.Errorf("operation %q slot %d: predicate %q is not registered", op, si, c.Predicate)
					}
				case constraint.KindRelationship:
					if c.OtherSlot < 0 || c.OtherSlot >= len(spec.Slots) {
						return nil, fmt.Errorf("operation %q slot %d: relationship references slot %d of %d", op, si, c.OtherSlot, len(spec.Slots))
					}
				case constraint.KindClose:
					if c.BeneficiarySlot < 0 || c.BeneficiarySlot >= len(spec.Slots) {
						return nil, fmt.Errorf("operation %q slot %d: close beneficiary references slot %d of %d", op, si, c.BeneficiarySlot, len(spec.Slots))
					}
				case constraint.KindDerivedAddress:
					for _, ref := range c.Seeds {
						if ref.Slot != constraint.NoSlotRef && (ref.Slot < 0 || ref.Slot >= len(spec.Slots)) {
							return nil, fmt.Errorf("operation %q slot %d: seed references slot %d of %d", op, si, ref.Slot, len(spec.Slots))
						}
					}
				}
			}
		}
	}

	return e, nil
}

// Submit enqueues an operation and waits for its verdict.
// Safe from any goroutine; the Run loop must be active for Submit to return.
func (e *Engine) Submit(ctx context.Context, req Request) (Response, error) {
	reply := make(chan opResult, 1)
	if !e.queue.Enqueue(pendingOp{req: req, reply: reply}) {
		return Response{}, errors.New("engine is closed")
	}
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case res := <-reply:
		return res.resp, res.err
	}
}

// Run processes operations in FIFO order until the context is cancelled or
// the queue is closed. Must be called from exactly one goroutine.
func (e *Engine) Run(ctx context.Context) error {
	for {
		p, ok := e.queue.TryDequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, open := <-e.queue.Wait():
				if !open && e.queue.Len() == 0 {
					return nil
				}
				continue
			}
		}

		resp, err := e.process(ctx, p.req)
		p.reply <- opResult{resp: resp, err: err}
	}
}

// Close stops accepting submissions. Operations already queued still drain.
func (e *Engine) Close() {
	e.queue.Close()
}

// process evaluates and applies one operation end to end.
func (e *Engine) process(ctx context.Context, req Request) (Response, error) {
	token := e.tokens.Generate()
	seq := e.clock.Next()

	spec, ok := e.specs[req.OperationType]
	if !ok {
		return Response{}, fmt.Errorf("unknown operation type %q", req.OperationType)
	}
	if len(req.Slots) != len(spec.Slots) {
		return Response{}, fmt.Errorf("operation %q: got %d slots, spec declares %d",
			req.OperationType, len(req.Slots), len(spec.Slots))
	}

	// Snapshot every referenced record up front; evaluation and business
	// logic see this snapshot only.
	addresses := make([]record.Address, len(req.Slots))
	for i, s := range req.Slots {
		addresses[i] = s.Address
	}
	snap, err := e.store.Snapshot(ctx, addresses)
	if err != nil {
		return Response{}, err
	}
	slots := make([]constraint.SlotState, len(req.Slots))
	for i, s := range req.Slots {
		slots[i] = constraint.SlotState{Address: s.Address, Record: snap[s.Address].Clone()}
	}

	digest, err := req.Digest()
	if err != nil {
		return Response{}, fmt.Errorf("request digest: %w", err)
	}
	authzCtx, err := authz.NewContext(digest, req.Endorsements)
	if err != nil {
		return Response{}, fmt.Errorf("authorization context: %w", err)
	}

	outcome, err := constraint.Evaluate(constraint.Input{
		Spec:       spec,
		Slots:      slots,
		Authz:      authzCtx,
		Registry:   e.registry,
		Predicates: e.predicates,
	})
	if err != nil {
		return e.reject(ctx, token, req, seq, err)
	}

	op := &Op{
		Token:    token,
		Request:  req,
		Slots:    slots,
		Outcome:  outcome,
		handle:   e.seq.Begin(seq),
		seq:      e.seq,
		registry: e.registry,
	}
	// The accepted audit row commits in the same transaction as the effect
	// set; a crash can never leave effects without their audit record.
	op.handle.SetAudit(store.AuditRow{
		OpToken: token,
		OpType:  req.OperationType,
		Verdict: string(VerdictAccepted),
		Slot:    fault.NoSlot,
		Seq:     seq,
	})

	if err := e.handlers[req.OperationType](ctx, op); err != nil {
		if op.Committed() {
			// Effects are already visible; this is a handler contract bug,
			// not a rejectable operation.
			return Response{}, fmt.Errorf("handler for %q failed after commit: %w", req.OperationType, err)
		}
		var f *fault.Error
		if errors.As(err, &f) {
			return e.reject(ctx, token, req, seq, f)
		}
		return Response{}, fmt.Errorf("handler for %q: %w", req.OperationType, err)
	}

	if !op.Committed() {
		if err := op.Commit(ctx); err != nil {
			return Response{}, fmt.Errorf("commit %q: %w", req.OperationType, err)
		}
	}

	resp := Response{OperationID: token, Verdict: VerdictAccepted, Slot: fault.NoSlot}
	for _, eff := range op.handle.Effects() {
		resp.Effects = append(resp.Effects, EffectReport{
			Kind:    string(eff.Kind),
			Address: eff.Address.String(),
		})
	}
	for _, inv := range op.handle.Invocations() {
		resp.Effects = append(resp.Effects, EffectReport{
			Kind:   "invoke",
			Target: string(inv.Target),
		})
	}

	e.logger.Info("operation accepted",
		"op", req.OperationType, "token", token, "seq", seq, "effects", len(resp.Effects))
	return resp, nil
}

// reject records and reports a typed rejection. No effects were applied:
// rejection happens before commit by construction.
func (e *Engine) reject(ctx context.Context, token string, req Request, seq int64, err error) (Response, error) {
	var f *fault.Error
	if !errors.As(err, &f) {
		return Response{}, err
	}

	if auditErr := e.store.AppendAudit(ctx, store.AuditRow{
		OpToken:   token,
		OpType:    req.OperationType,
		Verdict:   string(VerdictRejected),
		ErrorKind: string(f.Kind),
		Slot:      f.Slot,
		Seq:       seq,
	}); auditErr != nil {
		return Response{}, auditErr
	}

	e.logger.Info("operation rejected",
		"op", req.OperationType, "token", token, "seq", seq,
		"kind", string(f.Kind), "slot", f.Slot)

	return Response{
		OperationID: token,
		Verdict:     VerdictRejected,
		ErrorKind:   f.Kind,
		Slot:        f.Slot,
		Code:        f.Code,
		Message:     f.Message,
	}, nil
}
