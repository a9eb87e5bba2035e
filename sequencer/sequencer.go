// Package sequencer enforces that all local state mutation for an operation
// commits before any external invocation is issued.
//
// The two-phase contract (mutate-then-commit, then-invoke) is an API
// property, not a convention: InvokeExternal on an uncommitted handle fails
// with SequencingViolation regardless of the target. This makes it
// structurally impossible for an external component to re-enter and observe
// (or double-apply against) uncommitted state.
package sequencer

import (
	"context"
	"sync"

	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/guard"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/store"
)

// Invoker dispatches a committed operation's external invocations.
// The engine supplies the production implementation; tests supply recorders.
type Invoker interface {
	Invoke(ctx context.Context, target record.ComponentID, payload []byte) error
}

// NopInvoker discards invocations. Used when no external components are
// wired up.
type NopInvoker struct{}

// Invoke implements Invoker.
func (NopInvoker) Invoke(context.Context, record.ComponentID, []byte) error { return nil }

// Invocation is one dispatched external call, recorded for the operation's
// effect report.
type Invocation struct {
	Target  record.ComponentID
	Payload []byte
}

// Sequencer issues mutation handles bound to the ledger store and the
// invocation guard.
type Sequencer struct {
	store   *store.Store
	guard   *guard.Guard
	invoker Invoker
}

// New creates a sequencer. A nil invoker defaults to NopInvoker.
func New(st *store.Store, g *guard.Guard, inv Invoker) *Sequencer {
	if inv == nil {
		inv = NopInvoker{}
	}
	return &Sequencer{store: st, guard: g, invoker: inv}
}

// Handle accumulates one operation's staged record effects and tracks the
// commit boundary. Handles are not safe for concurrent use; one operation
// owns its handle for its whole lifetime.
type Handle struct {
	seq *Sequencer

	mu          sync.Mutex
	effects     []store.Effect
	invocations []Invocation
	committed   bool
	clockSeq    int64
	audit       *store.AuditRow
}

// Begin starts a mutation phase. clockSeq is the operation's logical clock
// position, stamped onto every row the commit writes.
func (s *Sequencer) Begin(clockSeq int64) *Handle {
	return &Handle{seq: s, clockSeq: clockSeq}
}

// StageCreate stages insertion of a new record.
func (h *Handle) StageCreate(rec *record.ResourceRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.effects = append(h.effects, store.Effect{Kind: store.EffectCreate, Address: rec.Address, Record: rec})
}

// StageUpdate stages a payload rewrite of an existing record.
func (h *Handle) StageUpdate(rec *record.ResourceRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.effects = append(h.effects, store.Effect{Kind: store.EffectUpdate, Address: rec.Address, Record: rec})
}

// StageClose stages closure: payload zeroed, controller reassigned to the
// neutral component.
func (h *Handle) StageClose(address record.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.effects = append(h.effects, store.Effect{Kind: store.EffectClose, Address: address})
}

// SetAudit attaches the audit row written in the same transaction as the
// staged effects, so an effect set is never visible without its audit record.
func (h *Handle) SetAudit(row store.AuditRow) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audit = &row
}

// Committed reports whether the handle's effects have been applied.
func (h *Handle) Committed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.committed
}

// Effects returns the staged record effects.
func (h *Handle) Effects() []store.Effect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]store.Effect(nil), h.effects...)
}

// Invocations returns the external calls dispatched after commit.
func (h *Handle) Invocations() []Invocation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Invocation(nil), h.invocations...)
}

// Commit applies the staged effect set and the attached audit row in one
// transaction. Committing twice is a SequencingViolation: the second commit
// would re-apply effects the first already made visible.
func (s *Sequencer) Commit(ctx context.Context, h *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.committed {
		return fault.New(fault.SequencingViolation, "handle already committed")
	}
	if err := s.store.ApplyWithAudit(ctx, h.effects, h.clockSeq, h.audit); err != nil {
		return err
	}
	h.committed = true
	return nil
}

// InvokeExternal dispatches a call to another component. Fails with
// SequencingViolation if the handle is uncommitted, even for whitelisted
// targets, and with UnauthorizedInvocationTarget when the guard rejects the
// target.
func (s *Sequencer) InvokeExternal(ctx context.Context, h *Handle, target record.ComponentID, payload []byte) error {
	h.mu.Lock()
	committed := h.committed
	h.mu.Unlock()

	if !committed {
		return fault.New(fault.SequencingViolation,
			"external invocation of %s before commit", target)
	}
	if err := s.guard.Authorize(target); err != nil {
		return err
	}
	if err := s.invoker.Invoke(ctx, target, payload); err != nil {
		return err
	}

	h.mu.Lock()
	h.invocations = append(h.invocations, Invocation{Target: target, Payload: payload})
	h.mu.Unlock()
	return nil
}
