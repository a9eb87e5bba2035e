package ledgergate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/castkeep/ledgergate/constraint"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/sequencer"
	"github.com/castkeep/ledgergate/typetag"
)

// Handler is the business logic for one operation type. It runs only after
// the full constraint battery accepted the request.
//
// A handler stages record effects on the operation, commits, and only then
// issues external invocations. Returning an error before commit discards all
// staged effects; returning an error after commit is a handler bug (the
// effects are already visible) and surfaces as an internal error.
type Handler func(ctx context.Context, op *Op) error

// Op is the per-operation context handed to a handler: the validated
// snapshot, the evaluation outcome, and the mutation handle.
type Op struct {
	Token   string
	Request Request
	Slots   []constraint.SlotState
	Outcome *constraint.Outcome

	handle   *sequencer.Handle
	seq      *sequencer.Sequencer
	registry *typetag.Registry
}

// Record returns the slot's snapshot record, nil if absent.
func (o *Op) Record(slot int) *record.ResourceRecord {
	return o.Slots[slot].Record
}

// Address returns the slot's address.
func (o *Op) Address(slot int) record.Address {
	return o.Slots[slot].Address
}

// Args decodes the request payload as an argument object. Numbers are
// json.Number; use ArgUint/ArgString for typed access.
func (o *Op) Args() (map[string]any, error) {
	if len(o.Request.Payload) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(o.Request.Payload))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decode request payload: %w", err)
	}
	return args, nil
}

// ArgUint returns an unsigned integer request argument.
func (o *Op) ArgUint(name string) (uint64, error) {
	args, err := o.Args()
	if err != nil {
		return 0, err
	}
	num, ok := args[name].(json.Number)
	if !ok {
		return 0, fmt.Errorf("argument %q missing or not a number", name)
	}
	u, err := strconv.ParseUint(num.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", name, err)
	}
	return u, nil
}

// ArgString returns a string request argument.
func (o *Op) ArgString(name string) (string, error) {
	args, err := o.Args()
	if err != nil {
		return "", err
	}
	s, ok := args[name].(string)
	if !ok {
		return "", fmt.Errorf("argument %q missing or not a string", name)
	}
	return s, nil
}

// StageCreate stages creation of a record at the slot's address. The
// controller and type tag are set atomically with the payload; the type name
// must be registered.
func (o *Op) StageCreate(slot int, typeName string, controller record.ComponentID, payload []byte, mutable bool) error {
	tag, ok := o.registry.Lookup(typeName)
	if !ok {
		return fmt.Errorf("type %q is not registered", typeName)
	}
	o.handle.StageCreate(&record.ResourceRecord{
		Address:    o.Slots[slot].Address,
		Controller: controller,
		TypeTag:    tag,
		Payload:    payload,
		Mutable:    mutable,
	})
	return nil
}

// StageUpdate stages a payload rewrite of the slot's record.
func (o *Op) StageUpdate(rec *record.ResourceRecord) {
	o.handle.StageUpdate(rec)
}

// StageClose stages closure of the record at the given address.
func (o *Op) StageClose(address record.Address) {
	o.handle.StageClose(address)
}

// Committed reports whether the operation's effects have been applied.
func (o *Op) Committed() bool {
	return o.handle.Committed()
}

// Commit applies all staged effects atomically. Handlers that issue external
// invocations must commit first; handlers that only mutate may skip it and
// let the engine commit on successful return.
func (o *Op) Commit(ctx context.Context) error {
	return o.seq.Commit(ctx, o.handle)
}

// InvokeExternal dispatches a call to another component after commit.
// Fails with SequencingViolation when uncommitted and with
// UnauthorizedInvocationTarget for non-whitelisted targets.
func (o *Op) InvokeExternal(ctx context.Context, target record.ComponentID, payload []byte) error {
	return o.seq.InvokeExternal(ctx, o.handle, target, payload)
}
