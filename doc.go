// Package ledgergate is a declarative resource-authorization and
// safe-mutation validation engine for an account-based ledger.
//
// Before any state-changing operation executes, the engine verifies a fixed
// battery of trust properties about every resource record the operation
// touches (existence/creation, mutability, endorsement, derived address,
// relationship, controller, fixed address, custom predicate, closure) in a
// fixed order, short-circuiting on the first failure. Only then does the
// operation's business logic run, with all arithmetic checked and all local
// mutation committed before any external component is invoked.
//
// The engine receives already-assembled operation requests and returns
// either an authorization to proceed (with the applied effect set) or a
// typed rejection naming the stable error kind and the offending slot.
// Network consensus, transaction propagation, key custody, and deployment
// tooling are external collaborators, not engine concerns.
//
// Construction takes three static inputs: the SQLite-backed ledger store,
// the constraint specifications compiled from CUE declarations, and the
// invocation whitelist. None of them change at request time.
package ledgergate
