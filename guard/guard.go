// Package guard whitelists the external components an operation may invoke.
package guard

import (
	"slices"

	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

// Guard holds the invocation whitelist. The set is fixed at construction;
// there is no runtime expansion path.
type Guard struct {
	allowed map[record.ComponentID]struct{}
}

// New builds a guard from the configured whitelist.
func New(targets ...record.ComponentID) *Guard {
	allowed := make(map[record.ComponentID]struct{}, len(targets))
	for _, t := range targets {
		allowed[t] = struct{}{}
	}
	return &Guard{allowed: allowed}
}

// Authorize fails with UnauthorizedInvocationTarget unless the target is
// whitelisted.
func (g *Guard) Authorize(target record.ComponentID) error {
	if _, ok := g.allowed[target]; !ok {
		return fault.New(fault.UnauthorizedInvocationTarget,
			"component %s is not a permitted invocation target", target)
	}
	return nil
}

// Targets returns the whitelist in sorted order, for logging.
func (g *Guard) Targets() []record.ComponentID {
	out := make([]record.ComponentID, 0, len(g.allowed))
	for t := range g.allowed {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
