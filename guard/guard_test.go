package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

func TestAuthorize(t *testing.T) {
	g := New("component.treasury", "component.audit")

	assert.NoError(t, g.Authorize("component.treasury"))
	assert.NoError(t, g.Authorize("component.audit"))

	err := g.Authorize("component.rogue")
	assert.True(t, fault.Is(err, fault.UnauthorizedInvocationTarget))
}

func TestEmptyGuardRejectsEverything(t *testing.T) {
	g := New()
	err := g.Authorize("component.treasury")
	assert.True(t, fault.Is(err, fault.UnauthorizedInvocationTarget))
}

func TestTargetsSorted(t *testing.T) {
	g := New("component.zeta", "component.alpha", "component.mid")
	assert.Equal(t, []record.ComponentID{
		"component.alpha", "component.mid", "component.zeta",
	}, g.Targets())
}
