package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind and message only",
			err:  New(MissingEndorsement, "identity x did not endorse"),
			want: "MISSING_ENDORSEMENT: identity x did not endorse",
		},
		{
			name: "with slot",
			err:  AtSlot(New(InvalidController, "wrong controller"), 2),
			want: "INVALID_CONTROLLER: wrong controller (slot=2)",
		},
		{
			name: "with code",
			err:  Coded("record_exists", "already there"),
			want: "CUSTOM_CONSTRAINT_FAILED: already there (code=record_exists)",
		},
		{
			name: "with slot and code",
			err:  AtSlot(Coded("record_missing", "nothing there"), 0),
			want: "CUSTOM_CONSTRAINT_FAILED: nothing there (slot=0, code=record_missing)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAtSlotCopies(t *testing.T) {
	orig := New(RelationshipMismatch, "bad reference")
	attributed := AtSlot(orig, 3)

	assert.Equal(t, 3, attributed.Slot)
	assert.Equal(t, NoSlot, orig.Slot, "original must not be mutated")
	assert.Equal(t, orig.Kind, attributed.Kind)
}

func TestAtSlotWrapsNonFault(t *testing.T) {
	plain := fmt.Errorf("something domain-specific")
	f := AtSlot(plain, 1)

	assert.Equal(t, CustomConstraintFailed, f.Kind)
	assert.Equal(t, 1, f.Slot)
	assert.ErrorIs(t, f, plain)
}

func TestTerminal(t *testing.T) {
	assert.True(t, New(DerivationExhausted, "x").Terminal())
	assert.True(t, New(SequencingViolation, "x").Terminal())
	assert.False(t, New(MissingEndorsement, "x").Terminal())
	assert.False(t, New(ArithmeticOverflow, "x").Terminal())
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := New(TypeTagMismatch, "tag differs")
	wrapped := fmt.Errorf("evaluating slot: %w", inner)

	assert.Equal(t, TypeTagMismatch, KindOf(wrapped))
	assert.True(t, Is(wrapped, TypeTagMismatch))
	assert.False(t, Is(wrapped, MissingEndorsement))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestSlotOf(t *testing.T) {
	assert.Equal(t, 4, SlotOf(AtSlot(New(InvalidDerivedAddress, "x"), 4)))
	assert.Equal(t, NoSlot, SlotOf(errors.New("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("field missing")
	f := Wrap(MissingEndorsement, cause, "cannot resolve identity")

	require.ErrorIs(t, f, cause)
	assert.Equal(t, MissingEndorsement, f.Kind)
}
