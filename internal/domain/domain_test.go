package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePriority(t *testing.T) {
	tests := map[string]Priority{
		"low":     PriorityLow,
		"HIGH":    PriorityHigh,
		" urgent": PriorityUrgent,
		"normal":  PriorityNormal,
		"":        PriorityNormal,
		"asap":    PriorityNormal,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParsePriority(in), "input %q", in)
	}
}

func TestParseMessageType(t *testing.T) {
	assert.Equal(t, MessageImage, ParseMessageType("image"))
	assert.Equal(t, MessageText, ParseMessageType(""))
	assert.Equal(t, MessageText, ParseMessageType("video"))
}

func TestSessionOwnership(t *testing.T) {
	s := &Session{CustomerID: "u1"}
	assert.True(t, s.OwnedBy("u1"))
	assert.False(t, s.OwnedBy("u2"))
	assert.False(t, s.OwnedBy(""))

	anon := &Session{}
	assert.False(t, anon.OwnedBy(""), "anonymous callers never own sessions")
	assert.False(t, anon.Assigned())
}

func TestIdentity(t *testing.T) {
	assert.True(t, Identity{}.Anonymous())
	assert.Equal(t, "Guest", Identity{}.DisplayName())
	assert.Equal(t, "u1", Identity{UserID: "u1"}.DisplayName())
	assert.Equal(t, "Dana", Identity{UserID: "u1", Name: "Dana"}.DisplayName())
	assert.Equal(t, SenderAgent, Identity{UserID: "a", Agent: true}.SenderType())
	assert.Equal(t, SenderCustomer, Identity{}.SenderType())
}

func TestKindErrors(t *testing.T) {
	err := fmt.Errorf("assign: %w", Conflictf("session %d already taken", 4))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "session 4 already taken", PublicMessage(err))

	cause := errors.New("disk I/O error")
	serr := Storage("append message", cause)
	assert.True(t, errors.Is(serr, ErrStorage))
	assert.True(t, errors.Is(serr, cause))
	assert.Contains(t, serr.Error(), "disk I/O error")
	assert.Equal(t, "Internal server error", PublicMessage(serr))

	assert.True(t, errors.Is(Validationf("x"), ErrValidation))
	assert.True(t, errors.Is(NotFoundf("x"), ErrNotFound))
	assert.True(t, errors.Is(Forbiddenf("x"), ErrForbidden))
	assert.Equal(t, "", PublicMessage(nil))
}
