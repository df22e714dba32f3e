package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(NotFound, "user not found")
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, "user not found", err.Error())

	assert.Equal(t, Unknown, KindOf(errors.New("plain error")))
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := New(Conflict, "duplicate name")
	outer := fmt.Errorf("creating organization: %w", inner)
	assert.Equal(t, Conflict, KindOf(outer))
	assert.True(t, Is(outer, Conflict))
	assert.False(t, Is(outer, NotFound))
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Unknown, cause, "failed to fetch user")
	assert.Equal(t, "failed to fetch user", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, Wrap(Unknown, nil, "ignored"))
}

func TestNewf(t *testing.T) {
	err := Newf(PageOutOfRange, "page %d is out of range", 7)
	assert.Equal(t, PageOutOfRange, KindOf(err))
	assert.Equal(t, "page 7 is out of range", err.Error())
}
