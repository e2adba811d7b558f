package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs(t *testing.T) {
	err := New(MalformedMessage, "missing MsgType", map[string]string{"field": "MsgType"})

	assert.True(t, Is(err, MalformedMessage))
	assert.False(t, Is(err, DecryptionFailed))
	assert.False(t, Is(errors.New("plain"), MalformedMessage))
	assert.False(t, Is(nil, MalformedMessage))
}

func TestIsThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("process: %w", New(HandlerFailure, "boom", nil))

	assert.True(t, Is(err, HandlerFailure))
	assert.Equal(t, HandlerFailure, KindOf(err))
}

func TestWrap(t *testing.T) {
	cause := errors.New("aes: bad padding")
	err := Wrap(cause, DecryptionFailed, "decrypt body", map[string]string{"app": "main"})

	assert.True(t, Is(err, DecryptionFailed))
	assert.Contains(t, err.Error(), "aes: bad padding")
	assert.Equal(t, "main", Param(err, "app"))

	// Already the right kind: untouched.
	assert.Same(t, err, Wrap(err, DecryptionFailed, "again", nil))

	assert.Nil(t, Wrap(nil, HandlerFailure, "nothing", nil))
}

func TestKindOfUnknown(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
	assert.Equal(t, "", Param(errors.New("x"), "app"))
}

type codedErr struct{ code int }

func (e *codedErr) Error() string { return fmt.Sprintf("code %d", e.code) }

func TestWrapKeepsCause(t *testing.T) {
	appErr := errors.New("backend down")
	err := Wrap(appErr, HandlerFailure, "handle text", map[string]string{"key": "555"})

	assert.True(t, Is(err, HandlerFailure))
	assert.ErrorIs(t, err, appErr)
	assert.Equal(t, "555", Param(err, "key"))
	assert.Contains(t, err.Error(), "handle text")
	assert.Contains(t, err.Error(), "backend down")

	// Non-internal kinds keep their cause too.
	cryptoErr := &codedErr{code: 7}
	err = Wrap(fmt.Errorf("verify: %w", cryptoErr), DecryptionFailed, "decrypt callback", nil)
	var target *codedErr
	require.ErrorAs(t, err, &target)
	assert.Same(t, cryptoErr, target)
	assert.Equal(t, DecryptionFailed, KindOf(err))
}

func TestKindOfIsOutermost(t *testing.T) {
	inner := New(MalformedMessage, "bad reply", nil)
	err := Wrap(inner, HandlerFailure, "serialize reply", nil)

	assert.Equal(t, HandlerFailure, KindOf(err))
	assert.False(t, Is(err, MalformedMessage))
	assert.ErrorIs(t, err, inner)
}
