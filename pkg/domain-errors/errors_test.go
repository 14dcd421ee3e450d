package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("direct coded error", func(t *testing.T) {
		err := New(CodeNotFound, "certificate not found")
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("wrapped coded error is found through the chain", func(t *testing.T) {
		inner := New(CodeQuotaExceeded, "free limit reached")
		outer := fmt.Errorf("submit: %w", inner)
		assert.Equal(t, CodeQuotaExceeded, CodeOf(outer))
		assert.True(t, HasCode(outer, CodeQuotaExceeded))
	})

	t.Run("unknown error maps to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("disk on fire")))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil cause returns nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "should vanish"))
	})

	t.Run("preserves cause for errors.Is", func(t *testing.T) {
		cause := errors.New("row not found")
		err := Wrap(cause, CodeNotFound, "certificate not found")
		require.Error(t, err)
		assert.True(t, errors.Is(err, cause))
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "free limit reached", MessageOf(New(CodeQuotaExceeded, "free limit reached")))
	assert.Equal(t, "", MessageOf(errors.New("raw stderr from ffmpeg")),
		"uncoded errors must not leak internals")
}
