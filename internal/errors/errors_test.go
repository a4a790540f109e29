package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindScriptLoad, "ScriptLoadError"},
		{KindContainerNotFound, "ContainerNotFoundError"},
		{KindContainerSizeTimeout, "ContainerSizeTimeoutError"},
		{KindInitialization, "InitializationError"},
		{KindPlayback, "PlaybackError"},
		{KindProviderRuntime, "ProviderRuntimeError"},
		{KindUnknown, "UnknownError"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestRecordMatchesSentinelAndCause(t *testing.T) {
	rec := New(KindScriptLoad, "awaiting-script", context.DeadlineExceeded)
	wrapped := fmt.Errorf("initialize: %w", rec)

	assert.ErrorIs(t, wrapped, ErrScriptLoad)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.NotErrorIs(t, wrapped, ErrPlayback)
	assert.Equal(t, KindScriptLoad, KindOf(wrapped))
}

func TestRecordError(t *testing.T) {
	rec := New(KindProviderRuntime, "playing", errors.New("video not found or private"))
	rec.Code = 100

	want := "ProviderRuntimeError (playing) code 100: video not found or private"
	if got := rec.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := New(KindContainerSizeTimeout, "", nil)
	want = "ContainerSizeTimeoutError: container never gained non-zero dimensions"
	if got := bare.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUnknown {
		t.Errorf("KindOf() = %v, want %v", got, KindUnknown)
	}
}

func TestGetSuggestion(t *testing.T) {
	embed := New(KindProviderRuntime, "ready", nil)
	embed.Code = 150

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"explicit", WithSuggestion(errors.New("x"), "do y"), "do y"},
		{"size timeout", New(KindContainerSizeTimeout, "", nil), "The container has zero width or height; give it a size"},
		{"embedding disabled", embed, "This video cannot be embedded; pick another video"},
		{"not ready", fmt.Errorf("play: %w", ErrNotReady), "Wait for the player to finish loading"},
		{"network", errors.New("dial tcp: connection refused"), "Check your internet connection and try again"},
		{"unknown", errors.New("something odd"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetSuggestion(tt.err))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "Error: boom", Format(errors.New("boom")))
	assert.Equal(t, "Error: boom\n\nSuggestion: retry", Format(WithSuggestion(errors.New("boom"), "retry")))
}

func TestDescribeProviderCode(t *testing.T) {
	assert.Equal(t, "owner does not allow embedded playback", DescribeProviderCode(101))
	assert.Equal(t, "owner does not allow embedded playback", DescribeProviderCode(150))
	assert.Equal(t, "unknown provider error", DescribeProviderCode(42))
}
