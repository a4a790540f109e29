package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a player failure by the lifecycle stage that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindScriptLoad
	KindContainerNotFound
	KindContainerSizeTimeout
	KindInitialization
	KindPlayback
	KindProviderRuntime
)

func (k Kind) String() string {
	switch k {
	case KindScriptLoad:
		return "ScriptLoadError"
	case KindContainerNotFound:
		return "ContainerNotFoundError"
	case KindContainerSizeTimeout:
		return "ContainerSizeTimeoutError"
	case KindInitialization:
		return "InitializationError"
	case KindPlayback:
		return "PlaybackError"
	case KindProviderRuntime:
		return "ProviderRuntimeError"
	default:
		return "UnknownError"
	}
}

// Error types for player lifecycle failures.
var (
	ErrScriptLoad           = errors.New("provider script did not become usable")
	ErrContainerNotFound    = errors.New("container not found")
	ErrContainerSizeTimeout = errors.New("container never gained non-zero dimensions")
	ErrInitialization       = errors.New("provider player construction failed")
	ErrPlayback             = errors.New("playback command failed")
	ErrProviderRuntime      = errors.New("provider reported an error")
)

// Operation errors returned by commands that were not forwarded.
var (
	ErrNotReady       = errors.New("player not ready")
	ErrDestroyed      = errors.New("player destroyed")
	ErrFailed         = errors.New("player failed")
	ErrUnsupported    = errors.New("not supported by provider")
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

func sentinel(k Kind) error {
	switch k {
	case KindScriptLoad:
		return ErrScriptLoad
	case KindContainerNotFound:
		return ErrContainerNotFound
	case KindContainerSizeTimeout:
		return ErrContainerSizeTimeout
	case KindInitialization:
		return ErrInitialization
	case KindPlayback:
		return ErrPlayback
	case KindProviderRuntime:
		return ErrProviderRuntime
	default:
		return nil
	}
}

// Record describes a failure captured by a player instance.
type Record struct {
	Kind  Kind
	Stage string
	Code  int
	Err   error
	At    time.Time
}

// New creates a record for the given kind. err may be nil.
func New(kind Kind, stage string, err error) *Record {
	return &Record{
		Kind:  kind,
		Stage: stage,
		Err:   err,
		At:    time.Now(),
	}
}

func (r *Record) Error() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	if r.Stage != "" {
		sb.WriteString(" (" + r.Stage + ")")
	}
	if r.Code != 0 {
		fmt.Fprintf(&sb, " code %d", r.Code)
	}
	if r.Err != nil {
		sb.WriteString(": " + r.Err.Error())
	} else if s := sentinel(r.Kind); s != nil {
		sb.WriteString(": " + s.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (r *Record) Unwrap() []error {
	var errs []error
	if s := sentinel(r.Kind); s != nil {
		errs = append(errs, s)
	}
	if r.Err != nil {
		errs = append(errs, r.Err)
	}
	return errs
}

// KindOf returns the kind of the first Record in err's chain.
func KindOf(err error) Kind {
	var rec *Record
	if errors.As(err, &rec) {
		return rec.Kind
	}
	return KindUnknown
}

// DescribeProviderCode returns a readable description of a widget error code.
func DescribeProviderCode(code int) string {
	switch code {
	case 2:
		return "invalid video id or player parameter"
	case 5:
		return "content cannot be played in the HTML5 player"
	case 100:
		return "video not found or private"
	case 101, 150:
		return "owner does not allow embedded playback"
	default:
		return "unknown provider error"
	}
}

// ReelError wraps an error with a user-friendly suggestion.
type ReelError struct {
	Err        error
	Suggestion string
}

func (e *ReelError) Error() string {
	return e.Err.Error()
}

func (e *ReelError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &ReelError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var reelErr *ReelError
	if errors.As(err, &reelErr) && reelErr.Suggestion != "" {
		return reelErr.Suggestion
	}

	var rec *Record
	if errors.As(err, &rec) {
		switch rec.Kind {
		case KindScriptLoad:
			return "Check your internet connection; the player API could not be fetched"
		case KindContainerNotFound:
			return "The page has no container with that id"
		case KindContainerSizeTimeout:
			return "The container has zero width or height; give it a size"
		case KindInitialization:
			return "The player could not be created. Try again in a moment"
		case KindPlayback:
			return "Playback was blocked. Press space to start it manually"
		case KindProviderRuntime:
			if rec.Code == 101 || rec.Code == 150 || rec.Code == 100 {
				return "This video cannot be embedded; pick another video"
			}
			return "The player reported an error. Reload the video"
		}
	}

	switch {
	case errors.Is(err, ErrNotReady):
		return "Wait for the player to finish loading"
	case errors.Is(err, ErrDestroyed):
		return "This player was closed"
	case errors.Is(err, ErrConfigNotFound):
		return "Run 'reel config init' to create a configuration file"
	case errors.Is(err, ErrInvalidConfig):
		return "Run 'reel config show' to inspect the current configuration"
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection refused") {
		return "Check your internet connection and try again"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}
