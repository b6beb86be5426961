// Package submit orchestrates one package submission against a signing-service
// client and maps the outcome onto a process exit code.
package submit

import (
	"context"
	"log/slog"
	"time"
)

// Request carries every caller-supplied parameter for one submission.
type Request struct {
	APIKey    string
	APISecret string
	// ID is the add-on identifier. It is deliberately optional: when empty the
	// signing service derives or assigns one, so it is never validated here.
	ID       string
	Version  string
	XPIPath  string
	Channel  string
	Verbose  bool
	APIProxy string
	// RequestConfig is passed through to the client untouched.
	RequestConfig *RequestConfig
	// JWTExpiresIn overrides the client's auth token lifetime when positive.
	JWTExpiresIn time.Duration
	// NewClient constructs the signing-service client. Callers substitute it to
	// swap in test doubles or alternate backends.
	NewClient ClientFactory
}

// RequestConfig tunes client request behavior without the orchestrator
// interpreting any of it.
type RequestConfig struct {
	BaseURL        string
	Timeout        time.Duration
	PollInterval   time.Duration
	SigningTimeout time.Duration
	DownloadDir    string
}

// ClientConfig is the configuration handed to the client factory, derived
// field-for-field from a Request.
type ClientConfig struct {
	APIKey        string
	APISecret     string
	DebugLogging  bool
	ProxyServer   string
	RequestConfig *RequestConfig
	JWTExpiresIn  time.Duration
}

// SubmitRequest is the payload handed to the client's Submit call.
type SubmitRequest struct {
	XPIPath string
	Version string
	GUID    string
	Channel string
}

// Result is the client's report of a completed submission.
type Result struct {
	Success         bool
	DownloadedFiles []string
}

// Client is the signing-service boundary: a single blocking Submit call that
// either completes with a Result or fails with an error.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (Result, error)
}

// ClientFactory builds a Client from derived configuration. Construction must
// not perform I/O; failures surface from Submit.
type ClientFactory func(cfg ClientConfig) Client

// Process abstracts the exit side effect so callers can record instead of
// terminate.
type Process interface {
	Exit(code int)
}

// FailureMode selects how submission errors are surfaced.
type FailureMode int

const (
	// ModeTerminate maps submission errors to Exit(1).
	ModeTerminate FailureMode = iota
	// ModePropagate returns submission errors to the caller without exiting.
	ModePropagate
)

// RuntimeConfig carries the caller's exit mechanism and failure policy.
type RuntimeConfig struct {
	Process     Process
	FailureMode FailureMode
	Logger      *slog.Logger
}

// ValidationError reports a missing required request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "argument was empty: " + e.Field
}
