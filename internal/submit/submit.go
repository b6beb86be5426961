package submit

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Run validates the request, builds the client, performs the submission, and
// resolves the outcome through rt.Process.
//
// Required fields are checked in a fixed order and the first violation aborts
// the call before any client work happens; validation failures always return
// an error and never touch rt.Process, whatever the failure mode. For a
// submission that ran, Exit is invoked exactly once: 0 when the client reports
// success, 1 when it reports failure or, under ModeTerminate, when it errors.
// Under ModePropagate a client error is returned instead and Exit is skipped.
func Run(ctx context.Context, req Request, rt RuntimeConfig) error {
	required := []struct {
		name  string
		value string
	}{
		{"apiKey", req.APIKey},
		{"apiSecret", req.APISecret},
		{"version", req.Version},
		{"xpiPath", req.XPIPath},
	}
	for _, field := range required {
		if field.value == "" {
			return &ValidationError{Field: field.name}
		}
	}

	if req.NewClient == nil {
		return errors.New("submit: request has no client factory")
	}
	if rt.Process == nil {
		return errors.New("submit: runtime config has no process")
	}

	logger := rt.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := req.NewClient(ClientConfig{
		APIKey:        req.APIKey,
		APISecret:     req.APISecret,
		DebugLogging:  req.Verbose,
		ProxyServer:   req.APIProxy,
		RequestConfig: req.RequestConfig,
		JWTExpiresIn:  req.JWTExpiresIn,
	})

	logger.Info("submitting package",
		"xpi", req.XPIPath,
		"version", req.Version,
		"guid", req.ID,
		"channel", req.Channel,
	)

	result, err := client.Submit(ctx, SubmitRequest{
		XPIPath: req.XPIPath,
		Version: req.Version,
		GUID:    req.ID,
		Channel: req.Channel,
	})
	if err != nil {
		if rt.FailureMode == ModePropagate {
			return err
		}
		logger.Error("submission error", "error", err.Error())
		rt.Process.Exit(1)
		return nil
	}

	if !result.Success {
		logger.Error("signing service reported failure",
			"xpi", req.XPIPath,
			"version", req.Version,
		)
		rt.Process.Exit(1)
		return nil
	}

	logger.Info("submission succeeded", "downloaded_files", result.DownloadedFiles)
	rt.Process.Exit(0)
	return nil
}
