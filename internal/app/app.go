package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/amotools/xpisign/internal/amo"
	"github.com/amotools/xpisign/internal/cli"
	"github.com/amotools/xpisign/internal/config"
	"github.com/amotools/xpisign/internal/doctor"
	"github.com/amotools/xpisign/internal/logging"
	"github.com/amotools/xpisign/internal/submit"
	"github.com/amotools/xpisign/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// NewClient overrides the signing-service client factory; nil selects the
	// real one.
	NewClient submit.ClientFactory
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("xpisign"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("xpisign"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New(parsed.Sign.Verbose)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load settings failed", "error", err.Error())
		return 1
	}
	settings = mergeSettings(settings, parsed.Sign)

	logger.Info("command start",
		"command", parsed.Command,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(settings, parsed.Sign.XPIPath)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandSign:
		return r.commandSign(ctx, settings, parsed.Sign, logger, logRuntime.Path)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// mergeSettings overlays command-line values onto environment settings; a flag
// always wins over its environment counterpart.
func mergeSettings(settings config.Settings, opts cli.SignOptions) config.Settings {
	if opts.APIKey != "" {
		settings.APIKey = opts.APIKey
	}
	if opts.APISecret != "" {
		settings.APISecret = opts.APISecret
	}
	if opts.APIProxy != "" {
		settings.Proxy = opts.APIProxy
	}
	if opts.DownloadDir != "" {
		settings.DownloadDir = opts.DownloadDir
	}
	if opts.JWTExpiresIn > 0 {
		settings.JWTExpiresIn = opts.JWTExpiresIn
	}
	return settings
}

func (r Runner) commandSign(ctx context.Context, settings config.Settings, opts cli.SignOptions, logger *slog.Logger, logPath string) int {
	factory := r.NewClient
	if factory == nil {
		factory = func(cfg submit.ClientConfig) submit.Client {
			client := amo.New(cfg)
			client.SetLogger(logger)
			return client
		}
	}

	proc := &recordedExit{}
	err := submit.Run(ctx, submit.Request{
		APIKey:    settings.APIKey,
		APISecret: settings.APISecret,
		ID:        opts.ID,
		Version:   opts.Version,
		XPIPath:   opts.XPIPath,
		Channel:   opts.Channel,
		Verbose:   opts.Verbose,
		APIProxy:  settings.Proxy,
		RequestConfig: &submit.RequestConfig{
			BaseURL:        settings.BaseURL,
			Timeout:        settings.RequestTimeout,
			PollInterval:   settings.PollInterval,
			SigningTimeout: settings.SigningTimeout,
			DownloadDir:    settings.DownloadDir,
		},
		JWTExpiresIn: settings.JWTExpiresIn,
		NewClient:    factory,
	}, submit.RuntimeConfig{
		Process:     proc,
		FailureMode: submit.ModeTerminate,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		var verr *submit.ValidationError
		if errors.As(err, &verr) {
			return 2
		}
		return 1
	}

	if !proc.called {
		fmt.Fprintln(r.Stderr, "error: submission finished without an exit code")
		return 1
	}
	if proc.code == 0 {
		fmt.Fprintln(r.Stdout, "signing complete")
	} else {
		fmt.Fprintf(r.Stderr, "error: signing failed; details logged to %s\n", logPath)
	}
	return proc.code
}

// recordedExit satisfies the orchestrator's process contract without
// terminating, so the runner can return the code to main instead.
type recordedExit struct {
	code   int
	called bool
}

func (p *recordedExit) Exit(code int) {
	if !p.called {
		p.code = code
		p.called = true
	}
}
