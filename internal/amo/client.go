// Package amo implements the signing-service client: authenticated upload of
// an extension package, status polling until the service finishes processing,
// and download of the signed artifacts.
package amo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/amotools/xpisign/internal/fsm"
	"github.com/amotools/xpisign/internal/submit"
)

// DefaultBaseURL is the production signing API root.
const DefaultBaseURL = "https://addons.mozilla.org/api/v4"

const (
	defaultTimeout        = 30 * time.Second
	defaultPollInterval   = time.Second
	defaultSigningTimeout = 5 * time.Minute
	defaultJWTLifetime    = 5 * time.Minute

	maxErrorBody = 1024
)

// Client talks to the signing service over HTTP. Construction never performs
// I/O; configuration problems are held back and surfaced from Submit.
type Client struct {
	apiKey         string
	apiSecret      string
	baseURL        string
	httpClient     *http.Client
	jwtLifetime    time.Duration
	pollInterval   time.Duration
	signingTimeout time.Duration
	downloadDir    string
	debug          bool
	logger         *slog.Logger
	initErr        error
}

// Factory adapts New to the orchestrator's client factory contract.
func Factory(cfg submit.ClientConfig) submit.Client {
	return New(cfg)
}

// SetLogger replaces the client's logger. The factory contract has no logger
// slot, so callers that own a runtime logger inject it after construction.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// New builds a Client from derived submission configuration, filling in
// service defaults for anything the request config leaves unset.
func New(cfg submit.ClientConfig) *Client {
	rc := cfg.RequestConfig
	if rc == nil {
		rc = &submit.RequestConfig{}
	}

	c := &Client{
		apiKey:         cfg.APIKey,
		apiSecret:      cfg.APISecret,
		baseURL:        strings.TrimRight(rc.BaseURL, "/"),
		jwtLifetime:    cfg.JWTExpiresIn,
		pollInterval:   rc.PollInterval,
		signingTimeout: rc.SigningTimeout,
		downloadDir:    rc.DownloadDir,
		debug:          cfg.DebugLogging,
		logger:         slog.Default(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.jwtLifetime <= 0 {
		c.jwtLifetime = defaultJWTLifetime
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.signingTimeout <= 0 {
		c.signingTimeout = defaultSigningTimeout
	}

	timeout := rc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.ProxyServer != "" {
		proxyURL, err := url.Parse(cfg.ProxyServer)
		if err != nil || proxyURL.Scheme == "" || proxyURL.Host == "" {
			c.initErr = fmt.Errorf("invalid proxy server %q", cfg.ProxyServer)
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	c.httpClient = &http.Client{Timeout: timeout, Transport: transport}

	return c
}

// Submit uploads the package, waits for the service to process it, and
// downloads signed files. A service-side validation rejection resolves to an
// unsuccessful Result; transport, auth, and timeout problems return errors.
func (c *Client) Submit(ctx context.Context, req submit.SubmitRequest) (submit.Result, error) {
	if c.initErr != nil {
		return submit.Result{}, c.initErr
	}

	uploaded, err := c.upload(ctx, req)
	if err != nil {
		return submit.Result{}, err
	}
	c.debugLog("upload accepted", "status_url", uploaded.URL, "guid", uploaded.GUID)

	status, state, err := c.awaitSigned(ctx, uploaded.URL)
	if err != nil {
		return submit.Result{}, err
	}
	if state == fsm.StateFailed {
		c.logger.Warn("signing service rejected the upload",
			"guid", status.GUID,
			"validation_url", status.ValidationURL,
		)
		return submit.Result{Success: false}, nil
	}

	files, err := c.downloadSigned(ctx, status)
	if err != nil {
		return submit.Result{}, err
	}

	return submit.Result{Success: true, DownloadedFiles: files}, nil
}

type uploadResponse struct {
	GUID string `json:"guid"`
	URL  string `json:"url"`
}

// upload sends the package as a multipart form. A known identifier addresses
// the existing add-on's version slot; without one the service creates a new
// add-on and assigns an identifier itself.
func (c *Client) upload(ctx context.Context, req submit.SubmitRequest) (uploadResponse, error) {
	f, err := os.Open(req.XPIPath)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("open package %q: %w", req.XPIPath, err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("upload", filepath.Base(req.XPIPath))
	if err != nil {
		return uploadResponse{}, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return uploadResponse{}, fmt.Errorf("read package %q: %w", req.XPIPath, err)
	}
	if req.Channel != "" {
		if err := form.WriteField("channel", req.Channel); err != nil {
			return uploadResponse{}, fmt.Errorf("build upload form: %w", err)
		}
	}

	var method, endpoint string
	if req.GUID != "" {
		method = http.MethodPut
		endpoint = fmt.Sprintf("%s/addons/%s/versions/%s/",
			c.baseURL, url.PathEscape(req.GUID), url.PathEscape(req.Version))
	} else {
		if err := form.WriteField("version", req.Version); err != nil {
			return uploadResponse{}, fmt.Errorf("build upload form: %w", err)
		}
		method = http.MethodPost
		endpoint = c.baseURL + "/addons/"
	}
	if err := form.Close(); err != nil {
		return uploadResponse{}, fmt.Errorf("build upload form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, &body)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	if err := c.authorize(httpReq); err != nil {
		return uploadResponse{}, err
	}

	c.debugLog("uploading package", "method", method, "url", endpoint, "xpi", req.XPIPath)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("upload package: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return uploadResponse{}, httpStatusError("upload", resp)
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return uploadResponse{}, fmt.Errorf("decode upload response: %w", err)
	}
	if decoded.URL == "" {
		return uploadResponse{}, errors.New("upload response carried no status URL")
	}
	return decoded, nil
}

// downloadSigned fetches every signed file named in the final status into the
// configured download directory, defaulting to the working directory.
func (c *Client) downloadSigned(ctx context.Context, status versionStatus) ([]string, error) {
	dir := c.downloadDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir %q: %w", dir, err)
	}

	var files []string
	for _, file := range status.Files {
		if !file.Signed || file.DownloadURL == "" {
			continue
		}

		name := path.Base(file.DownloadURL)
		if parsed, err := url.Parse(file.DownloadURL); err == nil && parsed.Path != "" {
			name = path.Base(parsed.Path)
		}
		target := filepath.Join(dir, name)

		if err := c.downloadFile(ctx, file.DownloadURL, target); err != nil {
			return nil, err
		}
		c.logger.Info("downloaded signed file", "path", target)
		files = append(files, target)
	}

	if len(files) == 0 {
		return nil, errors.New("signing finished but no signed files were available")
	}
	return files, nil
}

func (c *Client) downloadFile(ctx context.Context, fileURL string, target string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	if err := c.authorize(httpReq); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("download signed file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpStatusError("download", resp)
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %q: %w", target, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %q: %w", target, err)
	}
	return out.Close()
}

func (c *Client) debugLog(msg string, args ...any) {
	if c.debug {
		c.logger.Debug(msg, args...)
	}
}

func httpStatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return fmt.Errorf("%s rejected: HTTP %d", op, resp.StatusCode)
	}
	return fmt.Errorf("%s rejected: HTTP %d: %s", op, resp.StatusCode, detail)
}
