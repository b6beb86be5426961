// Package doctor runs readiness diagnostics for credentials, the package
// file, and the signing API endpoint.
package doctor

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/amotools/xpisign/internal/config"
)

// zipMagic is the local-file-header signature every XPI starts with.
var zipMagic = []byte("PK\x03\x04")

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes credential, package, and endpoint checks against the merged
// settings. The package check is skipped when no path was given.
func Run(settings config.Settings, xpiPath string) Report {
	checks := []Check{
		checkCredential("api_key", settings.APIKey),
		checkCredential("api_secret", settings.APISecret),
	}

	if settings.Proxy != "" {
		checks = append(checks, checkProxy(settings.Proxy))
	}
	if xpiPath != "" {
		checks = append(checks, checkPackage(xpiPath))
	}
	checks = append(checks, checkEndpoint(settings.BaseURL))

	return Report{Checks: checks}
}

func checkCredential(name string, value string) Check {
	if strings.TrimSpace(value) == "" {
		return Check{Name: name, Pass: false, Message: "not set; pass the flag or export XPISIGN_" + strings.ToUpper(name)}
	}
	return Check{Name: name, Pass: true, Message: "set"}
}

func checkProxy(proxy string) Check {
	parsed, err := url.Parse(proxy)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Check{Name: "proxy", Pass: false, Message: fmt.Sprintf("not a valid URL: %q", proxy)}
	}
	return Check{Name: "proxy", Pass: true, Message: fmt.Sprintf("using %s", parsed.Redacted())}
}

// checkPackage validates that the path names a readable ZIP archive.
func checkPackage(path string) Check {
	f, err := os.Open(path)
	if err != nil {
		return Check{Name: "xpi", Pass: false, Message: err.Error()}
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(zipMagic))
	if _, err := f.Read(header); err != nil {
		return Check{Name: "xpi", Pass: false, Message: fmt.Sprintf("read %q: %v", path, err)}
	}
	if !bytes.Equal(header, zipMagic) {
		return Check{Name: "xpi", Pass: false, Message: fmt.Sprintf("%q does not look like a ZIP archive", path)}
	}
	return Check{Name: "xpi", Pass: true, Message: fmt.Sprintf("%q looks like a ZIP archive", path)}
}

// checkEndpoint probes the API root. Any HTTP response proves reachability;
// auth happens per-request later, so the status code itself is not judged.
func checkEndpoint(baseURL string) Check {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Check{Name: "api.endpoint", Pass: false, Message: "base URL is empty"}
	}

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return Check{Name: "api.endpoint", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return Check{Name: "api.endpoint", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
}
