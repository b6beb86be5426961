package submit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubClient struct {
	result   Result
	err      error
	calls    int
	lastReq  SubmitRequest
	recorded *ClientConfig
}

func (c *stubClient) Submit(_ context.Context, req SubmitRequest) (Result, error) {
	c.calls++
	c.lastReq = req
	return c.result, c.err
}

func stubFactory(c *stubClient) ClientFactory {
	return func(cfg ClientConfig) Client {
		c.recorded = &cfg
		return c
	}
}

type recordingProcess struct {
	codes []int
}

func (p *recordingProcess) Exit(code int) {
	p.codes = append(p.codes, code)
}

func validRequest(c *stubClient) Request {
	return Request{
		APIKey:    "k",
		APISecret: "s",
		ID:        "@ext",
		Version:   "1.0.0",
		XPIPath:   "/tmp/a.xpi",
		NewClient: stubFactory(c),
	}
}

func TestRunRequiredFieldValidationOrder(t *testing.T) {
	tests := []struct {
		field string
		wipe  func(*Request)
	}{
		{field: "apiKey", wipe: func(r *Request) { r.APIKey = "" }},
		{field: "apiSecret", wipe: func(r *Request) { r.APISecret = "" }},
		{field: "version", wipe: func(r *Request) { r.Version = "" }},
		{field: "xpiPath", wipe: func(r *Request) { r.XPIPath = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			for _, mode := range []FailureMode{ModeTerminate, ModePropagate} {
				client := &stubClient{result: Result{Success: true}}
				proc := &recordingProcess{}
				req := validRequest(client)
				tc.wipe(&req)

				err := Run(context.Background(), req, RuntimeConfig{Process: proc, FailureMode: mode})
				require.Error(t, err)
				require.EqualError(t, err, "argument was empty: "+tc.field)

				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				require.Equal(t, tc.field, verr.Field)

				require.Empty(t, proc.codes, "exit must not be called on validation failure")
				require.Zero(t, client.calls, "submit must not be called on validation failure")
			}
		})
	}
}

func TestRunValidationShortCircuitsOnFirstMissingField(t *testing.T) {
	client := &stubClient{}
	req := validRequest(client)
	req.APISecret = ""
	req.XPIPath = ""

	err := Run(context.Background(), req, RuntimeConfig{Process: &recordingProcess{}})
	require.EqualError(t, err, "argument was empty: apiSecret")
}

func TestRunSuccessExitsZeroOnce(t *testing.T) {
	client := &stubClient{result: Result{Success: true, DownloadedFiles: []string{"/tmp/a-signed.xpi"}}}
	proc := &recordingProcess{}

	err := Run(context.Background(), validRequest(client), RuntimeConfig{Process: proc, FailureMode: ModeTerminate})
	require.NoError(t, err)
	require.Equal(t, []int{0}, proc.codes)
	require.Equal(t, 1, client.calls)
}

func TestRunBusinessFailureExitsOneOnce(t *testing.T) {
	client := &stubClient{result: Result{Success: false}}
	proc := &recordingProcess{}

	err := Run(context.Background(), validRequest(client), RuntimeConfig{Process: proc, FailureMode: ModeTerminate})
	require.NoError(t, err)
	require.Equal(t, []int{1}, proc.codes)
}

func TestRunSubmitErrorTerminateModeExitsOne(t *testing.T) {
	client := &stubClient{err: errors.New("tls handshake failed")}
	proc := &recordingProcess{}

	err := Run(context.Background(), validRequest(client), RuntimeConfig{Process: proc, FailureMode: ModeTerminate})
	require.NoError(t, err)
	require.Equal(t, []int{1}, proc.codes)
}

func TestRunSubmitErrorPropagateModeReturnsErrorWithoutExit(t *testing.T) {
	submitErr := errors.New("tls handshake failed")
	client := &stubClient{err: submitErr}
	proc := &recordingProcess{}

	err := Run(context.Background(), validRequest(client), RuntimeConfig{Process: proc, FailureMode: ModePropagate})
	require.ErrorIs(t, err, submitErr)
	require.Empty(t, proc.codes)
}

func TestRunBusinessOutcomesIgnoreFailureMode(t *testing.T) {
	// ModePropagate only changes error handling; resolved outcomes still exit.
	client := &stubClient{result: Result{Success: false}}
	proc := &recordingProcess{}

	err := Run(context.Background(), validRequest(client), RuntimeConfig{Process: proc, FailureMode: ModePropagate})
	require.NoError(t, err)
	require.Equal(t, []int{1}, proc.codes)
}

func TestRunDerivesSubmitRequestVerbatim(t *testing.T) {
	client := &stubClient{result: Result{Success: true}}
	req := validRequest(client)
	req.Channel = "listed"

	err := Run(context.Background(), req, RuntimeConfig{Process: &recordingProcess{}})
	require.NoError(t, err)
	require.Equal(t, SubmitRequest{
		XPIPath: "/tmp/a.xpi",
		Version: "1.0.0",
		GUID:    "@ext",
		Channel: "listed",
	}, client.lastReq)
}

func TestRunDerivesClientConfigVerbatim(t *testing.T) {
	client := &stubClient{result: Result{Success: true}}
	reqCfg := &RequestConfig{BaseURL: "https://example.test/api", Timeout: 9 * time.Second}
	req := validRequest(client)
	req.Verbose = true
	req.APIProxy = "http://proxy.test:8080"
	req.RequestConfig = reqCfg
	req.JWTExpiresIn = 2 * time.Minute

	err := Run(context.Background(), req, RuntimeConfig{Process: &recordingProcess{}})
	require.NoError(t, err)
	require.NotNil(t, client.recorded)
	require.Equal(t, ClientConfig{
		APIKey:        "k",
		APISecret:     "s",
		DebugLogging:  true,
		ProxyServer:   "http://proxy.test:8080",
		RequestConfig: reqCfg,
		JWTExpiresIn:  2 * time.Minute,
	}, *client.recorded)
}

func TestRunEmptyIDPassesThroughAsEmptyGUID(t *testing.T) {
	client := &stubClient{result: Result{Success: true}}
	proc := &recordingProcess{}
	req := validRequest(client)
	req.ID = ""

	err := Run(context.Background(), req, RuntimeConfig{Process: proc})
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)
	require.Empty(t, client.lastReq.GUID)
	require.Equal(t, []int{0}, proc.codes)
}

func TestRunNilClientFactoryIsAnError(t *testing.T) {
	proc := &recordingProcess{}
	req := validRequest(&stubClient{})
	req.NewClient = nil

	err := Run(context.Background(), req, RuntimeConfig{Process: proc})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no client factory")
	require.Empty(t, proc.codes)
}

func TestRunNilProcessIsAnError(t *testing.T) {
	client := &stubClient{result: Result{Success: true}}

	err := Run(context.Background(), validRequest(client), RuntimeConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no process")
	require.Zero(t, client.calls)
}
