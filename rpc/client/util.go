package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCoord/lib/clock"
	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/lib/retry"
	"github.com/ValentinKolb/dCoord/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

const callerHeader = "X-Caller-Identity"

// httpAdapter stores all data needed to talk to a dCoord server.
// Used by the Client, the remote lock manager and the remote property store with composition pattern
type httpAdapter struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    uint32
	caller     string
	exec       *retry.Executor
	policy     retry.Policy
}

// transportError marks a failure to reach a server. It is retried on the next endpoint.
type transportError struct{ err error }

func (e *transportError) Error() string   { return e.err.Error() }
func (e *transportError) Unwrap() error   { return e.err }
func (e *transportError) Temporary() bool { return true }

func newHTTPAdapter(config common.ClientConfig) (*httpAdapter, error) {
	if len(config.Endpoints) == 0 {
		return nil, errors.New("no endpoints configured")
	}

	// Parse each server URL
	parsedURLs := make([]*url.URL, len(config.Endpoints))
	for i, server := range config.Endpoints {
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(strings.TrimRight(server, "/"))
		if err != nil {
			return nil, err
		}
		parsedURLs[i] = parsedURL
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := config.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	caller := config.Caller
	if caller == "" {
		caller = "anonymous"
	}

	return &httpAdapter{
		serverURLs: parsedURLs,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		caller: caller,
		exec:   retry.NewExecutor(clock.Real()),
		policy: retry.Policy{
			Name:        "client",
			MaxAttempts: attempts,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			IsRetryable: isRetryable,
		},
	}, nil
}

// isRetryable retries unreachable servers and 503 answers.
func isRetryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var re *common.RemoteError
	return errors.As(err, &re) && re.Kind == coord.KindTransient
}

// nextURL selects the next server via round-robin
func (a *httpAdapter) nextURL() *url.URL {
	idx := atomic.AddUint32(&a.counter, 1) % uint32(len(a.serverURLs))
	return a.serverURLs[idx]
}

// invoke sends one request (with retries) and decodes the data of the envelope into out.
// A failed envelope is returned as *common.RemoteError.
func (a *httpAdapter) invoke(method, path string, query url.Values, body any, out any) error {
	return a.invokeAs(a.caller, method, path, query, body, out)
}

// invokeAs is invoke with an explicit caller identity.
func (a *httpAdapter) invokeAs(caller, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	err := a.exec.Do(a.policy, func() error {
		return a.send(caller, method, path, query, payload, out)
	})

	// unwrap the retry error, callers are interested in the cause
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Last != nil {
		var te *transportError
		if errors.As(exhausted.Last, &te) {
			return fmt.Errorf("%s %s: %w", method, path, exhausted)
		}
		return exhausted.Last
	}
	return err
}

func (a *httpAdapter) send(caller, method, path string, query url.Values, payload []byte, out any) error {
	// path segments are escaped by the caller
	requestURL := a.nextURL().String() + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, requestURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set(callerHeader, caller)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: err}
	}

	var envelope common.Response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("http error: %s", resp.Status)
	}
	if err := envelope.Decode(out); err != nil {
		var re *common.RemoteError
		if errors.As(err, &re) {
			re.Status = resp.StatusCode
		}
		return err
	}
	return nil
}

// escape encodes a single path segment.
func escape(s string) string {
	return url.PathEscape(s)
}
