package poll

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"vigil/internal/domain"
)

const (
	defaultTimeoutSec  = 10
	defaultExpected    = http.StatusOK
	maxInspectedBody   = 1 << 20
	defaultProbeMethod = http.MethodGet
)

// Reason classifies why one poll was counted as failure.
// Params: mismatch/transport failure constants.
// Returns: machine-readable failure tag for state machine and context.
type Reason string

const (
	// ReasonStatusMismatch marks unexpected response status code.
	ReasonStatusMismatch Reason = "status_mismatch"
	// ReasonBodyMismatch marks missing expected body substring.
	ReasonBodyMismatch Reason = "body_mismatch"
	// ReasonNetworkError marks transport-level failure.
	ReasonNetworkError Reason = "network_error"
	// ReasonTimeout marks request cancelled by check timeout.
	ReasonTimeout Reason = "timeout"
)

// Result is structured outcome of one poll; polls never raise errors.
// Params: classification, optional status code, latency, and failure text.
// Returns: state machine input for poll-driven monitors.
type Result struct {
	Success        bool
	StatusCode     *int
	ResponseTimeMS float64
	Reason         Reason
	Error          string
}

// Executor performs one bounded HTTP check per call with no side effects
// beyond the single network request.
// Params: shared HTTP client without client-level timeout; every check is
// bounded by its own context deadline.
// Returns: poll executor used by the scheduler tick.
type Executor struct {
	client *http.Client
}

// NewExecutor creates poll executor.
// Params: optional HTTP client; nil installs a default transport client.
// Returns: initialized executor.
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{client: client}
}

// Execute runs one check and classifies the response.
// Params: parent context and check description.
// Returns: structured result; success iff status matches and body predicate holds.
func (e *Executor) Execute(ctx context.Context, check domain.HTTPCheck) Result {
	timeoutSec := check.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = defaultTimeoutSec
	}
	checkCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	method := strings.ToUpper(strings.TrimSpace(check.Method))
	if method == "" {
		method = defaultProbeMethod
	}

	var body io.Reader
	if check.Body != "" {
		body = bytes.NewReader([]byte(check.Body))
	}
	request, err := http.NewRequestWithContext(checkCtx, method, check.URL, body)
	if err != nil {
		return Result{Reason: ReasonNetworkError, Error: err.Error()}
	}
	for key, value := range check.Headers {
		request.Header.Set(key, value)
	}

	started := time.Now()
	response, err := e.client.Do(request)
	elapsedMS := float64(time.Since(started)) / float64(time.Millisecond)
	if err != nil {
		reason := ReasonNetworkError
		if errors.Is(err, context.DeadlineExceeded) || checkCtx.Err() == context.DeadlineExceeded {
			reason = ReasonTimeout
		}
		return Result{ResponseTimeMS: elapsedMS, Reason: reason, Error: err.Error()}
	}
	defer response.Body.Close()

	statusCode := response.StatusCode
	result := Result{StatusCode: &statusCode, ResponseTimeMS: elapsedMS}

	expected := check.ExpectedStatus
	if expected == 0 {
		expected = defaultExpected
	}
	if statusCode != expected {
		result.Reason = ReasonStatusMismatch
		result.Error = "unexpected status " + response.Status
		return result
	}

	if check.BodySubstring != "" {
		payload, readErr := io.ReadAll(io.LimitReader(response.Body, maxInspectedBody))
		if readErr != nil {
			result.Reason = ReasonNetworkError
			result.Error = readErr.Error()
			return result
		}
		if !bytes.Contains(payload, []byte(check.BodySubstring)) {
			result.Reason = ReasonBodyMismatch
			result.Error = "response body does not contain expected substring"
			return result
		}
	}

	result.Success = true
	return result
}
