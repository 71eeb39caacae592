package llmcore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logger "github.com/xraph/go-utils/log"
	"github.com/xraph/go-utils/metrics"
	"github.com/xraph/llmcore/internal/ndjson"
	"github.com/xraph/llmcore/internal/sse"
	"github.com/xraph/llmcore/llm"
)

// BodyBuilder produces the request body for one HTTP attempt. It is
// re-invoked for the 401 retry because bodies are not reusable across
// attempts (multipart readers in particular).
type BodyBuilder func() (io.Reader, error)

// HTTPExecutionResult is the outcome of one successful HTTP exchange.
// It lives only until the response transformer consumes it.
type HTTPExecutionResult struct {
	Body   json.RawMessage
	Status int
	Header http.Header
}

// HTTPExecutor performs the provider HTTP exchange: header assembly,
// interceptors, the one-shot credential-refresh retry on 401, error
// classification, and forgiving body parsing. It keeps no per-call
// state; the shared ExecutionPolicy is read-only.
type HTTPExecutor struct {
	provider string
	spec     ProviderSpec
	policy   *ExecutionPolicy
	client   *http.Client
	logger   logger.Logger
	metrics  metrics.Metrics
}

// NewHTTPExecutor returns an executor for one provider. policy may be
// nil for defaults; logger and metrics may be nil.
func NewHTTPExecutor(provider string, spec ProviderSpec, policy *ExecutionPolicy, log logger.Logger, m metrics.Metrics) *HTTPExecutor {
	if policy == nil {
		policy = DefaultExecutionPolicy()
	}
	client := &http.Client{}
	if policy.Transport != nil {
		client.Transport = policy.Transport
	}
	return &HTTPExecutor{
		provider: provider,
		spec:     spec,
		policy:   policy,
		client:   client,
		logger:   log,
		metrics:  m,
	}
}

// Execute performs one logical request: build headers, run
// interceptors, send, retry once on 401 with rebuilt headers, classify
// failures, repair-parse the JSON body.
func (e *HTTPExecutor) Execute(ctx context.Context, req llm.ChatRequest, body BodyBuilder) (*HTTPExecutionResult, error) {
	startTime := time.Now()

	resp, err := e.send(ctx, req, body, false)
	if err != nil {
		e.recordError("execute", req.Model)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.recordError("execute", req.Model)
		return nil, llm.NewHTTPError(e.provider, fmt.Errorf("failed to read response body: %w", err))
	}

	var parsed json.RawMessage
	if err := parseJSONWithRepair(raw, &parsed); err != nil {
		e.recordError("execute", req.Model)
		return nil, llm.NewParseError("response body is not valid JSON", err)
	}

	if e.logger != nil {
		e.logger.Debug("request completed",
			logger.String("provider", e.provider),
			logger.String("model", req.Model),
			logger.Int("status", resp.StatusCode),
			logger.Duration("duration", time.Since(startTime)),
		)
	}
	if e.metrics != nil {
		e.metrics.Counter("llmcore.execute.success",
			metrics.WithLabel("provider", e.provider),
			metrics.WithLabel("model", req.Model),
		).Inc()
		e.metrics.Histogram("llmcore.execute.duration",
			metrics.WithLabel("provider", e.provider),
		).Observe(time.Since(startTime).Seconds())
	}

	return &HTTPExecutionResult{
		Body:   parsed,
		Status: resp.StatusCode,
		Header: resp.Header,
	}, nil
}

// ExecuteStream performs a streaming request and drives the converter
// loop, forwarding normalized events to handler. The handler returning
// an error aborts the stream. At most one terminal event reaches the
// handler.
func (e *HTTPExecutor) ExecuteStream(ctx context.Context, req llm.ChatRequest, body BodyBuilder, conv StreamConverter, handler func(llm.ChatStreamEvent) error) error {
	if conv == nil {
		return llm.NewUnsupportedOperation(e.provider, "streaming")
	}
	startTime := time.Now()

	resp, err := e.send(ctx, req, body, true)
	if err != nil {
		e.recordError("stream", req.Model)
		return err
	}
	defer resp.Body.Close()

	terminalSent := false
	forward := func(ev llm.ChatStreamEvent) error {
		if terminalSent {
			return nil
		}
		if ev.IsTerminal() {
			terminalSent = true
		}
		if e.metrics != nil {
			e.metrics.Counter("llmcore.stream.events",
				metrics.WithLabel("provider", e.provider),
				metrics.WithLabel("type", string(ev.Type)),
			).Inc()
		}
		return handler(ev)
	}

	nextFrame := e.frameSource(resp.Body)
	for !terminalSent {
		frame, err := nextFrame()
		if err != nil {
			if err == io.EOF {
				break
			}
			e.recordError("stream", req.Model)
			return llm.NewHTTPError(e.provider, fmt.Errorf("stream read failed: %w", err))
		}
		if len(frame) == 0 {
			continue
		}
		evs, err := conv.ConvertEvent(ctx, frame)
		if err != nil {
			e.recordError("stream", req.Model)
			return err
		}
		for _, ev := range evs {
			if err := forward(ev); err != nil {
				return err
			}
		}
	}

	if !terminalSent && conv.FinalizeOnDisconnect() {
		if ev, ok := conv.HandleStreamEnd(); ok {
			if err := forward(*ev); err != nil {
				return err
			}
		}
	}

	if e.logger != nil {
		e.logger.Debug("stream completed",
			logger.String("provider", e.provider),
			logger.String("model", req.Model),
			logger.Bool("terminal", terminalSent),
			logger.Duration("duration", time.Since(startTime)),
		)
	}
	return nil
}

// frameSource returns the policy-selected frame reader over a stream
// body.
func (e *HTTPExecutor) frameSource(body io.Reader) func() ([]byte, error) {
	if e.policy.Framing == FramingNDJSON {
		return ndjson.NewScanner(body).Next
	}
	scanner := sse.NewScanner(body)
	return func() ([]byte, error) {
		event, err := scanner.Next()
		if err != nil {
			return nil, err
		}
		return event.Data, nil
	}
}

// send performs the HTTP exchange with header assembly, interceptors,
// and the single 401 retry. It returns only 2xx responses; everything
// else comes back classified.
func (e *HTTPExecutor) send(ctx context.Context, req llm.ChatRequest, body BodyBuilder, stream bool) (*http.Response, error) {
	resp, err := e.sendOnce(ctx, req, body, stream)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Credentials may have been refreshed externally since the
		// headers were built; rebuild them and retry exactly once.
		resp.Body.Close()
		if e.logger != nil {
			e.logger.Warn("got 401, retrying with rebuilt headers",
				logger.String("provider", e.provider),
			)
		}
		if e.metrics != nil {
			e.metrics.Counter("llmcore.execute.auth_retries",
				metrics.WithLabel("provider", e.provider),
			).Inc()
		}
		resp, err = e.sendOnce(ctx, req, body, stream)
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, e.classify(resp.StatusCode, raw)
	}
	return resp, nil
}

func (e *HTTPExecutor) sendOnce(ctx context.Context, req llm.ChatRequest, body BodyBuilder, stream bool) (*http.Response, error) {
	reader, err := body()
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.spec.RequestURL(req), reader)
	if err != nil {
		return nil, llm.NewConfigurationError("failed to build request: " + err.Error())
	}

	// Base headers first, then per-request overrides win on conflict.
	for key, values := range e.spec.BaseHeaders(req) {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if stream {
		if e.policy.Framing == FramingNDJSON {
			httpReq.Header.Set("Accept", "application/x-ndjson")
		} else {
			httpReq.Header.Set("Accept", "text/event-stream")
			httpReq.Header.Set("Cache-Control", "no-cache")
		}
		if e.policy.DisableStreamCompression {
			httpReq.Header.Set("Accept-Encoding", "identity")
		}
	}

	for _, ic := range e.policy.Interceptors {
		if err := ic.OnBeforeSend(ctx, httpReq); err != nil {
			return nil, err
		}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, llm.NewTimeoutError(e.provider, "request deadline exceeded")
		}
		return nil, llm.NewHTTPError(e.provider, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		for _, ic := range e.policy.Interceptors {
			if err := ic.OnResponse(ctx, httpReq, resp); err != nil && e.logger != nil {
				e.logger.Warn("response interceptor failed",
					logger.String("provider", e.provider),
					logger.String("error", err.Error()),
				)
			}
		}
	}
	return resp, nil
}

// classify maps a non-2xx status to the error taxonomy.
func (e *HTTPExecutor) classify(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return llm.NewRateLimitError(e.provider, message)
	case status >= 500:
		return llm.NewAPIError(e.provider, status, "server error: "+message)
	default:
		return llm.NewAPIError(e.provider, status, message)
	}
}

func (e *HTTPExecutor) recordError(op, model string) {
	if e.metrics != nil {
		e.metrics.Counter("llmcore.execute.errors",
			metrics.WithLabel("provider", e.provider),
			metrics.WithLabel("model", model),
			metrics.WithLabel("op", op),
		).Inc()
	}
}
