package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/egress"
	"polaris-ai/polaris/pkg/metrics"
	"polaris-ai/polaris/pkg/routing"
)

// ProviderSource resolves a candidate's configuration record.
type ProviderSource interface {
	ProviderRecordFor(ctx context.Context, providerID string) (*catalog.ProviderRecord, bool, error)
}

// Executor runs a request against its candidate failover sequence.
//
// Candidates are attempted strictly in order, never in parallel: racing
// multiple providers would double-call (and double-bill) upstreams. Each
// attempt gets its own egress proxy pick and bounded timeout, and reports
// its outcome to the aggregator whether or not the overall request
// ultimately succeeds.
type Executor struct {
	providers  ProviderSource
	client     *Client
	pool       *egress.Pool // nil when no egress proxies are configured
	aggregator *metrics.Aggregator
	affinity   *routing.AffinityManager
	collector  *metrics.Collector // nil when Prometheus is disabled
	logger     *slog.Logger
}

// NewExecutor creates the executor. pool and collector may be nil.
func NewExecutor(providers ProviderSource, client *Client, pool *egress.Pool, aggregator *metrics.Aggregator, affinity *routing.AffinityManager, collector *metrics.Collector) *Executor {
	return &Executor{
		providers:  providers,
		client:     client,
		pool:       pool,
		aggregator: aggregator,
		affinity:   affinity,
		collector:  collector,
		logger:     slog.Default().With("component", "executor"),
	}
}

// Execute tries candidates in order until one succeeds.
//
// State machine per request: PENDING → TRYING(candidate_i) → SUCCEEDED,
// or RETRYABLE_FAILURE → TRYING(candidate_i+1), or FATAL_FAILURE. A
// failure is retryable only before any response bytes have been delivered
// to the caller and only for connection-level errors or statuses in the
// provider's configured retryable set. Exhausting all candidates returns
// an ExhaustedError.
func (e *Executor) Execute(ctx context.Context, req *Request, candidates []routing.Candidate) (*Result, error) {
	if len(candidates) == 0 {
		return nil, &ExhaustedError{LogicalModel: req.LogicalModel, LastError: fmt.Errorf("empty candidate list")}
	}

	var (
		attempted   []string
		lastErr     error
		usedProxies = make(map[string]struct{})
	)

	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempted = append(attempted, cand.ProviderID)

		result, err := e.attempt(ctx, req, cand, usedProxies)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			// Caller gone: stop immediately, no further candidates.
			return nil, err
		}

		var attemptErr *AttemptError
		if errors.As(err, &attemptErr) && attemptErr.Retryable && i < len(candidates)-1 {
			e.logger.Warn("failing over to next candidate",
				"logical_model", req.LogicalModel,
				"provider", cand.ProviderID,
				"status", attemptErr.StatusCode,
				"error", err,
			)
			if e.collector != nil {
				e.collector.RecordFailover(cand.ProviderID)
			}
			continue
		}

		// Fatal or last candidate.
		break
	}

	return nil, &ExhaustedError{
		LogicalModel: req.LogicalModel,
		Attempted:    attempted,
		LastError:    lastErr,
	}
}

// attempt executes one candidate.
func (e *Executor) attempt(ctx context.Context, req *Request, cand routing.Candidate, usedProxies map[string]struct{}) (*Result, error) {
	rec, found, err := e.providers.ProviderRecordFor(ctx, cand.ProviderID)
	if err != nil || !found {
		if err == nil {
			err = fmt.Errorf("provider %q missing from configuration store", cand.ProviderID)
		}
		return nil, &AttemptError{Provider: cand.ProviderID, Retryable: true, Cause: err}
	}

	// Diversify the outbound path: prefer a proxy this request has not
	// used yet.
	var proxy *egress.Endpoint
	if e.pool != nil {
		proxy = e.pool.Pick(usedProxies)
		if proxy != nil {
			usedProxies[proxy.Key()] = struct{}{}
		}
	}

	body, err := rewriteModel(req.Payload, cand.PhysicalModelID)
	if err != nil {
		return nil, &AttemptError{Provider: cand.ProviderID, Retryable: false, Cause: err}
	}

	start := time.Now()
	if req.Stream {
		return e.attemptStream(ctx, req, cand, rec, body, proxy, start)
	}
	return e.attemptBuffered(ctx, req, cand, rec, body, proxy, start)
}

func (e *Executor) attemptBuffered(ctx context.Context, req *Request, cand routing.Candidate, rec *catalog.ProviderRecord, body []byte, proxy *egress.Endpoint, start time.Time) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.client.AttemptTimeout())
	defer cancel()

	resp, err := e.client.Do(attemptCtx, rec, body, false, req.Header, proxy)
	if err != nil {
		return nil, e.failAttempt(ctx, req, cand, rec, 0, err, start)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, e.failAttempt(ctx, req, cand, rec, resp.StatusCode, fmt.Errorf("upstream status %d: %s", resp.StatusCode, excerpt), start)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.failAttempt(ctx, req, cand, rec, 0, fmt.Errorf("failed to read upstream body: %w", err), start)
	}

	e.recordOutcome(req, cand, metrics.OutcomeSuccess, time.Since(start), resp.StatusCode)
	e.bindSession(req, cand)

	return &Result{Response: &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
		Candidate:  cand,
	}}, nil
}

func (e *Executor) attemptStream(ctx context.Context, req *Request, cand routing.Candidate, rec *catalog.ProviderRecord, body []byte, proxy *egress.Endpoint, start time.Time) (*Result, error) {
	// The attempt timeout covers connect, response headers, and the first
	// chunk. A committed stream outlives it, so the deadline runs through
	// a cancellable context whose timer stops at the commit point.
	streamCtx, cancelStream := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(e.client.AttemptTimeout(), func() {
		timedOut.Store(true)
		cancelStream()
	})

	fail := func(status int, cause error) error {
		timer.Stop()
		cancelStream()
		if timedOut.Load() {
			cause = fmt.Errorf("no first chunk within attempt timeout %s: %w", e.client.AttemptTimeout(), context.DeadlineExceeded)
		}
		return e.failAttempt(ctx, req, cand, rec, status, cause, start)
	}

	resp, err := e.client.Do(streamCtx, rec, body, true, req.Header, proxy)
	if err != nil {
		return nil, fail(0, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fail(resp.StatusCode, fmt.Errorf("upstream status %d: %s", resp.StatusCode, excerpt))
	}

	// Read the first chunk before committing to this candidate: a failure
	// here has delivered nothing to the caller and may still fail over.
	scanner := newSSEScanner(resp.Body)
	first, err := readChunk(scanner)
	if err != nil {
		resp.Body.Close()
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("upstream closed stream before first chunk: %w", err)
		}
		return nil, fail(0, err)
	}
	if !timer.Stop() {
		// The deadline fired while the first chunk was in flight. Nothing
		// reached the caller, so this still counts as a timed-out attempt.
		resp.Body.Close()
		cancelStream()
		return nil, e.failAttempt(ctx, req, cand, rec, 0,
			fmt.Errorf("no first chunk within attempt timeout %s: %w", e.client.AttemptTimeout(), context.DeadlineExceeded), start)
	}

	// Commit point: from here on, a failure terminates the stream rather
	// than replacing partial output with another candidate's.
	e.bindSession(req, cand)

	streamBody := &cancelBody{ReadCloser: resp.Body, cancel: cancelStream}
	stream := newStream(cand, streamBody, scanner, first, func(kind metrics.OutcomeKind) {
		e.recordOutcome(req, cand, kind, time.Since(start), resp.StatusCode)
	})
	return &Result{Stream: stream}, nil
}

// cancelBody releases the attempt's stream context when the committed
// stream closes its body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// failAttempt records a failed attempt and classifies it for failover.
func (e *Executor) failAttempt(ctx context.Context, req *Request, cand routing.Candidate, rec *catalog.ProviderRecord, status int, cause error, start time.Time) error {
	latency := time.Since(start)

	if errors.Is(cause, context.Canceled) || ctx.Err() == context.Canceled {
		e.recordOutcome(req, cand, metrics.OutcomeCancelled, latency, status)
		return context.Canceled
	}

	e.recordOutcome(req, cand, metrics.OutcomeError, latency, status)

	retryable := false
	if status > 0 {
		retryable = retryableStatus(rec, status)
	} else {
		retryable = classifyConnectionError(cause)
	}

	return &AttemptError{
		Provider:   cand.ProviderID,
		StatusCode: status,
		Retryable:  retryable,
		Cause:      cause,
	}
}

func (e *Executor) recordOutcome(req *Request, cand routing.Candidate, kind metrics.OutcomeKind, latency time.Duration, status int) {
	// Recording is detached from the request context so a cancelled
	// caller still yields a recorded outcome.
	recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.aggregator.RecordOutcome(recordCtx, metrics.Outcome{
		ProviderID:   cand.ProviderID,
		LogicalModel: req.LogicalModel,
		Transport:    cand.Transport,
		IsStream:     req.Stream,
		UserID:       req.UserID,
		APIKeyID:     req.APIKeyID,
		Kind:         kind,
		LatencyMS:    latency.Milliseconds(),
		StatusCode:   status,
	})
}

func (e *Executor) bindSession(req *Request, cand routing.Candidate) {
	if req.SessionID == "" || e.affinity == nil {
		return
	}
	e.affinity.Bind(req.SessionID, req.LogicalModel, cand.ProviderID, cand.PhysicalModelID)
}

// rewriteModel replaces the payload's "model" field with the candidate's
// physical model ID, leaving every other field untouched.
func rewriteModel(payload json.RawMessage, physicalModelID string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if len(payload) == 0 {
		fields = make(map[string]json.RawMessage)
	} else if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("invalid request payload: %w", err)
	}

	model, err := json.Marshal(physicalModelID)
	if err != nil {
		return nil, err
	}
	fields["model"] = model

	return json.Marshal(fields)
}
