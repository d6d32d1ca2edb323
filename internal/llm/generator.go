package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/pkg/logger"
	"github.com/capitalize-ai/persona-relay/pkg/metrics"
)

// maxAttempts caps generation retries. The final attempt's failure
// propagates.
const maxAttempts = 3

// GenerationError is returned once all retry attempts are exhausted.
type GenerationError struct {
	Attempts   int
	LastStatus int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("generation failed after %d attempts (last status %d): %v", e.Attempts, e.LastStatus, e.Err)
	}
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator wraps a Client with retry and exponential backoff: up to
// three attempts, 1s initial delay doubling each attempt. Transport
// failures and any non-2xx response are retried.
type Generator struct {
	client Client
	log    *logger.Logger
	sleep  func(time.Duration)
}

// NewGenerator creates a generator around client.
func NewGenerator(client Client, log *logger.Logger) *Generator {
	return &Generator{client: client, log: log, sleep: time.Sleep}
}

// Generate calls the backend and returns the raw reply text.
func (g *Generator) Generate(ctx context.Context, req *CompletionRequest) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second
	bo.Reset()

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		metrics.GenerationAttempts.WithLabelValues(req.Model).Inc()
		start := time.Now()
		resp, err := g.client.Complete(ctx, req)
		if err == nil {
			metrics.GenerationDuration.WithLabelValues(req.Model, "success").Observe(time.Since(start).Seconds())
			return resp.Content, nil
		}
		metrics.GenerationDuration.WithLabelValues(req.Model, "error").Observe(time.Since(start).Seconds())

		lastErr = err
		lastStatus = statusOf(err)
		g.log.Warn("generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("status", lastStatus),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			g.sleep(bo.NextBackOff())
		}
	}
	return "", &GenerationError{Attempts: maxAttempts, LastStatus: lastStatus, Err: lastErr}
}

// statusOf extracts an HTTP status from provider errors when present.
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
