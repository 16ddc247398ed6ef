// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying Model with a token bucket.
//
// Thread Safety:
//
//	Safe for concurrent use; rate.Limiter is goroutine-safe.
type RateLimited struct {
	next    Model
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimited(next Model, rps float64, burst int) *RateLimited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Generate(ctx context.Context, messages []Message, schema *jsonschema.Definition) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Generate(ctx, messages, schema)
}

func (r *RateLimited) BatchGenerate(ctx context.Context, messages []Message, temperature float32, n int) ([]string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.BatchGenerate(ctx, messages, temperature, n)
}

// RetryConfig controls Retrying.
type RetryConfig struct {
	// MaxTries includes the first attempt. Zero means DefaultMaxTries.
	MaxTries uint

	// MaxElapsed bounds the total time spent retrying.
	MaxElapsed time.Duration

	// BackOff overrides the exponential policy. Tests use a zero backoff.
	BackOff backoff.BackOff

	Logger *slog.Logger
}

const DefaultMaxTries = 3

// Retrying retries transient model failures with exponential backoff.
//
// Context errors, malformed requests and 4xx responses other than 429 are
// permanent and returned after the first attempt.
type Retrying struct {
	next Model
	cfg  RetryConfig
}

func NewRetrying(next Model, cfg RetryConfig) *Retrying {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retrying{next: next, cfg: cfg}
}

func (r *Retrying) Generate(ctx context.Context, messages []Message, schema *jsonschema.Definition) (string, error) {
	return backoff.Retry(ctx, func() (string, error) {
		out, err := r.next.Generate(ctx, messages, schema)
		return out, classify(err)
	}, r.options("generate")...)
}

func (r *Retrying) BatchGenerate(ctx context.Context, messages []Message, temperature float32, n int) ([]string, error) {
	return backoff.Retry(ctx, func() ([]string, error) {
		out, err := r.next.BatchGenerate(ctx, messages, temperature, n)
		return out, classify(err)
	}, r.options("batch_generate")...)
}

func (r *Retrying) options(op string) []backoff.RetryOption {
	b := r.cfg.BackOff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxTries),
		backoff.WithMaxElapsedTime(r.cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.cfg.Logger.Warn("model call failed, retrying",
				slog.String("op", op),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()),
			)
		}),
	}
}

// classify marks errors that retrying cannot fix as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrEmptyMessages), errors.Is(err, ErrInvalidN), errors.Is(err, ErrMissingAPIKey):
		return backoff.Permanent(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isPermanentStatus(apiErr.HTTPStatusCode) {
		return backoff.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isPermanentStatus(reqErr.HTTPStatusCode) {
		return backoff.Permanent(err)
	}
	return err
}

func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
