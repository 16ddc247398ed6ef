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
	"sync"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Call records one request made to MockClient.
type Call struct {
	Batch       bool
	Messages    []Message
	Schema      *jsonschema.Definition
	Temperature float32
	N           int
	Timestamp   time.Time
}

// LastUserContent returns the content of the final message.
func (c Call) LastUserContent() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

// MockClient is a scripted Model for tests.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use. The response function runs
//	outside the lock so concurrent wavefront calls do not serialize on it.
type MockClient struct {
	mu sync.Mutex

	// responses are queued answers consumed by Generate in FIFO order.
	responses []string

	// defaultResponse is returned when the queue is empty.
	defaultResponse string

	// responseFunc allows dynamic response generation.
	responseFunc func(Call) (string, error)

	// batchFunc answers BatchGenerate. Without it each of the n responses
	// is produced by a recorded Generate call.
	batchFunc func(Call) ([]string, error)

	calls []Call

	delay time.Duration

	errorToReturn error
}

func NewMockClient() *MockClient {
	return &MockClient{defaultResponse: "{}"}
}

// WithResponseFunc sets a dynamic response function.
func (c *MockClient) WithResponseFunc(f func(Call) (string, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFunc = f
	return c
}

// WithBatchFunc sets the BatchGenerate answer function.
func (c *MockClient) WithBatchFunc(f func(Call) ([]string, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchFunc = f
	return c
}

// WithDelay adds artificial latency that honours context cancellation.
func (c *MockClient) WithDelay(d time.Duration) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
	return c
}

// WithError makes every call fail with err.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	return c
}

// QueueResponse adds a response to the queue.
func (c *MockClient) QueueResponse(response string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response)
	return c
}

// SetDefaultResponse sets the response returned when the queue is empty.
func (c *MockClient) SetDefaultResponse(response string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultResponse = response
	return c
}

func (c *MockClient) Generate(ctx context.Context, messages []Message, schema *jsonschema.Definition) (string, error) {
	call := Call{Messages: append([]Message(nil), messages...), Schema: schema, N: 1, Timestamp: time.Now()}
	fn, queued, fallback, err := c.record(call)
	if werr := c.wait(ctx); werr != nil {
		return "", werr
	}
	if err != nil {
		return "", err
	}
	if fn != nil {
		return fn(call)
	}
	if queued != nil {
		return *queued, nil
	}
	return fallback, nil
}

func (c *MockClient) BatchGenerate(ctx context.Context, messages []Message, temperature float32, n int) ([]string, error) {
	call := Call{
		Batch:       true,
		Messages:    append([]Message(nil), messages...),
		Temperature: temperature,
		N:           n,
		Timestamp:   time.Now(),
	}
	c.mu.Lock()
	batchFn := c.batchFunc
	c.mu.Unlock()

	if batchFn != nil {
		c.mu.Lock()
		c.calls = append(c.calls, call)
		err := c.errorToReturn
		c.mu.Unlock()
		if werr := c.wait(ctx); werr != nil {
			return nil, werr
		}
		if err != nil {
			return nil, err
		}
		return batchFn(call)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := c.Generate(ctx, messages, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *MockClient) record(call Call) (func(Call) (string, error), *string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, call)
	if c.errorToReturn != nil {
		return nil, nil, "", c.errorToReturn
	}
	if c.responseFunc != nil {
		return c.responseFunc, nil, "", nil
	}
	if len(c.responses) > 0 {
		r := c.responses[0]
		c.responses = c.responses[1:]
		return nil, &r, "", nil
	}
	return nil, nil, c.defaultResponse, nil
}

func (c *MockClient) wait(ctx context.Context) error {
	c.mu.Lock()
	d := c.delay
	c.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetCalls returns all recorded calls.
func (c *MockClient) GetCalls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	calls := make([]Call, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// CallCount returns the number of calls made.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// LastCall returns the most recent call.
func (c *MockClient) LastCall() (Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.calls) == 0 {
		return Call{}, false
	}
	return c.calls[len(c.calls)-1], true
}

var _ Model = (*MockClient)(nil)
