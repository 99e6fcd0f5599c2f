// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Client is an evaluator connection to a predictor. Calls are serialized.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	limits FrameLimits
}

// Dial connects to a predictor at a TCP address.
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("predictor: dial %s: %w", address, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, limits: DefaultFrameLimits()}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Exchange sends one raw payload and returns the raw reply. The context
// deadline, if any, applies to both directions.
func (c *Client) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := WriteFrame(c.conn, payload); err != nil {
		return nil, err
	}
	reply, err := ReadFrame(c.conn, c.limits)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("predictor: reading reply: %w", err)
	}
	return reply, nil
}

// Result is a decoded prediction reply: either Response or Errors is set.
type Result struct {
	Response *Response
	Errors   map[ErrorClass][]string
	Raw      []byte
}

// Failed reports whether the predictor answered with an error report.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// Predict sends req, which may be a *Request or any JSON-encodable value,
// and decodes the reply.
func (c *Client) Predict(ctx context.Context, req any) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("predictor: encoding request: %w", err)
	}
	raw, err := c.Exchange(ctx, payload)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw)
}

func decodeResult(raw []byte) (*Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("predictor: decoding reply: %w", err)
	}
	result := &Result{Raw: raw}
	for _, class := range []ErrorClass{ClassBadRequest, ClassRequestFailed} {
		msgs, ok := top[string(class)]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(msgs, &list); err != nil {
			return nil, fmt.Errorf("predictor: decoding %s: %w", class, err)
		}
		if result.Errors == nil {
			result.Errors = make(map[ErrorClass][]string)
		}
		result.Errors[class] = list
	}
	if result.Failed() {
		return result, nil
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("predictor: decoding response: %w", err)
	}
	result.Response = &resp
	return result, nil
}

// Help asks for the help document and returns it as sent.
func (c *Client) Help(ctx context.Context) ([]byte, error) {
	return c.Exchange(ctx, []byte(`{"request":"help"}`))
}
