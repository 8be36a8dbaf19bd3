// Package cliclient is psbcctl's thin HTTP client for the Bridge's legacy
// dialect (spec §4.5), grounded on the same request/response envelope
// bridge/legacy.go speaks server-side.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to one psbcd instance's Bridge endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *envelopeError  `json:"error"`
}

type envelopeError struct {
	Message        string          `json:"message"`
	Code           json.RawMessage `json:"code"`
	AvailablePlots json.RawMessage `json:"available_plots"`
}

// Call invokes command with params and decodes the result into out (which
// may be nil if the caller doesn't need the payload).
func (c *Client) Call(ctx context.Context, command string, params, out any) error {
	body, err := json.Marshal(map[string]any{"command": command, "params": params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bridge", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("psbcd unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, raw)
	}
	if env.Error != nil {
		return fmt.Errorf("%s: %s", command, env.Error.Message)
	}
	if out != nil && len(env.Result) > 0 {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}
