package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"auxrewards/config"
)

type client struct {
	endpoint   string
	adminToken string
	http       *http.Client
}

func newClient(cfg *config.Config) *client {
	return &client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		adminToken: cfg.AdminToken(),
		http:       &http.Client{},
	}
}

func (c *client) submit(ctx context.Context, body claim) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/v1/claims", body, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) admin(ctx context.Context, method, path string, out any) error {
	if c.adminToken == "" {
		return fmt.Errorf("admin token not configured; set AdminTokenEnv")
	}
	return c.do(ctx, method, path, nil, c.adminToken, out)
}

func (c *client) do(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%s: %s (HTTP %d)", apiErr.Code, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}
