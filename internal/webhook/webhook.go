// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook executes the outbound WEBHOOK workflow step: builds the
// request, signs it when a secret is configured, sends it through
// pkg/httpclient, and optionally projects the JSON response through a jq
// expression into the step output's Data.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/jq"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/tracing"
	"github.com/driaug/plunk/pkg/httpclient"
)

// SignatureHeader carries the outbound HMAC signature
// (sha256=<hex>, verified via hmac.Equal on the receiving side).
const SignatureHeader = "X-Plunk-Signature"

// Caller executes WEBHOOK steps.
type Caller struct {
	client      *http.Client
	retryClient *http.Client
	jq          *jq.Executor
}

// New builds a Caller around a single client. client is typically produced
// by httpclient.New with the project's shared Config; pass nil to use
// httpclient.DefaultConfig(). Every call uses client as-is, so a
// WebhookConfig.RetryUnsafeMethods step only gets automatic retry if client
// was itself built with AllowNonIdempotentRetry — use NewWithRetryConfig to
// let that field actually vary per step.
func New(client *http.Client) (*Caller, error) {
	if client == nil {
		c, err := httpclient.New(httpclient.DefaultConfig())
		if err != nil {
			return nil, err
		}
		client = c
	}
	return &Caller{
		client: client,
		jq:     jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize),
	}, nil
}

// NewWithRetryConfig builds a Caller from cfg that honors each WEBHOOK
// step's own RetryUnsafeMethods choice: it builds two underlying clients,
// one with cfg.AllowNonIdempotentRetry left as given and one with it forced
// on, and Call picks between them per step instead of baking one retry
// policy in for every WEBHOOK step in the project.
func NewWithRetryConfig(cfg httpclient.Config) (*Caller, error) {
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	retryCfg := cfg
	retryCfg.AllowNonIdempotentRetry = true
	retryClient, err := httpclient.New(retryCfg)
	if err != nil {
		return nil, err
	}
	return &Caller{
		client:      client,
		retryClient: retryClient,
		jq:          jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize),
	}, nil
}

// Result is the outcome of Call, feeding a StepOutput. A WEBHOOK step
// completes on HTTP completion regardless of status code — only a
// network-level failure is an error — so OK/StatusCode are data for the
// caller to branch on, not a Go error.
type Result struct {
	StatusCode int
	OK         bool
	Projected  any
}

// Call sends the WEBHOOK step's configured request and returns its result.
// The outbound request carries the job's correlation ID (X-Correlation-ID)
// and W3C trace context headers, so a receiving service's logs can be
// joined back to the triggering execution.
// A transport failure (no response at all) is a *perr.ProviderError
// (transient — the queue's retry policy applies); a malformed config is a
// *perr.ValidationError (permanent). A non-2xx response is not an error.
func (c *Caller) Call(ctx context.Context, cfg domain.WebhookConfig) (*Result, error) {
	if cfg.URL == "" {
		return nil, &perr.ValidationError{Field: "url", Message: "webhook url is required"}
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	var bodyBytes []byte
	if cfg.Body != nil {
		b, err := json.Marshal(cfg.Body)
		if err != nil {
			return nil, &perr.ValidationError{Field: "body", Message: "webhook body is not JSON-serializable"}
		}
		bodyBytes = b
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &perr.ValidationError{Field: "url", Message: fmt.Sprintf("invalid webhook request: %v", err)}
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	tracing.InjectIntoRequest(ctx, req)
	tracing.InjectHTTPHeaders(ctx, req)
	if len(bodyBytes) > 0 {
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if cfg.Secret != "" {
			req.Header.Set(SignatureHeader, sign(cfg.Secret, bodyBytes))
		}
	}

	client := c.client
	if cfg.RetryUnsafeMethods && c.retryClient != nil {
		client = c.retryClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &perr.ProviderError{Provider: "webhook", Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &perr.ProviderError{Provider: "webhook", StatusCode: resp.StatusCode, Message: "failed to read response body", Cause: err}
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if cfg.ResponseQuery != "" && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var parsed any
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			projected, err := c.jq.Execute(ctx, cfg.ResponseQuery, parsed)
			if err != nil {
				return nil, &perr.ValidationError{Field: "responseQuery", Message: fmt.Sprintf("response projection failed: %v", err)}
			}
			result.Projected = projected
		}
	}
	return result, nil
}

// sign computes the outbound HMAC-SHA256 signature for a request body
// using the "sha256=<hex>" convention.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

