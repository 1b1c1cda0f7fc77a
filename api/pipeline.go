package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/solugarde-client/internal/errors"
	"github.com/jrsteele09/solugarde-client/internal/utils"
	"github.com/rs/zerolog/log"
)

// Attempt marks whether a request is being sent for the first time or resent after a refresh.
// A request is resent at most once.
type Attempt int

const (
	AttemptFirst Attempt = iota
	AttemptRetried
)

func (a Attempt) String() string {
	if a == AttemptRetried {
		return "retried"
	}
	return "first"
}

// Request describes one API call. Body is encoded again for every attempt.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Public requests carry no bearer token and never trigger a refresh
	Public bool
}

// Do sends req through the authenticated pipeline and decodes a 2xx response into out.
//
// The current access token is attached when one exists. A 401 on the first attempt asks the
// refresher for a new token and resends the request once with it. A 401 on the resent request,
// or a failed refresh, is reported to the unauthorized handler and returned. Every other error
// is returned unchanged without a retry.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if req.Public {
		return c.send(ctx, req, "", out)
	}
	return c.do(ctx, req, out, AttemptFirst, c.accessToken())
}

func (c *Client) do(ctx context.Context, req Request, out any, attempt Attempt, token string) error {
	err := c.send(ctx, req, token, out)
	if !isUnauthorizedResponse(err) {
		return err
	}

	if attempt == AttemptRetried {
		log.Warn().Str("method", req.Method).Str("path", req.Path).Msg("request rejected after refresh")
		c.unauthorized(err)
		return err
	}

	refresher := c.getRefresher()
	if refresher == nil {
		c.unauthorized(err)
		return err
	}

	newToken, refreshErr := refresher.RefreshAccessToken(ctx, token)
	if refreshErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.Path, ctx.Err())
		}
		err = fmt.Errorf("[Client.Do] %s %s: %w: %w", req.Method, req.Path, errors.ErrUnauthorized, refreshErr)
		c.unauthorized(err)
		return err
	}

	c.metrics.RequestRetried()
	log.Debug().Str("method", req.Method).Str("path", req.Path).Stringer("attempt", AttemptRetried).Msg("resending request with refreshed token")
	return c.do(ctx, req, out, AttemptRetried, newToken)
}

func isUnauthorizedResponse(err error) bool {
	var apiErr *errors.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// send performs a single HTTP exchange with no retry logic
func (c *Client) send(ctx context.Context, req Request, token string, out any) error {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("[Client.send] encode %s %s: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return fmt.Errorf("[Client.send] %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(headerRequestID, uuid.NewString())
	if token != "" {
		httpReq.Header.Set(headerAuthorization, bearerPrefix+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("[Client.send] %s %s: %w", req.Method, req.Path, ctx.Err())
		}
		return fmt.Errorf("[Client.send] %s %s: %w: %w", req.Method, req.Path, errors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("[Client.send] read %s %s: %w: %w", req.Method, req.Path, errors.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errors.APIError{
			Status:  resp.StatusCode,
			Method:  req.Method,
			Path:    req.Path,
			Message: serverMessage(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if s, ok := out.(*string); ok && !json.Valid(data) {
		*s = string(data)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("[Client.send] decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// serverMessage extracts the "message" field of an error body, falling back to "error".
// Validation errors may carry a list of messages.
func serverMessage(data []byte) string {
	var body struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	switch m := body.Message.(type) {
	case string:
		if m != "" {
			return m
		}
	case []any:
		if msgs := utils.ToStringSlice(m); len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return body.Error
}
