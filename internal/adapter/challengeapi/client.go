// Package challengeapi is the HTTP client for the challenge platform.
package challengeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"
)

const DefaultTimeout = 30 * time.Second

// Client is safe for concurrent use by all missions of a campaign.
type Client struct {
	BaseURL string
	Key     string
	HTTP    *http.Client
}

func New(baseURL, key string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Key:     key,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Code)
}

type challengesResponse struct {
	CurrentStage string            `json:"current_stage"`
	Challenges   []domain.WorkItem `json:"challenges"`
}

type answerRequest struct {
	Code   string `json:"challenge_code"`
	Answer string `json:"answer"`
}

// ListWorkItems fetches GET /api/v1/challenges.
func (c *Client) ListWorkItems(ctx context.Context) ([]domain.WorkItem, error) {
	var resp challengesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/challenges", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Challenges, nil
}

func (c *Client) GetHint(ctx context.Context, code string) (domain.Hint, error) {
	var h domain.Hint
	err := c.do(ctx, http.MethodGet, "/api/v1/hint/"+url.PathEscape(code), nil, &h)
	return h, err
}

func (c *Client) SubmitAnswer(ctx context.Context, code, answer string) (domain.AnswerResult, error) {
	var res domain.AnswerResult
	err := c.do(ctx, http.MethodPost, "/api/v1/answer", answerRequest{Code: code, Answer: answer}, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.Key)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(data, &e)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Detail: e.Detail}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

var _ domain.ChallengeAPI = (*Client)(nil)
