package daylinesdk

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
)

// Client is a minimal Dayline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Status mirrors the scheduler status payload.
type Status struct {
	Phase       string         `json:"phase"`
	Paused      bool           `json:"paused"`
	RunningUnit string         `json:"running_unit,omitempty"`
	QueueDepths map[string]int `json:"queue_depths"`
	UnitCounts  map[string]int `json:"unit_counts"`
	Budget      Budget         `json:"budget"`
}

// Budget is the ledger snapshot.
type Budget struct {
	Day        string             `json:"day"`
	LimitUSD   float64            `json:"daily_limit_usd"`
	SpentUSD   float64            `json:"spent_usd"`
	ByCategory map[string]float64 `json:"spent_by_category"`
}

// WorkUnit represents the API work unit model.
type WorkUnit struct {
	ID          string `json:"id"`
	TemplateID  string `json:"template_id"`
	TargetPhase string `json:"target_phase"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	QueuedAt    string `json:"queued_at"`
}

// ActionResult is one per-action outcome inside a summary.
type ActionResult struct {
	ActionID string  `json:"action_id"`
	Success  bool    `json:"success"`
	Output   string  `json:"output,omitempty"`
	CostUSD  float64 `json:"cost_usd"`
	Error    string  `json:"error,omitempty"`
}

// WorkSummary is the persisted outcome record of one unit.
type WorkSummary struct {
	WorkUnitID    string         `json:"work_unit_id"`
	TemplateID    string         `json:"template_id"`
	Phase         string         `json:"phase"`
	StartedAt     string         `json:"started_at"`
	CompletedAt   string         `json:"completed_at"`
	Success       bool           `json:"success"`
	Error         *string        `json:"error,omitempty"`
	ActualCost    float64        `json:"actual_cost_usd"`
	ActionResults []ActionResult `json:"action_results"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c *Client) do(ctx context.Context, method, p string, query url.Values, body, out any) error {
	base := strings.TrimRight(c.BaseURL, "/")
	u := base + p
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Status fetches the scheduler status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/v0/status", nil, nil, &st)
	return st, err
}

// Summaries lists work summaries, optionally filtered by phase.
func (c *Client) Summaries(ctx context.Context, phase string, limit int) ([]WorkSummary, error) {
	q := url.Values{}
	if phase != "" {
		q.Set("phase", phase)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out []WorkSummary
	err := c.do(ctx, http.MethodGet, "/v0/summaries", q, nil, &out)
	return out, err
}

// Enqueue instantiates a template for a phase.
func (c *Client) Enqueue(ctx context.Context, templateID, phase string, priority int) (WorkUnit, error) {
	req := map[string]any{"template_id": templateID, "phase": phase}
	if priority != 0 {
		req["priority"] = priority
	}
	var out WorkUnit
	err := c.do(ctx, http.MethodPost, "/v0/units", nil, req, &out)
	return out, err
}

// Cancel requests cancellation of a unit.
func (c *Client) Cancel(ctx context.Context, unitID string) error {
	return c.do(ctx, http.MethodPost, "/v0/units/"+url.PathEscape(unitID)+"/cancel", nil, nil, nil)
}
