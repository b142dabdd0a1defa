package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/pkg/model"
)

// Client talks to the apron REST API. Every call sends its own
// X-Request-ID so a CLI invocation can be found in the server log.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates an apron API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

// envelope is the server's standard response wrapper.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// Queue returns the waiting flights in scheduling order.
func (c *Client) Queue(ctx context.Context) ([]model.Flight, error) {
	var flights []model.Flight
	_, err := c.call(ctx, http.MethodGet, "/api/v1/queue?order=priority", nil, &flights)
	return flights, err
}

// Admit puts a flight in the queue and returns it as the server stored it.
func (c *Client) Admit(ctx context.Context, req model.AdmitRequest) (*model.Flight, error) {
	var f model.Flight
	if _, err := c.call(ctx, http.MethodPost, "/api/v1/queue", req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Schedule gives the next flight a runway. runway is 1-based; 0 lets the
// server's policy choose.
func (c *Client) Schedule(ctx context.Context, runway int) (*scheduler.Assignment, error) {
	var a scheduler.Assignment
	if _, err := c.call(ctx, http.MethodPost, "/api/v1/schedule", model.ScheduleRequest{Runway: runway}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// AssignGate gives a landed arrival a gate. gate is 1-based; 0 is automatic.
func (c *Client) AssignGate(ctx context.Context, flightID string, gate int) (*scheduler.Assignment, error) {
	var a scheduler.Assignment
	path := "/api/v1/flights/" + url.PathEscape(flightID) + "/gate"
	if _, err := c.call(ctx, http.MethodPost, path, model.GateRequest{Gate: gate}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Units lists the runways or gates with their availability.
func (c *Client) Units(ctx context.Context, kind model.ResourceKind) ([]model.UnitStatus, error) {
	var units []model.UnitStatus
	_, err := c.call(ctx, http.MethodGet, "/api/v1/"+kind.String()+"s", nil, &units)
	return units, err
}

// Flights lists flights that left the queue and have not finished.
func (c *Client) Flights(ctx context.Context) ([]model.Flight, error) {
	var flights []model.Flight
	_, err := c.call(ctx, http.MethodGet, "/api/v1/flights", nil, &flights)
	return flights, err
}

// Movements reads one page of the movement journal, newest first.
func (c *Client) Movements(ctx context.Context, opts model.ListOptions) ([]model.Movement, *model.Pagination, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	if opts.FlightID != "" {
		q.Set("flight_id", opts.FlightID)
	}
	var moves []model.Movement
	env, err := c.call(ctx, http.MethodGet, "/api/v1/movements?"+q.Encode(), nil, &moves)
	if err != nil {
		return nil, nil, err
	}
	return moves, env.Pagination, nil
}

// call performs one request and decodes the envelope's data into out.
// An error envelope is returned as its *model.APIError.
func (c *Client) call(ctx context.Context, method, path string, body, out any) (*envelope, error) {
	target := c.BaseURL + path
	reqID := "cli_" + uuid.New().String()[:8]

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		c.Logger.Debug("HTTP request body", "request_id", reqID, "body", string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.Logger.Debug("HTTP request", "request_id", reqID, "method", method, "url", target)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "request_id", reqID, "status", resp.StatusCode, "body", string(respBody))

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}
	if env.Status == "error" && env.Error != nil {
		return &env, env.Error
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, fmt.Errorf("parse %s data: %w", path, err)
		}
	}
	return &env, nil
}
