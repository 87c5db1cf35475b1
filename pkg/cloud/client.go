package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"verity-health/outpost/pkg/rules"
	"verity-health/outpost/pkg/store"
)

// Config contains configuration for the control-plane client.
type Config struct {
	// BaseURL is the control plane's base URL.
	BaseURL string

	// ClinicID identifies this edge node to the control plane.
	ClinicID string

	// PollTimeout is how long the control plane may hold a rule poll
	// open before answering "no update". Default: 30 seconds.
	PollTimeout time.Duration

	// ProbeTimeout bounds the health probe. Default: 5 seconds.
	ProbeTimeout time.Duration

	// DeliverTimeout bounds a single event delivery. Default: 10 seconds.
	DeliverTimeout time.Duration
}

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.PollTimeout == 0 {
		c.PollTimeout = 30 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.DeliverTimeout == 0 {
		c.DeliverTimeout = 10 * time.Second
	}
}

// Client talks to the control plane.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a control-plane client. A nil httpClient selects a
// default client; per-call deadlines come from contexts, not the
// client, so the long poll and the short probe can share it.
func NewClient(config Config, httpClient *http.Client) *Client {
	config.ApplyDefaults()
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		config: config,
		http:   httpClient,
		logger: slog.Default().With("component", "cloud.client"),
	}
}

// pollRequest is the body of a rule poll.
type pollRequest struct {
	CurrentVersion string `json:"currentVersion"`
	ClinicID       string `json:"clinicId"`
}

// PollRules asks the control plane for a rule set newer than
// currentVersion. The request is a long poll: the server holds it open
// up to PollTimeout; the client enforces a hard deadline slightly past
// that so a stuck connection is aborted rather than waited on.
//
// A nil update with a nil error means "no update"; a 204 and a server
// timeout resolve identically.
func (c *Client) PollRules(ctx context.Context, currentVersion string) (*rules.RuleUpdate, error) {
	// Hard client-side deadline: server timeout plus grace.
	ctx, cancel := context.WithTimeout(ctx, c.config.PollTimeout+5*time.Second)
	defer cancel()

	body, err := json.Marshal(pollRequest{
		CurrentVersion: currentVersion,
		ClinicID:       c.config.ClinicID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode poll request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/edge/rules/poll", body)
	if err != nil {
		return nil, &TransportError{Op: "poll", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var update rules.RuleUpdate
		if err := json.NewDecoder(resp.Body).Decode(&update); err != nil {
			return nil, &TransportError{Op: "poll", Err: fmt.Errorf("failed to decode rule update: %w", err)}
		}
		return &update, nil

	case http.StatusNoContent, http.StatusNotModified, http.StatusRequestTimeout:
		return nil, nil

	default:
		return nil, &TransportError{Op: "poll", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// Probe performs a bounded reachability check and returns the measured
// latency. It is independent of rule polling.
func (c *Client) Probe(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, "/edge/health", nil)
	if err != nil {
		return 0, &TransportError{Op: "probe", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &TransportError{Op: "probe", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return time.Since(start), nil
}

// Deliver sends one queued item to the control plane.
// A 2xx means delivered; a 4xx means the control plane rejected the
// payload (ErrRejected, wrapped); anything else is a retryable
// transport error.
func (c *Client) Deliver(ctx context.Context, item store.QueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.DeliverTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/edge/events/"+string(item.Kind), item.Payload)
	if err != nil {
		return &TransportError{Op: "deliver", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: control plane returned %d for %s %s",
			ErrRejected, resp.StatusCode, item.Kind, item.ID)
	default:
		return &TransportError{Op: "deliver", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// do performs a single HTTP request against the control plane.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Clinic-ID", c.config.ClinicID)

	return c.http.Do(req)
}
