package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	cfg "github.com/evilmartians/asyncworker/config"
)

// Client delivers task payloads to the configured remote endpoint.
// It controls the number of parallel connections made.
type Client struct {
	client *http.Client

	remoteURL string
}

func NewClient(config *cfg.Config) (*Client, error) {
	remoteURL, err := url.Parse(config.Forward.RemoteUrl)
	if err != nil {
		return nil, err
	}
	if remoteURL.Host == "" {
		return nil, fmt.Errorf("forward remote_url is required")
	}

	if config.Forward.NumClients < 1 {
		return nil, fmt.Errorf("number of clients must be >= 1")
	}

	log.WithFields(log.Fields{
		"remote_url":      config.Forward.RemoteUrl,
		"max_open_fd":     config.Forward.NumClients,
		"request_timeout": config.Forward.RequestTimeout,
	}).Info("Initializing forwarder")

	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Limit open file descriptors
	transport.MaxConnsPerHost = config.Forward.NumClients
	transport.MaxIdleConnsPerHost = config.Forward.NumClients

	return &Client{
		client: &http.Client{
			Timeout:   config.Forward.RequestTimeout,
			Transport: transport,
		},
		remoteURL: remoteURL.String(),
	}, nil
}

func (c *Client) Name() string {
	return "forwarder"
}

// Process delivers one task payload to the remote endpoint.
func (c *Client) Process(ctx context.Context, taskID string, payload json.RawMessage) error {
	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.remoteURL, bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("creating request: %s", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Task-Id", taskID)
	httpReq.Close = true

	return c.do(httpReq, taskID)
}

// Performs the HTTP request.
func (c *Client) do(r *http.Request, taskID string) error {
	log.WithFields(log.Fields{
		"url":     r.URL.String(),
		"task_id": taskID,
	}).Info("delivering...")

	resp, err := c.client.Do(r)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}

	log.WithFields(log.Fields{
		"url":     r.URL.String(),
		"task_id": taskID,
		"status":  resp.StatusCode,
	}).Info("...done")

	if resp.StatusCode > 299 {
		return fmt.Errorf("response %d", resp.StatusCode)
	}

	return nil
}
