package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/session"
)

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// BaseURLFromListen turns an api.listen address into a client URL.
func BaseURLFromListen(listen string) string {
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		return listen
	}
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen
}

func (c *Client) Status(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, &st)
	return st, err
}

func (c *Client) Messages(ctx context.Context, patientID string) ([]chat.Message, error) {
	var body struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/patients/"+patientID+"/messages", nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

func (c *Client) Start(ctx context.Context, patientID string) (session.Status, error) {
	var st session.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/session/start", map[string]string{"patient_id": patientID}, &st)
	return st, err
}

func (c *Client) Stop(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/session/stop", nil, &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
