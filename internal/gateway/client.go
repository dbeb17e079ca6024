// Package gateway is the HTTP client for the chat-platform agent, the
// external collaborator that holds the platform sessions and performs
// message operations on our behalf. It implements the narrow interfaces
// the search and relay engines are built against.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mediafinder/backend/internal/config"
	"github.com/mediafinder/backend/internal/models"
	"github.com/mediafinder/backend/internal/services"
)

// Client talks to the agent's JSON API. One instance is shared by all
// requests; the underlying http.Client handles connection pooling.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SearchMessages queries one source channel for media messages matching
// the query text, using the agent's read identity
func (c *Client) SearchMessages(ctx context.Context, channelID int64, queryText string, limit int) ([]models.ChannelMessage, error) {
	var resp struct {
		Messages []models.ChannelMessage `json:"messages"`
	}
	err := c.post(ctx, "/messages/search", map[string]any{
		"channelId": channelID,
		"query":     queryText,
		"limit":     limit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// GetMessage fetches the current state of one message, using the
// agent's read identity. A deleted or inaccessible message is an error.
func (c *Client) GetMessage(ctx context.Context, channelID, messageID int64) (*models.ChannelMessage, error) {
	var resp struct {
		Message *models.ChannelMessage `json:"message"`
	}
	err := c.post(ctx, "/messages/get", map[string]any{
		"channelId": channelID,
		"messageId": messageID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// CopyMessage re-sends a message's media into another chat without a
// forward header, using the agent's delivery identity
func (c *Client) CopyMessage(ctx context.Context, toChat, fromChat, messageID int64, caption string) (*models.MessageRef, error) {
	return c.moveMessage(ctx, "/messages/copy", map[string]any{
		"toChat":    toChat,
		"fromChat":  fromChat,
		"messageId": messageID,
		"caption":   caption,
	})
}

// ForwardMessage forwards a message into another chat, keeping its
// forward header
func (c *Client) ForwardMessage(ctx context.Context, toChat, fromChat, messageID int64) (*models.MessageRef, error) {
	return c.moveMessage(ctx, "/messages/forward", map[string]any{
		"toChat":    toChat,
		"fromChat":  fromChat,
		"messageId": messageID,
	})
}

// DeleteMessage removes a message from a chat
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.post(ctx, "/messages/delete", map[string]any{
		"chatId":    chatID,
		"messageId": messageID,
	}, nil)
}

// Notify sends or edits the progress message shown to a requester. The
// agent answers 304 when the text did not change, which the relay treats
// as success.
func (c *Client) Notify(ctx context.Context, requesterID int64, text string) error {
	return c.post(ctx, "/notifications", map[string]any{
		"requesterId": requesterID,
		"text":        text,
	}, nil)
}

func (c *Client) moveMessage(ctx context.Context, path string, body map[string]any) (*models.MessageRef, error) {
	var resp struct {
		Ref *models.MessageRef `json:"ref"`
	}
	if err := c.post(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Ref == nil {
		return nil, fmt.Errorf("agent returned no message reference")
	}
	return resp.Ref, nil
}

// post issues one JSON call against the agent. A 429 is translated into
// a RateLimitError carrying the agent's Retry-After; a 304 into
// ErrNoChanges.
func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return services.ErrNoChanges
	case resp.StatusCode == http.StatusTooManyRequests:
		return &services.RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 400:
		return agentError(path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode agent response: %w", err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds < 1 {
		return time.Second
	}
	return time.Duration(seconds) * time.Second
}

func agentError(path string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Errorf("agent call %s: %s (status %d)", path, body.Error, resp.StatusCode)
	}
	return fmt.Errorf("agent call %s: status %d", path, resp.StatusCode)
}
