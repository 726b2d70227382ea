package zapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const httpTimeout = 15 * time.Second

var httpClient = &http.Client{Timeout: httpTimeout}

// Client talks to the Z-API instance endpoint. Only the send-text call
// is wrapped; everything else arrives through the webhook.
type Client struct {
	baseURL     string
	clientToken string
}

func NewClient(baseURL, clientToken string) *Client {
	return &Client{baseURL: baseURL, clientToken: clientToken}
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendTextResponse struct {
	ZaapID    string `json:"zaapId"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
}

// SendText delivers a text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, phone, message string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("zapi base URL not configured")
	}

	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: message})
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/send-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientToken != "" {
		req.Header.Set("Client-Token", c.clientToken)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("zapi send-text returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed sendTextResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		logrus.Warnf("[ZAPI] unparseable send-text response: %v", err)
	}

	id := parsed.MessageID
	if id == "" {
		id = parsed.ID
	}
	if id == "" {
		id = parsed.ZaapID
	}
	return id, nil
}
