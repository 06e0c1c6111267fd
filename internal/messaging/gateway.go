package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Gateway is the contract the broadcast pipeline needs from a messaging
// provider: one text to one E.164 number, returning the provider's id.
type Gateway interface {
	Name() string
	SendMessage(ctx context.Context, phone, text string) (string, error)
}

var ErrGatewayNotConfigured = errors.New("messaging gateway not configured")

// HTTPGateway posts JSON messages to a REST messaging provider.
type HTTPGateway struct {
	Endpoint string
	Token    string
	Sender   string
	Client   *http.Client
}

func (g *HTTPGateway) Name() string { return "http-gateway" }

type gatewayRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type gatewayResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (g *HTTPGateway) SendMessage(ctx context.Context, phone, text string) (string, error) {
	if g.Endpoint == "" {
		return "", backoff.Permanent(ErrGatewayNotConfigured)
	}
	body, err := json.Marshal(gatewayRequest{From: g.Sender, To: phone, Body: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.Endpoint, "/")+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var decoded gatewayResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("gateway temporary error: %s%s", resp.Status, reason(decoded))
	}
	if resp.StatusCode >= 400 {
		return "", backoff.Permanent(fmt.Errorf("gateway rejected message: %s%s", resp.Status, reason(decoded)))
	}
	if decoded.Error != "" {
		return "", backoff.Permanent(fmt.Errorf("gateway rejected message: %s", decoded.Error))
	}
	return decoded.ID, nil
}

func reason(r gatewayResponse) string {
	switch {
	case r.Error != "":
		return ": " + r.Error
	case r.Message != "":
		return ": " + r.Message
	default:
		return ""
	}
}
