package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldline/internal/config"
)

const defaultSMSTimeout = 15 * time.Second

// SMSGateway posts messages to an Africa's Talking compatible messaging API.
type SMSGateway struct {
	Endpoint    string
	Username    string
	APIKey      string
	SenderID    string
	CountryCode string
	Client      *http.Client
	Logger      *slog.Logger
}

func NewSMSGateway(cfg config.SMSConfig, logger *slog.Logger) *SMSGateway {
	return &SMSGateway{
		Endpoint:    cfg.Endpoint,
		Username:    cfg.Username,
		APIKey:      cfg.APIKey,
		SenderID:    cfg.SenderID,
		CountryCode: cfg.CountryCode,
		Client:      &http.Client{Timeout: cfg.Timeout()},
		Logger:      logger,
	}
}

type smsResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			Number     string `json:"number"`
			Status     string `json:"status"`
			StatusCode int    `json:"statusCode"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (g *SMSGateway) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *SMSGateway) Notify(ctx context.Context, recipient, message string) (Result, error) {
	to, err := NormalizeRecipient(recipient, g.CountryCode)
	if err != nil {
		return Result{}, err
	}
	res := Result{Recipient: to}
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: defaultSMSTimeout}
	}
	form := url.Values{}
	form.Set("username", g.Username)
	form.Set("to", to)
	form.Set("message", message)
	if g.SenderID != "" {
		form.Set("from", g.SenderID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		res.Status = "failed"
		res.Raw = err.Error()
		return res, nil
	}
	req.Header.Set("apiKey", g.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		g.logger().Warn("sms: transport error", "to", to, "error", err)
		res.Status = "failed"
		res.Raw = err.Error()
		return res, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	res.Raw = strings.TrimSpace(string(body))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger().Warn("sms: provider rejected message", "to", to, "status", resp.StatusCode)
		res.Status = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return res, nil
	}
	var parsed smsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		res.Status = "failed"
		return res, nil
	}
	recipients := parsed.SMSMessageData.Recipients
	if len(recipients) == 0 {
		res.Status = "failed"
		return res, nil
	}
	first := recipients[0]
	res.Status = first.Status
	res.ProviderRef = first.MessageID
	res.Delivered = accepted(first.Status, first.StatusCode)
	return res, nil
}

// accepted reports whether the provider queued or sent the message.
func accepted(status string, code int) bool {
	switch code {
	case 100, 101, 102:
		return true
	}
	return strings.EqualFold(status, "success")
}
