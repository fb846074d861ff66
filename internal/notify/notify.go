package notify

import (
	"context"
	"log/slog"
	"strings"

	"fieldline/internal/domain"
)

// Result is the outcome of one delivery attempt. Delivered=false is a normal
// outcome, not an error.
type Result struct {
	Delivered   bool   `json:"delivered"`
	Recipient   string `json:"recipient"`
	ProviderRef string `json:"provider_ref,omitempty"`
	Status      string `json:"status,omitempty"`
	Raw         string `json:"raw,omitempty"`
}

// Notifier sends a message to a recipient. It returns an error only when the
// recipient address is malformed; transport failures come back as
// Result{Delivered: false}.
type Notifier interface {
	Notify(ctx context.Context, recipient, message string) (Result, error)
}

// NormalizeRecipient rewrites a phone number into +<country><subscriber> form.
func NormalizeRecipient(raw, countryCode string) (string, error) {
	n := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(n, "+"):
		if !digitsOnly(n[1:]) {
			return "", domain.NewValidationError("recipient", "invalid phone number %q", raw)
		}
		return n, nil
	case countryCode != "" && strings.HasPrefix(n, countryCode):
		if !digitsOnly(n) || len(n) == len(countryCode) {
			return "", domain.NewValidationError("recipient", "invalid phone number %q", raw)
		}
		return "+" + n, nil
	case strings.HasPrefix(n, "0"):
		if !digitsOnly(n) || len(n) == 1 {
			return "", domain.NewValidationError("recipient", "invalid phone number %q", raw)
		}
		return "+" + countryCode + n[1:], nil
	}
	return "", domain.NewValidationError("recipient", "unsupported phone number format %q", raw)
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LogNotifier writes messages to the log instead of sending them. Used when
// no SMS endpoint is configured.
type LogNotifier struct {
	CountryCode string
	Logger      *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, recipient, message string) (Result, error) {
	to, err := NormalizeRecipient(recipient, n.CountryCode)
	if err != nil {
		return Result{}, err
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sms: transport disabled, message logged", "to", to, "message", message)
	return Result{Delivered: true, Recipient: to, Status: "Logged"}, nil
}
