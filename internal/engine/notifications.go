package engine

import (
	"context"
	"fmt"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/notify"
)

// notifyWorker makes one delivery attempt and audits the outcome.
func (e Engine) notifyWorker(ctx context.Context, actorID string, worker domain.User, message string) notify.Result {
	if e.Notifier == nil || worker.PhoneNumber == "" {
		e.Audit.Record(ctx, actorID, domain.ActionSMSFailed,
			fmt.Sprintf("SMS to %s not sent: no phone number or notifier", worker.Username))
		return notify.Result{}
	}
	res, err := e.Notifier.Notify(ctx, worker.PhoneNumber, message)
	e.auditDelivery(ctx, actorID, worker.Username, res, err)
	return res
}

func (e Engine) auditDelivery(ctx context.Context, actorID, who string, res notify.Result, err error) {
	switch {
	case err != nil:
		e.Logger.Warn("engine: notification rejected", "recipient", who, "error", err)
		e.Audit.Record(ctx, actorID, domain.ActionSMSFailed, fmt.Sprintf("SMS to %s failed: %v", who, err))
	case res.Delivered:
		detail := fmt.Sprintf("SMS sent to %s (%s)", who, res.Recipient)
		if res.ProviderRef != "" {
			detail += ": " + res.ProviderRef
		}
		e.Audit.Record(ctx, actorID, domain.ActionSMSSent, detail)
	default:
		e.Logger.Warn("engine: notification not delivered", "recipient", who, "status", res.Status)
		e.Audit.Record(ctx, actorID, domain.ActionSMSFailed, fmt.Sprintf("SMS to %s failed: %s", who, res.Status))
	}
}

// SendSMS sends an ad hoc message. The recipient may be a worker username or
// a phone number.
func (e Engine) SendSMS(ctx context.Context, actorID, recipient, message string) (notify.Result, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return notify.Result{}, domain.NewValidationError("recipient", "recipient is required")
	}
	if strings.TrimSpace(message) == "" {
		return notify.Result{}, domain.NewValidationError("message", "message is required")
	}
	if e.Notifier == nil {
		return notify.Result{}, fmt.Errorf("no notifier configured")
	}
	who, phone := recipient, recipient
	if u, err := e.Repo.GetUser(ctx, nil, recipient); err == nil {
		who, phone = u.Username, u.PhoneNumber
	}
	res, err := e.Notifier.Notify(ctx, phone, message)
	e.auditDelivery(ctx, actorID, who, res, err)
	if err != nil {
		return notify.Result{}, err
	}
	return res, nil
}
