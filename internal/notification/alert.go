package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrQueueFull = errors.New("alert queue full")

// Alert is what administrators receive for high and critical assessments.
type Alert struct {
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	UserID     string    `json:"user_id"`
	Command    string    `json:"command"`
	Categories []string  `json:"risk_categories"`
	Reasoning  string    `json:"reasoning"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action_taken"`
}

const TypeSecurityAlert = "security_alert"

type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	n.logger.WarnContext(ctx, "SECURITY ALERT",
		"severity", alert.Severity,
		"user_id", alert.UserID,
		"categories", alert.Categories,
		"action_taken", alert.Action)
	return nil
}

// Fanout delivers to every notifier and returns the joined errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
