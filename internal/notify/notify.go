// Package notify delivers governance notifications. Delivery is
// fire-and-forget: a sink failure is logged and never aborts the
// governance logic that raised it.
package notify

import (
	"context"
	"log"
)

// Severity levels accepted by sinks.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message is one notification.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"message"`
	SKUCode  string   `json:"sku_id"`
}

// Sink accepts notifications.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// LogSink writes notifications to the process log. Default sink when no
// broker is configured.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, msg Message) error {
	log.Printf("[notify] %s sku=%s: %s", msg.Severity, msg.SKUCode, msg.Text)
	return nil
}

// Send delivers msg and logs any sink error. Callers use this instead of
// calling the sink directly so failures stay non-fatal everywhere.
func Send(ctx context.Context, sink Sink, msg Message) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, msg); err != nil {
		log.Printf("[notify] deliver %s for sku %s: %v", msg.Severity, msg.SKUCode, err)
	}
}
