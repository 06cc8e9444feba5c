package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// AlertWriter stores alerts and fans them out to a sink.
//
// An alert for the same (type, vehicle, related_date) is never stored twice.
// With a non-zero Cooldown, an alert is also suppressed when one of the same
// type for the same vehicle was raised within Cooldown days before it.
type AlertWriter struct {
	Store    AlertStore
	Sink     AlertSink
	Cooldown int // days
	Now      func() time.Time
}

func NewAlertWriter(store AlertStore, sink AlertSink) *AlertWriter {
	return &AlertWriter{Store: store, Sink: sink, Now: time.Now}
}

// Emit stores the alert unless it is a duplicate. It reports whether the
// alert was stored. Sink failures are logged, not returned.
func (w *AlertWriter) Emit(ctx context.Context, a Alert) (bool, error) {
	dup, err := w.isDuplicate(ctx, a)
	if err != nil {
		return false, err
	}
	if dup {
		log.Printf("[Anomaly] %s alert for %s on %s suppressed (already raised)", a.Type, a.Vehicle, a.RelatedDate)
		return false, nil
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AlertUnhandled
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = w.now()
	}
	if err := w.Store.InsertAlert(ctx, a); err != nil {
		return false, fmt.Errorf("save %s alert for %s: %w", a.Type, a.Vehicle, err)
	}

	if w.Sink != nil {
		if err := w.Sink.Publish(ctx, a); err != nil {
			log.Printf("[Anomaly] publish alert %s: %v", a.ID, err)
		}
	}
	return true, nil
}

// Resolve records how an operator handled an alert.
func (w *AlertWriter) Resolve(ctx context.Context, id string, status AlertStatus, remark string) (*Alert, error) {
	if status != AlertHandled && status != AlertUnhandled {
		return nil, fmt.Errorf("invalid alert status %q", status)
	}
	a, err := w.Store.UpdateAlertStatus(ctx, id, status, remark, w.now())
	if err != nil {
		return nil, fmt.Errorf("update alert %s: %w", id, err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	return a, nil
}

func (w *AlertWriter) isDuplicate(ctx context.Context, a Alert) (bool, error) {
	from := a.RelatedDate.AddDays(-w.Cooldown)
	if w.Cooldown < 0 {
		from = a.RelatedDate
	}
	to := a.RelatedDate
	ref := a.Vehicle
	existing, err := w.Store.FindAlerts(ctx, AlertFilter{
		Type:    a.Type,
		Vehicle: &ref,
		From:    &from,
		To:      &to,
	})
	if err != nil {
		return false, fmt.Errorf("check existing alerts: %w", err)
	}
	return len(existing) > 0, nil
}

func (w *AlertWriter) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
