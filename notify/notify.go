/*
Package notify pushes stored alerts to other systems.

  NATS     publishes each alert as JSON on <prefix>.<alert_type>, e.g.
           "settlement.alert.fuel". Dashboards subscribe to
           "settlement.alert.>" for all of them.
  Discard  drops alerts; used when no broker is configured.
*/
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/minefleet/settlement-engine/settlement"
)

const DefaultSubjectPrefix = "settlement.alert"

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

var _ Conn = (*nats.Conn)(nil)

// Message is the wire form of an alert.
type Message struct {
	ID            string         `json:"id"`
	AlertType     string         `json:"alert_type"`
	MachineryType string         `json:"machinery_type"`
	VehicleNo     string         `json:"vehicle_no"`
	Content       string         `json:"content"`
	Severity      string         `json:"severity"`
	RelatedDate   string         `json:"related_date"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func Encode(a settlement.Alert) ([]byte, error) {
	return json.Marshal(Message{
		ID:            a.ID,
		AlertType:     string(a.Type),
		MachineryType: string(a.Vehicle.MachineryType),
		VehicleNo:     a.Vehicle.VehicleNo,
		Content:       a.Content,
		Severity:      string(a.Severity),
		RelatedDate:   a.RelatedDate.String(),
		Payload:       a.Payload,
		CreatedAt:     a.CreatedAt,
	})
}

func Subject(prefix string, t settlement.AlertType) string {
	return prefix + "." + string(t)
}

type NATS struct {
	conn   Conn
	prefix string
}

func NewNATS(conn Conn, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{conn: conn, prefix: prefix}
}

func (n *NATS) Publish(_ context.Context, a settlement.Alert) error {
	data, err := Encode(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.ID, err)
	}
	if err := n.conn.Publish(Subject(n.prefix, a.Type), data); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}

type Discard struct{}

func (Discard) Publish(context.Context, settlement.Alert) error { return nil }
