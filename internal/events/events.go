// Package events fans audit-log entries out to an MQTT broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// Event describes one audited mutation.
type Event struct {
	Resource       string          `json:"resource"`
	OrganisationID string          `json:"organisationId"`
	RecordID       string          `json:"recordId"`
	Code           string          `json:"code,omitempty"`
	Entry          models.AuditLog `json:"entry"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Topic returns "<prefix>/<organisationId>/<resource>".
func Topic(prefix string, ev Event) string {
	parts := []string{ev.OrganisationID, ev.Resource}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append([]string{p}, parts...)
	}
	return strings.Join(parts, "/")
}

// publishClient is the part of mqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type MQTTPublisher struct {
	client  publishClient
	prefix  string
	timeout time.Duration
}

// NewMQTTPublisher wraps an already connected client.
func NewMQTTPublisher(client mqtt.Client, prefix string) *MQTTPublisher {
	return newMQTTPublisher(client, prefix)
}

func newMQTTPublisher(client publishClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, timeout: 5 * time.Second}
}

// Connect dials the broker with auto-reconnect enabled.
func Connect(broker, clientID string) (mqtt.Client, error) {
	if clientID == "" {
		clientID = fmt.Sprintf("fleet-maintenance-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return client, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := Topic(p.prefix, ev)
	token := p.client.Publish(topic, 1, false, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("publish %s: timed out", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Emit publishes and logs failures. Audit delivery never fails a request.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		log.WithFields(log.Fields{
			"resource":       ev.Resource,
			"organisationId": ev.OrganisationID,
			"recordId":       ev.RecordID,
			"action":         ev.Entry.Action,
		}).WithError(err).Warn("Failed to publish audit event")
	}
}
