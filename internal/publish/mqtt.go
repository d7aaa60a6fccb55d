// Package publish sends session records to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/statistics"
)

const publishTimeout = 2 * time.Second

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options configure the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// Status is the retained summary sent on every session transition.
type Status struct {
	SessionStatus     string    `json:"session_status"`
	SessionType       string    `json:"session_type"`
	WorkoutStepNumber int       `json:"workout_step_number"`
	Timestamp         time.Time `json:"timestamp"`
}

// Publisher sends the metrics record of every stroke and session transition
// to <prefix>/metrics and a retained Status to <prefix>/status.
type Publisher struct {
	client Client
	prefix string
	close  func()
}

func NewPublisher(client Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix, close: func() {}}
}

// Connect dials the broker and returns a publisher owning the connection.
func Connect(opts Options) (*Publisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	monitoring.Infof("mqtt: connected to %s", opts.Broker)
	p := NewPublisher(client, opts.TopicPrefix)
	p.close = func() { client.Disconnect(250) }
	return p, nil
}

func (p *Publisher) MetricsTopic() string { return p.prefix + "/metrics" }
func (p *Publisher) StatusTopic() string  { return p.prefix + "/status" }

// ShouldPublish reports whether rec is a stroke or a session transition.
func ShouldPublish(rec statistics.Metrics) bool {
	ctx := rec.Context
	return (ctx.IsMoving && ctx.IsDriveStart) || isTransition(ctx)
}

func isTransition(ctx statistics.Context) bool {
	return ctx.IsSessionStart || ctx.IsIntervalStart || ctx.IsSplitEnd ||
		ctx.IsPauseStart || ctx.IsPauseEnd || ctx.IsSessionStop
}

// Publish sends rec when ShouldPublish selects it.
func (p *Publisher) Publish(rec statistics.Metrics) error {
	if !ShouldPublish(rec) {
		return nil
	}
	if err := p.send(p.MetricsTopic(), false, rec); err != nil {
		return err
	}
	if !isTransition(rec.Context) {
		return nil
	}
	return p.send(p.StatusTopic(), true, Status{
		SessionStatus:     rec.SessionStatus,
		SessionType:       rec.SessionType,
		WorkoutStepNumber: rec.WorkoutStepNumber,
		Timestamp:         rec.Timestamp,
	})
}

func (p *Publisher) send(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal error (%s): %w", topic, err)
	}
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Run publishes records until ctx is done or metrics is closed. Publish
// errors are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, metrics <-chan statistics.Metrics) error {
	defer p.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-metrics:
			if !ok {
				return nil
			}
			if err := p.Publish(rec); err != nil {
				monitoring.Warnf("mqtt: %v", err)
			}
		}
	}
}
