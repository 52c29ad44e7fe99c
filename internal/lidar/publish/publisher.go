package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
	"github.com/banshee-data/nearfilter/internal/lidar/pipeline"
	"github.com/banshee-data/nearfilter/internal/monitoring"
)

// DefaultPrefix is the topic prefix when none is configured.
const DefaultPrefix = "nearfilter"

const publishTimeout = 2 * time.Second

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// RevolutionMessage is published to <prefix>/revolution.
type RevolutionMessage struct {
	RevolutionID uint64             `json:"revolution_id"`
	Source       string             `json:"source"`
	Timestamp    int64              `json:"timestamp"`
	Speed        float64            `json:"speed_deg_s"`
	Strict       bool               `json:"strict"`
	Points       []nearfilter.Point `json:"points"`
}

// StatsMessage is published, retained, to <prefix>/stats.
type StatsMessage struct {
	RevolutionID uint64             `json:"revolution_id"`
	Timestamp    int64              `json:"timestamp"`
	Stats        nearfilter.Stats   `json:"stats"`
	Summary      nearfilter.Summary `json:"summary"`
}

// Publisher implements pipeline.Sink over MQTT.
type Publisher struct {
	client Client
	prefix string
	qos    byte

	mu        sync.Mutex
	published int
	skipped   int
	offline   bool
}

// NewPublisher returns a publisher for client. An empty prefix selects
// DefaultPrefix. A nil client disables publishing.
func NewPublisher(client Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{client: client, prefix: prefix}
}

// RevolutionTopic returns the topic carrying kept points.
func (p *Publisher) RevolutionTopic() string { return p.prefix + "/revolution" }

// StatsTopic returns the topic carrying per-revolution statistics.
func (p *Publisher) StatsTopic() string { return p.prefix + "/stats" }

// Counts returns how many revolutions were published and how many were
// skipped while the broker was unreachable.
func (p *Publisher) Counts() (published, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.skipped
}

// RecordRevolution publishes res. While the client is disconnected
// revolutions are skipped without error so a broker outage never backs up
// the pipeline.
func (p *Publisher) RecordRevolution(ctx context.Context, res *pipeline.Result) error {
	if p.client == nil || !p.client.IsConnected() {
		p.mu.Lock()
		p.skipped++
		if !p.offline {
			monitoring.Logf("MQTT client not connected, skipping revolutions")
		}
		p.offline = true
		p.mu.Unlock()
		return nil
	}

	ts := res.ProcessedAt.Unix()
	rev := RevolutionMessage{
		RevolutionID: res.RevolutionID,
		Source:       res.Source,
		Timestamp:    ts,
		Speed:        res.Speed,
		Strict:       res.Strict,
		Points:       res.Kept,
	}
	if err := p.publish(ctx, p.RevolutionTopic(), false, rev); err != nil {
		return err
	}

	stats := StatsMessage{
		RevolutionID: res.RevolutionID,
		Timestamp:    ts,
		Stats:        res.Stats,
		Summary:      res.Summary,
	}
	if err := p.publish(ctx, p.StatsTopic(), true, stats); err != nil {
		return err
	}

	p.mu.Lock()
	p.published++
	if p.offline {
		monitoring.Logf("MQTT client reconnected after %d skipped revolutions", p.skipped)
	}
	p.offline = false
	p.mu.Unlock()
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, retain bool, msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to %s: timed out after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	monitoring.Debugf("published %d bytes to %s", len(payload), topic)
	return nil
}
