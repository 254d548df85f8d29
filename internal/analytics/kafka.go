package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/hooks"
	"github.com/soyeahso/chatdesk/internal/logging"
)

const publisherName = "analytics.kafka"

// streamEvents are forwarded to Kafka. Gateway start/stop stay local.
var streamEvents = func() []string {
	var out []string
	for _, e := range hooks.AllEvents {
		if e != hooks.EventGatewayStart && e != hooks.EventGatewayStop {
			out = append(out, e)
		}
	}
	return out
}()

// Record is one event on the chat topic.
type Record struct {
	Event     string          `json:"event"`
	SessionID int64           `json:"session_id"`
	At        time.Time       `json:"at"`
	Session   *domain.Session `json:"session,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
}

// NewSaramaConfig builds the producer configuration. SASL/PLAIN is used
// when a username and password are configured.
func NewSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.ClientID = "chatdesk"
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	// one session's events stay ordered on one partition
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	if cfg.Username != "" && cfg.Password != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = cfg.Username
		sc.Net.SASL.Password = cfg.Password
		sc.Net.SASL.Handshake = true
	}
	return sc
}

// KafkaPublisher streams chat lifecycle events to a topic, keyed by
// session ID.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
	log      *logging.Logger
}

// NewKafkaPublisher connects a sync producer to the configured brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, log *logging.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log *logging.Logger) *KafkaPublisher {
	if topic == "" {
		topic = config.DefaultKafkaTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic, now: time.Now, log: log.Sub("kafka")}
}

// Register subscribes the publisher to every chat lifecycle event.
func (k *KafkaPublisher) Register(m *hooks.Manager) {
	for _, event := range streamEvents {
		m.On(event, publisherName, k.Publish)
	}
}

// Unregister removes the publisher's handlers. Call it before Close so no
// event reaches a closed producer.
func (k *KafkaPublisher) Unregister(m *hooks.Manager) {
	for _, event := range streamEvents {
		m.Off(event, publisherName)
	}
}

// Publish sends one hook event. It is a hooks.Handler.
func (k *KafkaPublisher) Publish(_ context.Context, p hooks.Payload) error {
	rec := Record{Event: p.Event, At: k.now().UTC()}
	if sess, ok := p.Data[hooks.DataSession].(*domain.Session); ok && sess != nil {
		rec.Session = sess
		rec.SessionID = sess.ID
	}
	if msg, ok := p.Data[hooks.DataMessage].(*domain.Message); ok && msg != nil {
		rec.Message = msg
		rec.SessionID = msg.SessionID
	}
	if id, ok := p.Data[hooks.DataSessionID].(int64); ok {
		rec.SessionID = id
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.Event, err)
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(rec.SessionID, 10)),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.Event, err)
	}
	k.log.Debug().
		Str("event", p.Event).
		Int64("session", rec.SessionID).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("chat event published")
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
