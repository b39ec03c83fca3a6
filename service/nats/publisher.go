package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/craftmint/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing purchase events to NATS.
type Publisher interface {
	// PublishPurchase publishes a single purchase event to JetStream.
	// The event is published to the subject "purchases.{owner_account}".
	PublishPurchase(ctx context.Context, event *PurchaseEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes purchase events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for purchases.
	StreamName = "PURCHASES"

	// SubjectPrefix prefixes every purchase subject.
	SubjectPrefix = "purchases."

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + "*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour

	// DuplicateWindow is how long JetStream remembers message IDs. A purchase
	// republished within the window is dropped by the server.
	DuplicateWindow = 10 * time.Minute
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. m may be nil.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("craftmint-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Artifacts issued for verified payments",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Duplicates:  DuplicateWindow,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created", "stream", StreamName)
	return nil
}

// PublishPurchase publishes a single purchase event. The transaction
// reference is used as the message ID so retried deliveries are deduplicated.
func (p *JetStreamPublisher) PublishPurchase(ctx context.Context, event *PurchaseEvent) (err error) {
	subject := event.Subject()
	defer metrics.Timer(time.Now(), func(d float64) {
		if p.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			p.metrics.RecordNATSPublish(StreamSubjects, status, d)
		}
	})()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase event: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.TransactionReference))
	if err != nil {
		return fmt.Errorf("failed to publish purchase: %w", err)
	}

	p.logger.DebugContext(ctx, "published purchase event",
		"subject", subject,
		"transaction_reference", event.TransactionReference,
		"artifact_id", event.ArtifactID,
		"duplicate", ack.Duplicate,
	)

	return nil
}

// Close drains the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	p.logger.Info("NATS publisher closed")
	return nil
}
