package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	natspkg "github.com/brojonat/craftmint/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SSEPublisher relays purchase events from JetStream to Server-Sent Events clients.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("craftmint-sse-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// streamFilter returns the JetStream subject filter for an owner, or for
// every owner when owner is empty.
func streamFilter(owner string) (subject, desc string) {
	if owner == "" {
		return natspkg.StreamSubjects, "all owners"
	}
	return natspkg.SubjectPrefix + owner, owner
}

// writeSSE writes one event and flushes it to the client.
func writeSSE(w http.ResponseWriter, event string, data []byte) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return http.NewResponseController(w).Flush()
}

// handleStreamPurchases streams purchase events over SSE. Without an
// ownerAccount path value it streams purchases for every owner.
func handleStreamPurchases(publisher *SSEPublisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(r.Context(), logger)
		owner := r.PathValue("ownerAccount")
		if owner != "" {
			if err := validateAddress(owner); err != nil {
				writeError(w, err.Error(), "invalid_request", http.StatusBadRequest)
				return
			}
		}
		subject, ownerDesc := streamFilter(owner)

		// Streams outlive the server's write timeout.
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		_ = rc.Flush()

		logger.DebugContext(r.Context(), "SSE client connected",
			"owner", ownerDesc,
			"remote_addr", r.RemoteAddr,
		)

		// Ephemeral consumer, only new messages
		cons, err := publisher.js.CreateOrUpdateConsumer(r.Context(), natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create consumer",
				"owner", ownerDesc,
				"error", err,
			)
			writeSSE(w, "error", []byte(`{"error":"failed to subscribe"}`))
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgChan <- msg:
				case <-r.Context().Done():
				}
			})
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to start consuming messages", "error", err)
				return
			}
			<-r.Context().Done()
			cc.Stop()
		}()

		hello, _ := json.Marshal(map[string]string{"owner": ownerDesc})
		if err := writeSSE(w, "connected", hello); err != nil {
			return
		}

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				if err := rc.Flush(); err != nil {
					return
				}

			case msg := <-msgChan:
				var event natspkg.PurchaseEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(r.Context(), "failed to unmarshal event", "error", err)
					msg.Ack()
					continue
				}

				// Re-encode so only known fields reach the client.
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal event", "error", err)
					msg.Ack()
					continue
				}

				if err := writeSSE(w, "purchase", data); err != nil {
					logger.DebugContext(r.Context(), "SSE write failed", "error", err)
					return
				}
				msg.Ack()

				logger.DebugContext(r.Context(), "sent purchase event",
					"owner", event.OwnerAccount,
					"transaction_reference", event.TransactionReference,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"owner", ownerDesc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				return
			}
		}
	})
}
