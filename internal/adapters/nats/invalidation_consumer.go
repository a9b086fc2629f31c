package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/application"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

const defaultSubject = "navi.case.updated"

// caseUpdatedEvent is the payload the slide platform publishes when a case's
// slide set changes on the source side.
type caseUpdatedEvent struct {
	CaseID string `json:"caseId"`
}

// InvalidationConsumer subscribes to case-updated events and drops the matching
// status cache entries, so source-side changes reach the read-mostly cache
// without waiting for the TTL. Invalidation is best-effort: a missed event
// only means the entry lives until its TTL expires, which is the design's
// baseline anyway. The consumer is optional and disabled when nats.url is empty.
type InvalidationConsumer struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger domain.Logger
	engine *application.ResolutionEngine
}

// NewInvalidationConsumer connects to NATS and subscribes to the configured
// case-updated subject. Returns (nil, no-op cleanup, nil) when NATS is not configured.
func NewInvalidationConsumer(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger, engine *application.ResolutionEngine) (*InvalidationConsumer, func(), error) {
	natsCfg := cfgProvider.Get().NATS
	if natsCfg.URL == "" {
		appLogger.Info(ctx, "NATS not configured; case-updated invalidation feed disabled")
		return nil, func() {}, nil
	}

	appName := cfgProvider.Get().App.ServiceName
	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-invalidation", appName)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			appLogger.Error(ctx, "NATS error", "subscription", subject, "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}
	appLogger.Info(ctx, "Successfully connected to NATS server", "url", nc.ConnectedUrl())

	consumer := &InvalidationConsumer{
		nc:     nc,
		logger: appLogger,
		engine: engine,
	}

	subject := natsCfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	sub, err := nc.Subscribe(subject, consumer.handleMessage)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	consumer.sub = sub
	appLogger.Info(ctx, "Subscribed to case-updated invalidation feed", "subject", subject)

	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		consumer.Close()
	}
	return consumer, cleanup, nil
}

func (c *InvalidationConsumer) handleMessage(msg *nats.Msg) {
	ctx := context.Background()

	var event caseUpdatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Warn(ctx, "Malformed case-updated event dropped", "subject", msg.Subject, "error", err.Error())
		return
	}
	if event.CaseID == "" {
		c.logger.Warn(ctx, "Case-updated event without caseId dropped", "subject", msg.Subject)
		return
	}

	if err := c.engine.InvalidateCase(ctx, event.CaseID); err != nil {
		c.logger.Warn(ctx, "Failed to invalidate case from event", "case_id", event.CaseID, "error", err.Error())
		return
	}
	c.logger.Debug(ctx, "Invalidated cached status from case-updated event", "case_id", event.CaseID)
}

// Close drains the subscription and closes the NATS connection.
func (c *InvalidationConsumer) Close() {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			c.logger.Warn(context.Background(), "Failed to drain NATS subscription", "error", err.Error())
		}
	}
	if c.nc != nil && !c.nc.IsClosed() {
		c.nc.Close()
	}
}

// Conn exposes the underlying connection for readiness checks. Nil when the
// feed is disabled.
func (c *InvalidationConsumer) Conn() *nats.Conn {
	if c == nil {
		return nil
	}
	return c.nc
}
