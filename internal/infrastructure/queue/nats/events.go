package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/infrastructure/resilience"
)

const DefaultSubject = "index.rebuilt"

// Events carries index rebuild notifications between the indexer and the
// API replicas. Every subscriber receives every event, so each replica
// reloads its own bundle.
type Events struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *zap.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *zap.Logger
}

func New(url, subject string, options Options) (*Events, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("fashion-recommender"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Events{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (e *Events) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}

func (e *Events) PublishIndexRebuilt(ctx context.Context, event domain.IndexRebuilt) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	err = e.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := e.conn.Publish(e.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		if err := e.conn.FlushTimeout(2 * time.Second); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	e.logger.Info("index_rebuilt_published",
		zap.String("version", event.Version),
		zap.String("directory", event.Directory),
	)
	return nil
}

// SubscribeIndexRebuilt blocks until ctx is done, then drains the subscription.
func (e *Events) SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, domain.IndexRebuilt) error) error {
	sub, err := e.conn.Subscribe(e.subject, func(msg *nats.Msg) {
		e.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := e.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := e.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (e *Events) handleMessage(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.IndexRebuilt) error) {
	if ctx.Err() != nil {
		return
	}
	event, err := decodeEvent(msg.Data)
	if err != nil {
		e.logger.Warn("index_rebuilt_malformed", zap.ByteString("payload", msg.Data), zap.Error(err))
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		e.logger.Error("index_rebuilt_handler_failed",
			zap.String("version", event.Version),
			zap.String("directory", event.Directory),
			zap.Error(err),
		)
	}
}

func encodeEvent(event domain.IndexRebuilt) ([]byte, error) {
	if strings.TrimSpace(event.Directory) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode index event", fmt.Errorf("directory is required"))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal index event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.IndexRebuilt, error) {
	var event domain.IndexRebuilt
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.IndexRebuilt{}, fmt.Errorf("unmarshal index event: %w", err)
	}
	if strings.TrimSpace(event.Directory) == "" {
		return domain.IndexRebuilt{}, fmt.Errorf("index event has no directory")
	}
	return event, nil
}
