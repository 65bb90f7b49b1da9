package backend

import (
	"context"
	"errors"
	"fmt"

	"lifelog/internal/amqp"
	"lifelog/internal/config"
	"lifelog/internal/docstore"
	"lifelog/internal/docstore/memory"
	"lifelog/internal/docstore/sqlite"
	"lifelog/internal/localstore"
	"lifelog/internal/log"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         t,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DeviceDBPath: appConfig.DeviceDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
	}, nil
}

// DialFeed connects to the AMQP broker behind a ChangeFeed.
type DialFeed func(url, exchange string, logger *log.Logger) (ChangeFeed, error)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	dial   DialFeed
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	return &DefaultFactory{
		logger: logger.OrDefault(log.ComponentBackend),
		dial: func(url, exchange string, logger *log.Logger) (ChangeFeed, error) {
			return amqp.NewClient(url, exchange, logger)
		},
	}
}

// WithDialer replaces the AMQP dialer.
func (f *DefaultFactory) WithDialer(dial DialFeed) *DefaultFactory {
	f.dial = dial
	return f
}

// Create implements Factory.Create
func (f *DefaultFactory) Create(ctx context.Context, cfg Config) (*Result, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}

	res := &Result{}
	if err := f.openKV(cfg, res); err != nil {
		return nil, err
	}

	var err error
	switch cfg.Type {
	case SQLiteBackend:
		err = f.openSQLite(cfg, res)
	case MemoryBackend:
		s := memory.New()
		res.Store = s
		res.closers = append(res.closers, s.Close)
		f.logger.InfoContext(ctx, "Initialized memory backend")
	}
	if err != nil {
		res.Cleanup()
		return nil, err
	}
	return res, nil
}

func (f *DefaultFactory) openKV(cfg Config, res *Result) error {
	if cfg.DeviceDBPath == "" {
		res.KV = localstore.NewMemoryKV()
		return nil
	}
	kv, err := localstore.OpenSQLiteKV(cfg.DeviceDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize device storage: %w", err)
	}
	res.KV = kv
	res.closers = append(res.closers, kv.Close)
	return nil
}

func (f *DefaultFactory) openSQLite(cfg Config, res *Result) error {
	if cfg.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}

	// The change feed is optional; without it only this process sees its writes.
	var opts []sqlite.Option
	if cfg.AMQPURL != "" {
		feed, err := f.dial(cfg.AMQPURL, cfg.AMQPExchange, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change feed", log.FieldError, err)
		} else {
			res.Feed = feed
			res.closers = append(res.closers, feed.Close)
			opts = append(opts, sqlite.WithPublisher(feed))
			f.logger.Info("Initialized AMQP change feed", "exchange", cfg.AMQPExchange)
		}
	}
	opts = append(opts, sqlite.WithLogger(f.logger))

	s, err := sqlite.Open(cfg.SQLiteDBPath, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	res.Store = s
	res.notifier = s
	res.origin = s.Origin()
	// Store closes before the feed it publishes to.
	res.closers = append(res.closers, s.Close)

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", res.Feed != nil)
	return nil
}

// Follow applies changes published by other processes to local listeners
// until ctx is done. It returns nil at once when there is no change feed.
func (r *Result) Follow(ctx context.Context) error {
	if r.Feed == nil || r.notifier == nil {
		return nil
	}
	return r.Feed.ConsumeChanges(ctx, func(c docstore.Change) error {
		docstore.ApplyRemote(r.notifier, r.origin, c)
		return nil
	})
}

// Cleanup closes what Create opened, most recent first.
func (r *Result) Cleanup() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
