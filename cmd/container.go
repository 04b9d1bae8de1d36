package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"

	"github.com/example/slotmint/internal/application/usecases"
	"github.com/example/slotmint/internal/config"
	"github.com/example/slotmint/internal/db"
	"github.com/example/slotmint/internal/infrastructure/mint"
	"github.com/example/slotmint/internal/infrastructure/notify"
	"github.com/example/slotmint/internal/infrastructure/postgres"
	"github.com/example/slotmint/internal/logger"
	"github.com/example/slotmint/internal/relay"
	"github.com/example/slotmint/internal/store"
	"github.com/example/slotmint/internal/store/memstore"
)

// sinks owns the relay's publishers and the connections behind them.
type sinks struct {
	publishers []notify.Publisher
	closers    []func() error
}

func (s *sinks) Shutdown() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// healthCheck reports whether the backing store is reachable.
type healthCheck func(context.Context) error

func buildContainer(cfg config.Config) *do.Injector {
	inj := do.New()

	do.ProvideValue(inj, cfg)

	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		return logger.New(cfg.LogLevel, cfg.DevMode)
	})

	do.Provide(inj, func(i *do.Injector) (*db.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d, err := db.Open(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			return nil, err
		}
		if err := d.Ping(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		return d, nil
	})

	do.Provide(inj, func(i *do.Injector) (store.Store, error) {
		if cfg.StoreDriver == "memory" {
			return memstore.New(), nil
		}
		d, err := do.Invoke[*db.DB](i)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(d), nil
	})

	do.Provide(inj, func(i *do.Injector) (usecases.UserRepo, error) {
		if cfg.StoreDriver == "memory" {
			return memstore.NewUsers(), nil
		}
		d, err := do.Invoke[*db.DB](i)
		if err != nil {
			return nil, err
		}
		return postgres.NewUserRepo(d.Pool()), nil
	})

	do.Provide(inj, func(i *do.Injector) (healthCheck, error) {
		if cfg.StoreDriver == "memory" {
			return func(context.Context) error { return nil }, nil
		}
		d, err := do.Invoke[*db.DB](i)
		if err != nil {
			return nil, err
		}
		return d.Ping, nil
	})

	do.Provide(inj, func(i *do.Injector) (usecases.AuthService, error) {
		return usecases.AuthService{
			Users: do.MustInvoke[usecases.UserRepo](i),
			Log:   do.MustInvoke[*zap.Logger](i),
		}, nil
	})

	do.Provide(inj, func(i *do.Injector) (usecases.ExperienceManager, error) {
		return usecases.ExperienceManager{
			Store: do.MustInvoke[store.Store](i),
			Log:   do.MustInvoke[*zap.Logger](i),
		}, nil
	})

	do.Provide(inj, func(i *do.Injector) (usecases.SlotManager, error) {
		return usecases.SlotManager{
			Store:    do.MustInvoke[store.Store](i),
			Log:      do.MustInvoke[*zap.Logger](i),
			MaxSlots: cfg.Booking.MaxSlotsPerExperience,
		}, nil
	})

	do.Provide(inj, func(i *do.Injector) (usecases.ReservationEngine, error) {
		cutoff := cfg.Booking.CancelCutoff
		if cutoff == 0 {
			// an explicit zero disables the cutoff
			cutoff = -1
		}
		return usecases.ReservationEngine{
			Store:        do.MustInvoke[store.Store](i),
			Minter:       mint.New(cfg.MetadataBaseURL),
			Log:          do.MustInvoke[*zap.Logger](i),
			CancelCutoff: cutoff,
		}, nil
	})

	do.Provide(inj, func(i *do.Injector) (*sinks, error) {
		return newSinks(cfg, do.MustInvoke[*zap.Logger](i))
	})

	do.Provide(inj, func(i *do.Injector) (*relay.Relay, error) {
		st, err := do.Invoke[store.Store](i)
		if err != nil {
			return nil, err
		}
		s, err := do.Invoke[*sinks](i)
		if err != nil {
			return nil, err
		}
		return &relay.Relay{
			Outbox:      st,
			Publishers:  s.publishers,
			Interval:    cfg.Relay.PollInterval,
			BatchSize:   cfg.Relay.BatchSize,
			MaxAttempts: cfg.Relay.MaxAttempts,
			Log:         do.MustInvoke[*zap.Logger](i),
		}, nil
	})

	return inj
}

// newSinks connects every configured publisher. The log publisher is always
// present so an unconfigured deployment still drains its outbox.
func newSinks(cfg config.Config, log *zap.Logger) (*sinks, error) {
	s := &sinks{publishers: []notify.Publisher{notify.LogPublisher{Log: log}}}
	fail := func(err error) (*sinks, error) {
		_ = s.Shutdown()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, rdb.Close)
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			return fail(fmt.Errorf("redis tracing: %w", err))
		}
		s.publishers = append(s.publishers, notify.RedisPublisher{Client: rdb, Stream: cfg.Redis.Stream, MaxLen: cfg.Redis.MaxLen})
	}

	if cfg.AMQP.URL != "" {
		p, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, p.Close)
		s.publishers = append(s.publishers, p)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fail(err)
		}
		s.closers = append(s.closers, p.Close)
		s.publishers = append(s.publishers, p)
	}

	if cfg.S3.Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := notify.NewS3Client(ctx, notify.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return fail(err)
		}
		s.publishers = append(s.publishers, notify.MetadataArchiver{Client: client, Bucket: cfg.S3.Bucket, Prefix: cfg.S3.Prefix})
	}

	names := make([]string, 0, len(s.publishers))
	for _, p := range s.publishers {
		names = append(names, p.Name())
	}
	log.Info("event sinks ready", zap.Strings("sinks", names))
	return s, nil
}
