// Command arena runs the arena shard: the HTTP API, the websocket change feed, and optionally the NATS change feed
// and JetStream snapshots.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/argus-labs/arena/pkg/arena"
	"github.com/argus-labs/arena/pkg/arena/event"
	"github.com/argus-labs/arena/pkg/arena/server"
	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/statsd"
	"github.com/argus-labs/arena/pkg/telemetry"
)

const (
	queueGaugeInterval = 10 * time.Second
	snapshotTimeout    = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Msg("failed to load .env file")
	}
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg(eris.ToString(err, true))
	}
}

func run() error {
	tel, err := telemetry.New(telemetry.Options{ServiceName: "arena"})
	if err != nil {
		return eris.Wrap(err, "failed to initialize telemetry")
	}
	defer tel.RecoverAndFlush(true)
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			tel.Logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()
	logger := tel.GetLogger("main")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.StatsdAddress != "" {
		if err := statsd.Init(cfg.StatsdAddress, []string{"service:arena"}); err != nil {
			return eris.Wrap(err, "failed to initialize statsd")
		}
		defer func() {
			if err := statsd.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close statsd client")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	st := store.New(backend, store.WithLogger(tel.GetLogger("store")))
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}()

	// NATS change feed and snapshot storage.
	var snapshots store.SnapshotStorage = store.NopSnapshotStorage{}
	natsCfg, err := event.LoadNATSConfig()
	if err != nil {
		return err
	}
	if natsCfg.URL != "" {
		client, err := event.NewClient(event.WithNATSConfig(natsCfg), event.WithLogger(tel.GetLogger("nats")))
		if err != nil {
			return err
		}
		defer client.Close()

		pub, err := event.NewPublisher(client.Conn, natsCfg.SubjectPrefix, tel.GetLogger("publisher"))
		if err != nil {
			return err
		}
		st.Subscribe(pub.Subscriber())

		if cfg.SnapshotStorage == store.SnapshotStorageJetStream {
			snapshots, err = store.NewJetStreamSnapshotStorage(ctx, client.Conn, store.JetStreamSnapshotOptions{
				Bucket:     cfg.SnapshotBucket,
				ObjectName: cfg.SnapshotObject,
			})
			if err != nil {
				return err
			}
		}
	} else if cfg.SnapshotStorage == store.SnapshotStorageJetStream {
		return eris.New("JETSTREAM snapshots require ARENA_NATS_URL")
	}

	restored, err := st.RestoreSnapshot(ctx, snapshots)
	if err != nil {
		return eris.Wrap(err, "failed to restore snapshot")
	}
	logger.Info().Bool("restored", restored).Str("storage", cfg.Storage).Msg("store ready")

	hub := event.NewHub(tel.GetLogger("events"))
	st.Subscribe(hub.Subscriber())

	arenaLog := tel.GetLogger("arena")
	a, err := arena.New(st, arena.Options{Logger: &arenaLog, Tracer: tel.Tracer})
	if err != nil {
		return err
	}
	logger.Info().Str("ready_policy", a.ReadyPolicy().String()).Msg("arena configured")

	serverLog := tel.GetLogger("server")
	srv, err := server.New(a, hub, server.Options{Logger: &serverLog})
	if err != nil {
		return err
	}

	sched, err := newScheduler(cfg, st, snapshots, a, logger)
	if err != nil {
		return err
	}
	sched.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return eris.Wrap(sched.Shutdown(), "failed to stop scheduler")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.SnapshotStorage == store.SnapshotStorageJetStream {
		saveCtx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if err := st.SaveSnapshot(saveCtx, snapshots); err != nil {
			return eris.Wrap(err, "failed to save final snapshot")
		}
		logger.Info().Msg("final snapshot saved")
	}
	return nil
}

func openBackend(cfg config) (store.Backend, error) {
	switch cfg.Storage {
	case storageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, eris.Wrap(err, "failed to connect to redis")
		}
		return store.NewRedisBackend(client, cfg.RedisPrefix), nil
	case storagePostgres:
		return store.OpenPostgres(cfg.PostgresDSN)
	default:
		return store.NewMemoryBackend(), nil
	}
}

// newScheduler registers the periodic jobs: a queue length gauge and, with JetStream storage, snapshots.
func newScheduler(
	cfg config,
	st *store.Store,
	snapshots store.SnapshotStorage,
	a *arena.Arena,
	logger zerolog.Logger,
) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, eris.Wrap(err, "failed to create scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(queueGaugeInterval),
		gocron.NewTask(func() {
			n, err := a.QueueLength(context.Background())
			if err != nil {
				logger.Warn().Err(err).Msg("failed to read queue length")
				return
			}
			statsd.Gauge("queue.length", float64(n))
		}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to schedule queue gauge")
	}

	if cfg.SnapshotStorage == store.SnapshotStorageJetStream {
		_, err = sched.NewJob(
			gocron.CronJob(cfg.SnapshotCron, false),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
				defer cancel()
				if err := st.SaveSnapshot(ctx, snapshots); err != nil {
					logger.Error().Err(err).Msg("snapshot failed")
					return
				}
				logger.Debug().Msg("snapshot saved")
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to schedule snapshots (cron=%s)", cfg.SnapshotCron)
		}
	}
	return sched, nil
}
