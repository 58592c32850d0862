// Command worker runs the media upload saga: per-kind upload
// orchestrators and status reconcilers competing for deliveries on the
// media queues, plus the ops HTTP endpoint.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/voluntr/media-workers/config"
	"github.com/voluntr/media-workers/internal/dedup"
	"github.com/voluntr/media-workers/internal/imgproc"
	"github.com/voluntr/media-workers/internal/logging"
	"github.com/voluntr/media-workers/internal/notify"
	"github.com/voluntr/media-workers/internal/ops"
	"github.com/voluntr/media-workers/internal/queue"
	"github.com/voluntr/media-workers/internal/repos/events"
	"github.com/voluntr/media-workers/internal/repos/posts"
	"github.com/voluntr/media-workers/internal/repos/profiles"
	"github.com/voluntr/media-workers/internal/saga"
	"github.com/voluntr/media-workers/internal/storage"
	"github.com/voluntr/media-workers/internal/tempstore"
	"github.com/voluntr/media-workers/migrations"
)

type app struct {
	cfg      *config.Config
	logger   logging.Logger
	db       *sql.DB
	conn     *amqp.Connection
	pub      *queue.Publisher
	consumer *queue.Consumer
	engines  []*saga.Engine
	opsSrv   *ops.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*app, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := queue.NewClient(cfg.RabbitMqURL)
	if err != nil {
		return nil, err
	}

	ch, err := queue.NewChannel(conn)
	if err != nil {
		return nil, err
	}
	kinds := []string{"event", "post", "profile"}
	var names []string
	for _, k := range kinds {
		names = append(names, queue.PendingQueue(k), queue.UploadedQueue(k), queue.FailedQueue(k))
	}
	if err := queue.DeclareTopology(ch, names, cfg.DeliveryLimit); err != nil {
		return nil, err
	}
	ch.Close()

	pub, err := queue.NewPublisher(conn)
	if err != nil {
		return nil, err
	}

	s3Client, err := storage.NewS3Client(ctx, storage.Options{
		Region:    cfg.AwsRegion,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	blobs := storage.NewS3Store(s3Client, cfg.AwsBucketName, cfg.PublicBaseURL)

	temp := tempstore.New(cfg.StagingDir)
	guard := dedup.NewPostgresGuard(db)
	metrics := ops.MustNewMetrics(nil)
	notifier := notify.NewQueueNotifier(pub, logger)

	normalize := func(data []byte) ([]byte, error) {
		return imgproc.Normalize(data, cfg.MaxImageDim)
	}

	stores := []saga.EntityStore{
		events.NewPostgresStore(db),
		posts.NewPostgresStore(db),
		profiles.NewPostgresStore(db),
	}

	var engines []*saga.Engine
	for _, store := range stores {
		engine, err := saga.NewEngine(saga.Config{
			Store:     store,
			Blobs:     blobs,
			Temp:      temp,
			Publisher: queue.NewSagaPublisher(pub, store.Kind()),
			Guard:     guard,
			Notifier:  notifier,
			Metrics:   metrics,
			Log:       logger,
			MaxRetry:  cfg.MaxRetry,
			Normalize: normalize,
		})
		if err != nil {
			return nil, err
		}
		engines = append(engines, engine)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		conn:     conn,
		pub:      pub,
		consumer: queue.NewConsumer(cfg.RabbitMqURL, logger),
		engines:  engines,
		opsSrv:   ops.NewServer(cfg.OpsAddr, prometheus.DefaultGatherer, logger),
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (a *app) run(ctx context.Context) {
	for _, engine := range a.engines {
		kind := engine.Kind()
		a.consumer.Run(ctx, queue.PendingQueue(kind), a.cfg.PendingWorkers, engine.PendingHandler())
		a.consumer.Run(ctx, queue.UploadedQueue(kind), a.cfg.OutcomeWorkers, engine.UploadedHandler())
		a.consumer.Run(ctx, queue.FailedQueue(kind), a.cfg.OutcomeWorkers, engine.FailedHandler())
	}

	go a.opsSrv.Start(ctx)

	a.logger.Info(ctx, "workers started",
		"max_retry", a.cfg.MaxRetry, "pending_workers", a.cfg.PendingWorkers)

	<-ctx.Done()
	a.logger.Info(ctx, "shutting down, draining consumers")
	a.consumer.Wait()
}

func (a *app) close(ctx context.Context) {
	if err := a.pub.Close(); err != nil {
		a.logger.Warn(ctx, "error closing publisher channel", "error", err)
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Warn(ctx, "error closing RabbitMQ connection", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn(ctx, "error closing database", "error", err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewDefault(slog.LevelInfo)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer a.close(context.Background())

	a.run(ctx)
}
