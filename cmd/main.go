package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/glacierlabs/floe/internal/api/handlers"
	"github.com/glacierlabs/floe/internal/api/routes"
	"github.com/glacierlabs/floe/internal/config"
	"github.com/glacierlabs/floe/internal/db"
	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/logger"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
	"github.com/glacierlabs/floe/internal/storage"
	"github.com/glacierlabs/floe/internal/worker"
)

func main() {
	_ = godotenv.Load()
	logger.Initialize()
	cfg := config.Load()

	conn, err := db.New(db.Options{
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		Port:     cfg.DBPort,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	jobRepo := repos.NewJobRepository(conn)
	userRepo := repos.NewUserRepository(conn)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	requestQueue := queue.NewRedisQueue(rdb, config.QueueJobRequests, cfg.VisibilityTimeout)
	resultQueue := queue.NewRedisQueue(rdb, config.QueueJobResults, cfg.VisibilityTimeout)
	thawQueue := queue.NewRedisQueue(rdb, config.QueueThawRequests, cfg.VisibilityTimeout)
	restoreQueue := queue.NewRedisQueue(rdb, config.QueueRestores, cfg.VisibilityTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := notify.NewBus()
	requestTopic := bus.Topic(config.TopicJobRequests)
	resultTopic := bus.Topic(config.TopicJobResults)
	thawTopic := bus.Topic(config.TopicThaw)
	restoreTopic := bus.Topic(config.TopicRestores)
	for topic, q := range map[*notify.Topic]queue.Queue{
		requestTopic: requestQueue,
		resultTopic:  resultQueue,
		thawTopic:    thawQueue,
		restoreTopic: restoreQueue,
	} {
		if err := topic.Subscribe(ctx, q); err != nil {
			logger.Fatalf("Failed to subscribe queue to %s: %v", topic.ARN(), err)
		}
	}

	hot, err := storage.NewFSStore(cfg.StorageRoot)
	if err != nil {
		logger.Fatalf("Failed to open hot storage: %v", err)
	}
	vault, err := storage.NewFSVault(storage.VaultOptions{
		Root:        cfg.VaultRoot,
		Name:        cfg.VaultName,
		Completions: restoreTopic,
	})
	if err != nil {
		logger.Fatalf("Failed to open vault: %v", err)
	}

	consumer := worker.NewConsumer(requestQueue, jobRepo, hot, worker.NewExecRunner(cfg.RunnerCommand), worker.ConsumerOptions{
		DataPath:    cfg.DataPath,
		InputSuffix: cfg.InputSuffix,
		MaxMessages: cfg.MaxMessages,
		WaitTime:    cfg.WaitTime,
	})
	archiver := worker.NewArchiver(resultQueue, bus, jobRepo, userRepo, hot, vault, worker.ArchiverOptions{
		MaxMessages: cfg.MaxMessages,
		WaitTime:    cfg.WaitTime,
	})
	restorer := worker.NewRestorer(thawQueue, bus, jobRepo, vault, worker.RestorerOptions{
		MaxMessages: cfg.MaxMessages,
		WaitTime:    cfg.WaitTime,
	})
	finalizer := worker.NewFinalizer(restoreQueue, jobRepo, hot, vault, worker.FinalizerOptions{
		MaxMessages: cfg.MaxMessages,
		WaitTime:    cfg.WaitTime,
	})

	var wg sync.WaitGroup
	wg.Add(4)
	go worker.Launch(ctx, &wg, "consumer", consumer.Poll)
	go worker.Launch(ctx, &wg, "archiver", archiver.Poll)
	go worker.Launch(ctx, &wg, "restorer", restorer.Poll)
	go worker.Launch(ctx, &wg, "finalizer", finalizer.Poll)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(fiberlogger.New())
	routes.Register(app,
		handlers.NewJobHandler(jobRepo, requestTopic, resultTopic, cfg.InputsBucket, cfg.ResultsBucket),
		handlers.NewWebhookHandler(bus, archiver, restorer),
	)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	if err := app.Listen(cfg.ListenAddr); err != nil {
		logger.Errorf("HTTP server stopped: %v", err)
	}

	stop()
	wg.Wait()
	logger.Info("Shutdown complete")
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
