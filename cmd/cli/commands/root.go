// Package commands holds the CLI subcommands. The commands talk to the
// database, queues, and stores directly using the same configuration as the
// service binary; the asynchronous plane has no synchronous API to proxy
// through.
package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/glacierlabs/floe/internal/config"
	"github.com/glacierlabs/floe/internal/db"
	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
	"github.com/glacierlabs/floe/internal/storage"
)

// env holds the handles shared by the subcommands, constructed lazily on
// first use.
type env struct {
	cfg      config.Config
	conn     *gorm.DB
	jobs     *repos.JobRepository
	users    *repos.UserRepository
	bus      *notify.Bus
	requests *notify.Topic
	thaw     *notify.Topic
	hot      *storage.FSStore
}

func newEnv() (*env, error) {
	cfg := config.Load()
	conn, err := db.New(db.Options{
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		Port:     cfg.DBPort,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	bus := notify.NewBus()
	requests := bus.Topic(config.TopicJobRequests)
	requests.AttachQueue(queue.NewRedisQueue(rdb, config.QueueJobRequests, cfg.VisibilityTimeout))
	thaw := bus.Topic(config.TopicThaw)
	thaw.AttachQueue(queue.NewRedisQueue(rdb, config.QueueThawRequests, cfg.VisibilityTimeout))

	hot, err := storage.NewFSStore(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open hot storage: %w", err)
	}

	return &env{
		cfg:      cfg,
		conn:     conn,
		jobs:     repos.NewJobRepository(conn),
		users:    repos.NewUserRepository(conn),
		bus:      bus,
		requests: requests,
		thaw:     thaw,
		hot:      hot,
	}, nil
}
