package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glacierlabs/floe/internal/db/models"
	"github.com/glacierlabs/floe/internal/db/repos"
	"github.com/glacierlabs/floe/internal/notify"
	"github.com/glacierlabs/floe/internal/queue"
	"github.com/glacierlabs/floe/internal/storage"
)

// WorkerTestSuite wires each component against an in-memory database, an
// in-memory queue, and filesystem-backed stores.
type WorkerTestSuite struct {
	suite.Suite
	ctx   context.Context
	db    *gorm.DB
	jobs  *repos.JobRepository
	users *repos.UserRepository
	hot   *storage.FSStore
	bus   *notify.Bus
}

func (s *WorkerTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_json=1"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")
	require.NoError(s.T(), db.AutoMigrate(&models.Job{}, &models.User{}))

	hot, err := storage.NewFSStore(s.T().TempDir())
	require.NoError(s.T(), err)

	s.ctx = context.Background()
	s.db = db
	s.jobs = repos.NewJobRepository(db)
	s.users = repos.NewUserRepository(db)
	s.hot = hot
	s.bus = notify.NewBus()
}

func (s *WorkerTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func (s *WorkerTestSuite) newQueueTopic(name string) (*queue.MemoryQueue, *notify.Topic) {
	q := queue.NewMemoryQueue(time.Minute)
	topic := s.bus.Topic(name)
	topic.AttachQueue(q)
	return q, topic
}

func (s *WorkerTestSuite) newVault(opts storage.VaultOptions) *storage.FSVault {
	opts.Root = s.T().TempDir()
	if opts.ExpeditedDelay == 0 {
		opts.ExpeditedDelay = time.Hour
	}
	if opts.StandardDelay == 0 {
		opts.StandardDelay = time.Hour
	}
	v, err := storage.NewFSVault(opts)
	s.Require().NoError(err)
	return v
}

func (s *WorkerTestSuite) createUser(tier models.UserTier) *models.User {
	user := &models.User{
		UserID:   "user-" + uuid.NewString(),
		Username: "test-user",
		Tier:     tier,
	}
	s.Require().NoError(s.users.CreateUser(s.ctx, user))
	return user
}

func (s *WorkerTestSuite) createJob(userID string, status models.JobStatus) *models.Job {
	jobID := uuid.NewString()
	job := &models.Job{
		JobID:         jobID,
		UserID:        userID,
		InputFileName: "sample.vcf",
		InputBucket:   "floe-inputs",
		InputKey:      userID + "/" + jobID + "~sample.vcf",
		ResultBucket:  "floe-results",
		ResultKey:     userID + "/" + jobID + "~sample.annot.vcf",
		SubmitTime:    time.Now().UTC(),
		Status:        status,
	}
	s.Require().NoError(s.jobs.Create(s.ctx, job))
	return job
}

// drained asserts the queue holds nothing, including in-flight deliveries.
func (s *WorkerTestSuite) drained(q *queue.MemoryQueue) {
	q.Redeliver()
	s.Equal(0, q.Len(), "queue should be drained")
}

// held asserts the queue still holds n messages once in-flight deliveries
// are forced back.
func (s *WorkerTestSuite) held(q *queue.MemoryQueue, n int) {
	q.Redeliver()
	s.Equal(n, q.Len())
}

// fakeRunner records dispatched jobs instead of spawning processes.
type fakeRunner struct {
	mu     sync.Mutex
	starts []string
	err    error
}

func (r *fakeRunner) Start(_ context.Context, _ string, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.starts = append(r.starts, jobID)
	return nil
}

func (r *fakeRunner) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.starts...)
}

// TestWorker runs the base suite to verify setup does not panic
func TestWorker(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}
