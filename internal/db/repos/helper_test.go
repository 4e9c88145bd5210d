package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/glacierlabs/floe/internal/db/models"
)

// DBRepositoryTestSuite provides a base test suite for repository tests
type DBRepositoryTestSuite struct {
	suite.Suite
	db       *gorm.DB
	ctx      context.Context
	jobRepo  *JobRepository
	userRepo *UserRepository
}

func (s *DBRepositoryTestSuite) SetupTest() {
	// Create new in-memory database
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_json=1"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")

	// Run migrations
	err = db.AutoMigrate(&models.Job{}, &models.User{})
	require.NoError(s.T(), err, "Failed to run database migrations")

	// Initialize repositories
	s.db = db
	s.jobRepo = NewJobRepository(s.db)
	s.userRepo = NewUserRepository(s.db)
	s.ctx = context.Background()
}

func (s *DBRepositoryTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

// Helper methods for creating test data

func (s *DBRepositoryTestSuite) createTestJob() *models.Job {
	return s.createTestJobForUser("user-" + uuid.NewString())
}

func (s *DBRepositoryTestSuite) createTestJobForUser(userID string) *models.Job {
	jobID := uuid.NewString()
	job := &models.Job{
		JobID:         jobID,
		UserID:        userID,
		InputFileName: "sample.vcf",
		InputBucket:   "floe-inputs",
		InputKey:      userID + "/" + jobID + "~sample.vcf",
		SubmitTime:    time.Now().UTC(),
		Status:        models.JobStatusPending,
	}
	err := s.jobRepo.Create(s.ctx, job)
	s.Require().NoError(err)
	return job
}

func (s *DBRepositoryTestSuite) createTestUser(tier models.UserTier) *models.User {
	user := &models.User{
		UserID:   "user-" + uuid.NewString(),
		Username: "test-user",
		Email:    "test@example.com",
		Tier:     tier,
	}
	err := s.userRepo.CreateUser(s.ctx, user)
	s.Require().NoError(err)
	return user
}

// TestDBRepository runs the test suite for the DBRepository to verify no panic
func TestDBRepository(t *testing.T) {
	suite.Run(t, new(DBRepositoryTestSuite))
}
