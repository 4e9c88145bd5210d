package repos

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/glacierlabs/floe/internal/db/models"
)

type JobRepositoryTestSuite struct {
	DBRepositoryTestSuite
}

func TestJobRepository(t *testing.T) {
	suite.Run(t, new(JobRepositoryTestSuite))
}

func (s *JobRepositoryTestSuite) TestCreate() {
	job := s.createTestJob()
	s.NotZero(job.ID)
	s.Equal(models.JobStatusPending, job.Status)
}

func (s *JobRepositoryTestSuite) TestCreateRequiresIdentifiers() {
	err := s.jobRepo.Create(s.ctx, &models.Job{UserID: "u1"})
	s.Error(err)

	err = s.jobRepo.Create(s.ctx, &models.Job{JobID: "j1"})
	s.Error(err)
}

func (s *JobRepositoryTestSuite) TestGetByJobID() {
	original := s.createTestJob()

	found, err := s.jobRepo.GetByJobID(s.ctx, original.JobID)
	s.NoError(err)
	s.Equal(original.JobID, found.JobID)
	s.Equal(original.UserID, found.UserID)

	// Non-existent job
	_, err = s.jobRepo.GetByJobID(s.ctx, "missing")
	s.Error(err)
}

func (s *JobRepositoryTestSuite) TestMarkRunning() {
	job := s.createTestJob()

	claimed, err := s.jobRepo.MarkRunning(s.ctx, job.JobID)
	s.NoError(err)
	s.True(claimed)

	updated, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.NoError(err)
	s.Equal(models.JobStatusRunning, updated.Status)
}

func (s *JobRepositoryTestSuite) TestMarkRunningDuplicate() {
	job := s.createTestJob()

	// A second delivery of the same request must not claim the job again.
	claimed, err := s.jobRepo.MarkRunning(s.ctx, job.JobID)
	s.NoError(err)
	s.True(claimed)

	claimed, err = s.jobRepo.MarkRunning(s.ctx, job.JobID)
	s.NoError(err)
	s.False(claimed)

	updated, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.NoError(err)
	s.Equal(models.JobStatusRunning, updated.Status)
}

func (s *JobRepositoryTestSuite) TestMarkRunningDoesNotRegress() {
	job := s.createTestJob()

	claimed, err := s.jobRepo.MarkRunning(s.ctx, job.JobID)
	s.NoError(err)
	s.True(claimed)

	advanced, err := s.jobRepo.Finish(s.ctx, job.JobID, models.JobStatusCompleted, "results/r", "logs/l")
	s.NoError(err)
	s.True(advanced)

	// A stale request delivery after completion must leave the terminal
	// status in place.
	claimed, err = s.jobRepo.MarkRunning(s.ctx, job.JobID)
	s.NoError(err)
	s.False(claimed)

	updated, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.NoError(err)
	s.Equal(models.JobStatusCompleted, updated.Status)
}

func (s *JobRepositoryTestSuite) TestFinish() {
	job := s.createTestJob()

	_, err := s.jobRepo.MarkRunning(s.ctx, job.JobID)
	s.NoError(err)

	advanced, err := s.jobRepo.Finish(s.ctx, job.JobID, models.JobStatusCompleted, "results/r.annot.vcf", "logs/r.log")
	s.NoError(err)
	s.True(advanced)

	updated, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.NoError(err)
	s.Equal(models.JobStatusCompleted, updated.Status)
	s.Equal("results/r.annot.vcf", updated.ResultKey)
	s.Equal("logs/r.log", updated.LogKey)
	s.NotNil(updated.CompleteTime)

	// Repeating the completion is a no-op
	advanced, err = s.jobRepo.Finish(s.ctx, job.JobID, models.JobStatusFailed, "x", "y")
	s.NoError(err)
	s.False(advanced)

	updated, err = s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.NoError(err)
	s.Equal(models.JobStatusCompleted, updated.Status)
}

func (s *JobRepositoryTestSuite) TestFinishRequiresTerminalStatus() {
	job := s.createTestJob()

	_, err := s.jobRepo.Finish(s.ctx, job.JobID, models.JobStatusRunning, "", "")
	s.Error(err)
}

func (s *JobRepositoryTestSuite) TestFinishRequiresRunning() {
	job := s.createTestJob()

	// A completion for a job never claimed must not transition it.
	advanced, err := s.jobRepo.Finish(s.ctx, job.JobID, models.JobStatusCompleted, "r", "l")
	s.NoError(err)
	s.False(advanced)
}

func (s *JobRepositoryTestSuite) TestListByUser() {
	userID := "user-list"
	first := s.createTestJobForUser(userID)
	second := s.createTestJobForUser(userID)
	s.createTestJob() // other user

	jobs, err := s.jobRepo.ListByUser(s.ctx, userID)
	s.NoError(err)
	s.Len(jobs, 2)
	for _, j := range jobs {
		s.Contains([]string{first.JobID, second.JobID}, j.JobID)
	}
}

func (s *JobRepositoryTestSuite) TestListArchivedByUser() {
	userID := "user-archived"
	archived := s.createTestJobForUser(userID)
	requested := s.createTestJobForUser(userID)
	s.createTestJobForUser(userID) // never archived

	s.NoError(s.jobRepo.SetArchiveID(s.ctx, archived.JobID, "arch-1"))
	s.NoError(s.jobRepo.SetArchiveID(s.ctx, requested.JobID, "arch-2"))
	s.NoError(s.jobRepo.MarkRetrievalRequested(s.ctx, requested.JobID))

	// Only the archived job without an outstanding retrieval should show up.
	jobs, err := s.jobRepo.ListArchivedByUser(s.ctx, userID)
	s.NoError(err)
	s.Len(jobs, 1)
	s.Equal(archived.JobID, jobs[0].JobID)
	s.Equal("arch-1", jobs[0].ArchiveID)
}

func (s *JobRepositoryTestSuite) TestFindByArchiveID() {
	job := s.createTestJob()
	s.NoError(s.jobRepo.SetArchiveID(s.ctx, job.JobID, "arch-42"))

	found, err := s.jobRepo.FindByArchiveID(s.ctx, job.UserID, "arch-42")
	s.NoError(err)
	s.Require().NotNil(found)
	s.Equal(job.JobID, found.JobID)

	// No match yields nil without an error
	found, err = s.jobRepo.FindByArchiveID(s.ctx, job.UserID, "arch-missing")
	s.NoError(err)
	s.Nil(found)

	// The archive id is scoped to its owner
	found, err = s.jobRepo.FindByArchiveID(s.ctx, "someone-else", "arch-42")
	s.NoError(err)
	s.Nil(found)
}

func (s *JobRepositoryTestSuite) TestClearArchive() {
	job := s.createTestJob()
	s.NoError(s.jobRepo.SetArchiveID(s.ctx, job.JobID, "arch-7"))
	s.NoError(s.jobRepo.MarkRetrievalRequested(s.ctx, job.JobID))

	s.NoError(s.jobRepo.ClearArchive(s.ctx, job.JobID))

	updated, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.NoError(err)
	s.Empty(updated.ArchiveID)
	s.False(updated.RetrievalRequested)
	s.False(updated.Archived())

	// Clearing twice is a no-op
	s.NoError(s.jobRepo.ClearArchive(s.ctx, job.JobID))
}
