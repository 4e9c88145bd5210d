package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the current state of a job in the system.
// Transitions are monotonic: PENDING -> RUNNING -> {COMPLETED, FAILED}.
type JobStatus string

// Job status constants
const (
	// JobStatusPending indicates the job is waiting to be picked up
	JobStatusPending JobStatus = "PENDING"
	// JobStatusRunning indicates the processing task has been launched
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusCompleted indicates the job has finished successfully
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusFailed indicates the job has failed to complete
	JobStatusFailed JobStatus = "FAILED"
)

// ParseJobStatus converts a string representation of a job status to JobStatus
func ParseJobStatus(str string) (JobStatus, error) {
	switch JobStatus(str) {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return JobStatus(str), nil
	}
	return "", fmt.Errorf("invalid job status: %s", str)
}

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents a processing job and the location of its artifacts.
//
// ArchiveID is set if and only if the result artifact currently lives in
// cold storage rather than the hot store. RetrievalRequested is set while a
// cold-storage retrieval is outstanding and cleared together with ArchiveID
// once the artifact is confirmed restored.
type Job struct {
	gorm.Model
	JobID         string     `json:"job_id" gorm:"uniqueIndex;not null"`
	UserID        string     `json:"user_id" gorm:"index;not null"`
	InputFileName string     `json:"input_file_name" gorm:"not null"`
	InputBucket   string     `json:"s3_inputs_bucket"`
	InputKey      string     `json:"s3_key_input_file"`
	ResultBucket  string     `json:"s3_result_bucket"`
	ResultKey     string     `json:"s3_key_result_file"`
	LogKey        string     `json:"s3_key_log_file"`
	SubmitTime    time.Time  `json:"submit_time"`
	CompleteTime  *time.Time `json:"complete_time,omitempty"`
	Status        JobStatus  `json:"job_status" gorm:"index;not null;default:PENDING"`

	ArchiveID          string `json:"results_file_archive_id,omitempty" gorm:"index"`
	RetrievalRequested bool   `json:"retrieval_request_sent" gorm:"not null;default:false"`
}

// Archived reports whether the result artifact lives in cold storage.
func (j *Job) Archived() bool {
	return j.ArchiveID != ""
}
