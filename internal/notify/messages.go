package notify

// JobRequest announces a submitted job to the job queue consumer.
type JobRequest struct {
	JobID         string `json:"job_id"`
	UserID        string `json:"user_id"`
	InputFileName string `json:"input_file_name"`
	InputBucket   string `json:"s3_inputs_bucket"`
	InputKey      string `json:"s3_key_input_file"`
}

// JobResult announces a finished job to the archival decision component.
type JobResult struct {
	JobID        string `json:"job_id"`
	UserID       string `json:"user_id"`
	ResultBucket string `json:"s3_result_bucket"`
	ResultKey    string `json:"s3_key_result_file"`
}

// TierUpgrade announces a user's upgrade to the restore orchestrator.
type TierUpgrade struct {
	UserID string `json:"user_id"`
}

// RetrievalCompletion announces a finished cold-storage retrieval. It
// carries storage-tier identifiers only; JobDescription holds the owning
// user id, which is how the handler correlates back to the job record.
type RetrievalCompletion struct {
	ArchiveID      string `json:"ArchiveId"`
	VaultARN       string `json:"VaultARN"`
	JobID          string `json:"JobId"`
	JobDescription string `json:"JobDescription"`
}
