package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/glacierlabs/floe/internal/db/models"
	"github.com/glacierlabs/floe/internal/notify"
)

func init() {
	submitCmd.Flags().StringP("user", "u", "", "user id the job belongs to")
	submitCmd.Flags().StringP("file", "f", "", "local input file to upload")
	_ = submitCmd.MarkFlagRequired("user")
	_ = submitCmd.MarkFlagRequired("file")
}

// GetSubmitCmd returns the submit command
func GetSubmitCmd() *cobra.Command {
	return submitCmd
}

// submitCmd uploads a local input file to the inputs bucket, records the
// pending job, and publishes the request that the consumer picks up.
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job",
	Long:  "Upload an input file, create the job record, and announce it for processing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, _ := cmd.Flags().GetString("user")
		file, _ := cmd.Flags().GetString("file")

		body, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("error reading input file: %w", err)
		}

		e, err := newEnv()
		if err != nil {
			return err
		}
		ctx := context.Background()

		jobID := uuid.NewString()
		fileName := filepath.Base(file)
		inputKey := fmt.Sprintf("%s/%s~%s", userID, jobID, fileName)

		if err := e.hot.Put(ctx, e.cfg.InputsBucket, inputKey, body); err != nil {
			return fmt.Errorf("error uploading input file: %w", err)
		}

		job := &models.Job{
			JobID:         jobID,
			UserID:        userID,
			InputFileName: fileName,
			InputBucket:   e.cfg.InputsBucket,
			InputKey:      inputKey,
			SubmitTime:    time.Now().UTC(),
			Status:        models.JobStatusPending,
		}
		if err := e.jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("error creating job record: %w", err)
		}

		if err := e.requests.Publish(ctx, notify.JobRequest{
			JobID:         jobID,
			UserID:        userID,
			InputFileName: fileName,
			InputBucket:   e.cfg.InputsBucket,
			InputKey:      inputKey,
		}); err != nil {
			return fmt.Errorf("error publishing job request: %w", err)
		}

		return printJSON(job)
	},
}
