package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)

	listJobsCmd.Flags().StringP("user", "u", "", "user id whose jobs to list")
	_ = listJobsCmd.MarkFlagRequired("user")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs",
}

// GetJobsCmd returns the jobs command
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}

// listJobsCmd represents the command to list a user's jobs
var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, _ := cmd.Flags().GetString("user")

		e, err := newEnv()
		if err != nil {
			return err
		}
		jobs, err := e.jobs.ListByUser(context.Background(), userID)
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}
		return printJSON(jobs)
	},
}

// getJobCmd represents the command to fetch one job
var getJobCmd = &cobra.Command{
	Use:   "get [job-id]",
	Short: "Get a job by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		job, err := e.jobs.GetByJobID(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		return printJSON(job)
	},
}

func printJSON(v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	fmt.Println(string(prettyJSON))
	return nil
}
