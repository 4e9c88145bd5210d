package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/glacierlabs/floe/cmd/cli/commands"
)

var rootCmd = &cobra.Command{
	Use:   "floe",
	Short: "Floe CLI - operator tooling for the job archival service",
	Long: `Floe CLI is a command line tool for submitting jobs, inspecting the job
table, and managing user tiers of the Floe archival service.`,
}

func init() {
	rootCmd.AddCommand(commands.GetJobsCmd())
	rootCmd.AddCommand(commands.GetUsersCmd())
	rootCmd.AddCommand(commands.GetSubmitCmd())
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
