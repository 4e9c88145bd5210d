package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glacierlabs/floe/internal/db/models"
	"github.com/glacierlabs/floe/internal/notify"
)

func init() {
	usersCmd.AddCommand(createUserCmd)
	usersCmd.AddCommand(upgradeUserCmd)
	usersCmd.AddCommand(getUserCmd)

	createUserCmd.Flags().StringP("id", "i", "", "user id")
	createUserCmd.Flags().StringP("username", "u", "", "username of the user to be created")
	createUserCmd.Flags().StringP("email", "e", "", "email address")
	_ = createUserCmd.MarkFlagRequired("id")
	_ = createUserCmd.MarkFlagRequired("username")
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

// GetUsersCmd returns the users command
func GetUsersCmd() *cobra.Command {
	return usersCmd
}

var createUserCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Long:  "Create a free-tier user with the given id and username",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, _ := cmd.Flags().GetString("id")
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")

		e, err := newEnv()
		if err != nil {
			return err
		}
		user := &models.User{
			UserID:   userID,
			Username: username,
			Email:    email,
			Tier:     models.TierFree,
		}
		if err := e.users.CreateUser(context.Background(), user); err != nil {
			return fmt.Errorf("error creating user: %w", err)
		}
		return printJSON(user)
	},
}

var getUserCmd = &cobra.Command{
	Use:   "get [user-id]",
	Short: "Get a user by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		user, err := e.users.GetByUserID(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error fetching user: %w", err)
		}
		return printJSON(user)
	},
}

// upgradeUserCmd flips a user to the premium tier and publishes the
// tier-upgrade event that triggers restoration of their archived results.
var upgradeUserCmd = &cobra.Command{
	Use:   "upgrade [user-id]",
	Short: "Upgrade a user to the premium tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		userID := args[0]

		e, err := newEnv()
		if err != nil {
			return err
		}
		ctx := context.Background()
		if err := e.users.SetTier(ctx, userID, models.TierPremium); err != nil {
			return fmt.Errorf("error upgrading user: %w", err)
		}
		if err := e.thaw.Publish(ctx, notify.TierUpgrade{UserID: userID}); err != nil {
			return fmt.Errorf("error publishing tier upgrade: %w", err)
		}
		fmt.Printf("User %s upgraded; restoration of archived results requested\n", userID)
		return nil
	},
}
