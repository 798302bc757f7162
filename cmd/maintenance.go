package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Access token diagnostics",
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect [token]",
	Short: "Decode a token and report expiry and revocation without enforcing them",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		ctx := context.Background()

		deps, err := initializeDependencies(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		info, err := deps.Tokens.Info(ctx, args[0])
		if err != nil {
			log.Fatalf("inspect token: %v", err)
		}
		printJSON(info)
	},
}

var activityAge time.Duration

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "User activity log maintenance",
}

var activityCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete activity records older than --older-than",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		ctx := context.Background()

		deps, err := initializeDependencies(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		removed, err := deps.Identity.CleanupActivity(ctx, activityAge)
		if err != nil {
			log.Fatalf("cleanup activity: %v", err)
		}
		deps.Logger.Info("activity cleanup finished", "removed", removed, "older_than", activityAge)
	},
}

func init() {
	activityCleanupCmd.Flags().DurationVar(&activityAge, "older-than", 90*24*time.Hour, "age beyond which activity is deleted")

	tokenCmd.AddCommand(tokenInspectCmd)
	activityCmd.AddCommand(activityCleanupCmd)

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(activityCmd)
}
