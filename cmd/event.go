package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/assistant-guard/internal/risk"
)

var eventCmd = &cobra.Command{
	Use:   "events",
	Short: "Security event log commands",
	Long:  `Inspect and prune the persisted security event log`,
}

var (
	eventUser  string
	eventLevel string
	eventLimit int
	eventAge   time.Duration
)

var listEventsCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted security events, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		deps, ctx := eventLogDependencies()
		defer deps.Close()

		filter := risk.EventFilter{UserID: eventUser, Limit: eventLimit}
		if eventLevel != "" {
			level, err := risk.ParseLevel(eventLevel)
			if err != nil {
				log.Fatalf("invalid level: %v", err)
			}
			filter.Level = level
		}

		list, err := deps.EventLog.List(ctx, filter)
		if err != nil {
			log.Fatalf("list events: %v", err)
		}
		printJSON(list)
	},
}

var purgeEventsCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete persisted security events older than --older-than",
	Run: func(cmd *cobra.Command, args []string) {
		deps, ctx := eventLogDependencies()
		defer deps.Close()

		removed, err := deps.EventLog.Purge(ctx, time.Now().Add(-eventAge))
		if err != nil {
			log.Fatalf("purge events: %v", err)
		}
		deps.Logger.Info("security events purged", "removed", removed, "older_than", eventAge)
	},
}

func eventLogDependencies() (*Dependencies, context.Context) {
	cfg := mustLoadConfig()
	cfg.Risk.EventLogEnabled = true
	ctx := context.Background()

	deps, err := initializeDependencies(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init dependencies: %v", err)
	}
	return deps, ctx
}

func init() {
	listEventsCmd.Flags().StringVar(&eventUser, "user", "", "only events for this user id")
	listEventsCmd.Flags().StringVar(&eventLevel, "level", "", "only events at this risk level")
	listEventsCmd.Flags().IntVar(&eventLimit, "limit", risk.DefaultEventLimit, "maximum number of events")
	purgeEventsCmd.Flags().DurationVar(&eventAge, "older-than", 30*24*time.Hour, "age beyond which events are deleted")

	eventCmd.AddCommand(listEventsCmd)
	eventCmd.AddCommand(purgeEventsCmd)

	rootCmd.AddCommand(eventCmd)
}
