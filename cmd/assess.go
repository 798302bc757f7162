package cmd

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/assistant-guard/internal/notification"
	"github.com/frahmantamala/assistant-guard/internal/risk"
)

var (
	assessUser         string
	assessPatternsOnly bool
)

var assessCmd = &cobra.Command{
	Use:   "assess [command text]",
	Short: "Assess the risk of a command from the terminal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		ctx := context.Background()

		deps, err := initializeDependencies(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()
		if assessPatternsOnly {
			deps.Engine.WithClassifier(nil)
		}

		assessment := deps.Engine.Assess(ctx, risk.Request{
			Command:    args[0],
			UserID:     assessUser,
			ClientAddr: "cli",
		})
		printJSON(assessment)
	},
}

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Administrator alert commands",
}

var alertTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test security alert through the configured notifiers",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		deps, err := initializeDependencies(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		alert := notification.Alert{
			Type:       notification.TypeSecurityAlert,
			Severity:   risk.LevelHigh.String(),
			UserID:     "cli",
			Command:    "alert test",
			Categories: []string{"test"},
			Reasoning:  "Test alert sent from the command line",
			Timestamp:  time.Now(),
			Action:     "logged",
		}

		if err := notification.NewLogNotifier(deps.Logger).Notify(ctx, alert); err != nil {
			log.Fatalf("log notifier failed: %v", err)
		}
		if deps.Webhook == nil {
			deps.Logger.Info("no webhook configured; alert logged only")
			return
		}
		if err := deps.Webhook.Send(ctx, alert); err != nil {
			log.Fatalf("webhook delivery failed: %v", err)
		}
		deps.Logger.Info("test alert delivered", "webhook", cfg.Notification.WebhookURL)
	},
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}

func init() {
	assessCmd.Flags().StringVarP(&assessUser, "user", "u", "cli", "user id recorded on the security event")
	assessCmd.Flags().BoolVar(&assessPatternsOnly, "patterns-only", true, "skip the external classifier")

	alertCmd.AddCommand(alertTestCmd)
}
