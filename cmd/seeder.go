package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/assistant-guard/internal/identity"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the directory with users from a YAML file",
	Long:  `Create every user listed in the seed file. Existing usernames or emails are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		ctx := context.Background()

		sf, err := identity.LoadSeedFile(seedFile)
		if err != nil {
			log.Fatalf("failed to load seed file: %v", err)
		}

		deps, err := initializeDependencies(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		res, err := deps.Identity.Seed(ctx, sf)
		if err != nil {
			log.Fatalf("seed failed: %v", err)
		}
		for _, name := range res.Created {
			fmt.Println("Seeded user:", name)
		}
		for _, name := range res.Skipped {
			fmt.Println("User already exists, skipped:", name)
		}
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yml", "YAML file listing users to create")
}
