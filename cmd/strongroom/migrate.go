package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strongroomhq/strongroom/pkg/clock"
	"github.com/strongroomhq/strongroom/pkg/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	Long: `Apply all pending schema migrations to the configured database.
Migrations are embedded in the binary; running against a current schema is
a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		down, _ := cmd.Flags().GetBool("down")

		store, err := storage.NewPostgresStore(storage.PostgresConfig{
			DSN: cfg.Database.DSN,
		}, clock.Real{})
		if err != nil {
			return fmt.Errorf("failed to open database: %v", err)
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach database: %v", err)
		}

		if down {
			fmt.Println("Rolling back all migrations...")
			if err := storage.MigrateDown(store.DB()); err != nil {
				return fmt.Errorf("failed to roll back migrations: %v", err)
			}
			fmt.Println("✓ Rollback complete")
			return nil
		}

		fmt.Println("Applying migrations...")
		if err := storage.Migrate(store.DB()); err != nil {
			return fmt.Errorf("failed to apply migrations: %v", err)
		}
		fmt.Println("✓ Migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("down", false, "Roll back every migration (development only)")
}
