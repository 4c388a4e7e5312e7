package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/merchops/backend/internal/forecast"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "merch 스키마 생성",
	Long: `merch 스키마 (vendors, forecast_snapshots, active_beliefs,
purchase_order_lines)와 인덱스를 생성합니다. 여러 번 실행해도 안전합니다.

Example:
  go run ./cmd/merchops migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := forecast.Migrate(ctx, a.db.Pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	PrintSuccess("Schema is up to date")
	return nil
}
