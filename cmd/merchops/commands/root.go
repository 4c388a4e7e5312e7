package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "merchops",
	Short: "MerchOps - 예측 대사 엔진",
	Long: `MerchOps Forecast Reconciliation CLI

벤더 예측 스냅샷을 적재하고 실제 발주와 대사합니다.
import → match → sweep → report 순서로 동작.

Usage:
  go run ./cmd/merchops [command]

Examples:
  go run ./cmd/merchops migrate
  go run ./cmd/merchops import forecast.json --category bedding
  go run ./cmd/merchops match --year 2026
  go run ./cmd/merchops report accuracy --year 2026 --horizon 6m
  go run ./cmd/merchops api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug 로그 출력")
}
