package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/merchops/backend/internal/forecast"
)

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "active belief ↔ 실제 발주 대사",
	Long: `대상 연도의 unmatched/partial belief를 발주 집계와 대사합니다.
다른 매칭이 실행 중이면 즉시 종료합니다.

Example:
  go run ./cmd/merchops match --year 2026
  go run ./cmd/merchops match --year 2026 --vendor 7`,
	RunE: runMatch,
}

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "발주 기한 경과 belief 만료 처리",
	Long: `발주 기한이 지난 unmatched/partial belief를 expired로 전환합니다.

Example:
  go run ./cmd/merchops sweep`,
	RunE: runSweep,
}

var (
	matchYear   int
	matchVendor int64
	batchJSON   bool
)

func init() {
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(sweepCmd)

	matchCmd.Flags().IntVar(&matchYear, "year", time.Now().Year(), "대상 연도")
	matchCmd.Flags().Int64Var(&matchVendor, "vendor", 0, "벤더 ID (0 = 전체)")
	matchCmd.Flags().BoolVar(&batchJSON, "json", false, "결과를 JSON으로 출력")
	sweepCmd.Flags().BoolVar(&batchJSON, "json", false, "결과를 JSON으로 출력")
}

func runMatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var vendorID *int64
	if matchVendor > 0 {
		vendorID = &matchVendor
	}

	res, err := a.matcher.Run(context.Background(), matchYear, vendorID)
	if errors.Is(err, forecast.ErrRunInProgress) {
		PrintWarning("Another matching run is in progress")
		return nil
	}
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}

	if batchJSON {
		return printJSON(res)
	}

	PrintHeader(fmt.Sprintf("Matching %d", res.Year))
	PrintKeyValue("Checked", fmt.Sprint(res.Checked), 10)
	PrintKeyValue("Matched", fmt.Sprint(res.Matched), 10)
	PrintKeyValue("Partial", fmt.Sprint(res.Partial), 10)
	PrintKeyValue("Unchanged", fmt.Sprint(res.Unchanged), 10)
	PrintKeyValue("Suspect", fmt.Sprint(res.Suspect), 10)
	PrintKeyValue("Failed", fmt.Sprint(res.Failed), 10)
	if len(res.Errors) > 0 {
		PrintList(res.Errors)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.sweeper.Run(context.Background())
	if errors.Is(err, forecast.ErrRunInProgress) {
		PrintWarning("Another sweep is in progress")
		return nil
	}
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if batchJSON {
		return printJSON(res)
	}

	PrintHeader("Expiration Sweep " + res.Today.Format("2006-01-02"))
	PrintKeyValue("Checked", fmt.Sprint(res.Checked), 8)
	PrintKeyValue("Expired", fmt.Sprint(res.Expired), 8)
	PrintKeyValue("Failed", fmt.Sprint(res.Failed), 8)
	if len(res.Errors) > 0 {
		PrintList(res.Errors)
	}
	return nil
}
