package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/internal/export"
	"github.com/wonny/merchops/backend/internal/forecast"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "drift / churn / 정확도 리포트",
	Long: `읽기 전용 리포트를 출력합니다.

Subcommands:
  drift     - 대상월 예측 변화 추이
  churn     - churn 상위 품목
  accuracy  - 리드타임별 예측 정확도
  export    - 정확도 리포트 xlsx 저장

Example:
  go run ./cmd/merchops report drift --year 2026 --month 3
  go run ./cmd/merchops report accuracy --year 2026 --horizon 6m
  go run ./cmd/merchops report export --year 2026 --out accuracy.xlsx`,
}

var (
	reportDriftCmd = &cobra.Command{
		Use:   "drift",
		Short: "대상월 예측 변화 추이",
		RunE:  runReportDrift,
	}

	reportChurnCmd = &cobra.Command{
		Use:   "churn",
		Short: "churn 상위 품목",
		RunE:  runReportChurn,
	}

	reportAccuracyCmd = &cobra.Command{
		Use:   "accuracy",
		Short: "리드타임별 예측 정확도",
		RunE:  runReportAccuracy,
	}

	reportExportCmd = &cobra.Command{
		Use:   "export",
		Short: "정확도 리포트 xlsx 저장",
		RunE:  runReportExport,
	}
)

var (
	reportYear      int
	reportMonth     int
	reportVendor    int64
	reportSKU       string
	reportHorizon   string
	reportOrderType string
	reportAsOf      string
	reportLimit     int
	reportOut       string
	reportJSON      bool
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportDriftCmd)
	reportCmd.AddCommand(reportChurnCmd)
	reportCmd.AddCommand(reportAccuracyCmd)
	reportCmd.AddCommand(reportExportCmd)

	reportCmd.PersistentFlags().IntVar(&reportYear, "year", time.Now().Year(), "대상 연도")
	reportCmd.PersistentFlags().BoolVar(&reportJSON, "json", false, "결과를 JSON으로 출력")

	reportDriftCmd.Flags().IntVar(&reportMonth, "month", 0, "대상 월 (필수)")
	reportDriftCmd.Flags().Int64Var(&reportVendor, "vendor", 0, "벤더 ID (0 = 전체)")
	reportDriftCmd.Flags().StringVar(&reportSKU, "sku", "", "SKU 또는 컬렉션")
	_ = reportDriftCmd.MarkFlagRequired("month")

	reportChurnCmd.Flags().IntVar(&reportMonth, "month", 0, "대상 월 (필수)")
	reportChurnCmd.Flags().IntVar(&reportLimit, "limit", 20, "출력 개수")
	_ = reportChurnCmd.MarkFlagRequired("month")

	for _, c := range []*cobra.Command{reportAccuracyCmd, reportExportCmd} {
		c.Flags().StringVar(&reportHorizon, "horizon", "90d", "리드타임 (90d|6m)")
		c.Flags().StringVar(&reportOrderType, "order-type", "", "주문 유형 (standard|make-to-order)")
		c.Flags().StringVar(&reportAsOf, "as-of", "", "기준일 YYYY-MM-DD (기본: 오늘)")
	}
	reportExportCmd.Flags().StringVar(&reportOut, "out", "", "저장 경로 (기본: accuracy-<year>-<horizon>.xlsx)")
	reportExportCmd.Flags().IntVar(&reportMonth, "month", 0, "drift 시트를 추가할 대상 월")
}

func runReportDrift(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	q := forecast.DriftQuery{Year: reportYear, Month: reportMonth, SKU: reportSKU}
	if reportVendor > 0 {
		q.VendorID = &reportVendor
	}
	series, err := a.reporter.Drift(context.Background(), q)
	if err != nil {
		return fmt.Errorf("drift: %w", err)
	}
	if reportJSON {
		return printJSON(series)
	}

	PrintHeader(fmt.Sprintf("Drift %04d-%02d (churn %.2f)", series.Year, series.Month, series.ChurnScore))
	widths := []int{12, 16, 10, 6}
	PrintTableHeader([]string{"Captured", "Value", "Quantity", "Rows"}, widths)
	for _, p := range series.Points {
		PrintTableRow([]string{
			p.CapturedAt.Format("2006-01-02"), formatMoney(p.Value), fmt.Sprint(p.Quantity), fmt.Sprint(p.Rows),
		}, widths)
	}
	return nil
}

func runReportChurn(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	leaders, err := a.reporter.ChurnLeaders(context.Background(), reportYear, reportMonth, reportLimit)
	if err != nil {
		return fmt.Errorf("churn: %w", err)
	}
	if reportJSON {
		return printJSON(leaders)
	}

	PrintHeader(fmt.Sprintf("Churn leaders %04d-%02d", reportYear, reportMonth))
	widths := []int{10, 16, 7, 16, 8}
	PrintTableHeader([]string{"Vendor", "SKU", "Points", "Latest", "Churn"}, widths)
	for _, e := range leaders {
		PrintTableRow([]string{
			e.VendorCode, e.SKU, fmt.Sprint(e.Points), formatMoney(e.Latest), fmt.Sprintf("%.2f", e.ChurnScore),
		}, widths)
	}
	return nil
}

func accuracyQuery() (forecast.HorizonQuery, error) {
	q := forecast.HorizonQuery{Year: reportYear}

	h, err := forecast.ParseHorizon(reportHorizon)
	if err != nil {
		return q, err
	}
	q.Horizon = h

	if reportOrderType != "" {
		ot, ok := contracts.ParseOrderType(reportOrderType)
		if !ok {
			return q, fmt.Errorf("%w: %q", forecast.ErrInvalidOrderType, reportOrderType)
		}
		q.OrderType = ot
	}
	if reportAsOf != "" {
		t, err := time.Parse("2006-01-02", reportAsOf)
		if err != nil {
			return q, fmt.Errorf("parse --as-of: %w", err)
		}
		q.AsOf = t
	}
	return q, nil
}

func runReportAccuracy(cmd *cobra.Command, args []string) error {
	q, err := accuracyQuery()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.reporter.HorizonAccuracy(context.Background(), q)
	if err != nil {
		return fmt.Errorf("accuracy: %w", err)
	}
	if reportJSON {
		return printJSON(report)
	}

	PrintHeader(fmt.Sprintf("Accuracy %d (%s) as of %s", report.Year, report.Horizon, report.AsOf.Format("2006-01-02")))
	widths := []int{5, 16, 16, 16, 8, 5, 9, 6}
	PrintTableHeader([]string{"Month", "Projected", "Actual", "Variance", "Pct", "Keys", "Fallback", "Missed"}, widths)
	for _, p := range report.Points {
		PrintTableRow([]string{
			fmt.Sprint(p.Month), formatMoney(p.Projected), formatMoney(p.Actual), formatMoney(p.VarianceDollar),
			formatPct(p.VariancePct), fmt.Sprint(p.SnapshotKeys), fmt.Sprint(p.Fallbacks), fmt.Sprint(p.Missed),
		}, widths)
	}
	PrintSeparator()
	PrintKeyValue("Projected", formatMoney(report.Projected), 10)
	PrintKeyValue("Actual", formatMoney(report.Actual), 10)
	return nil
}

func runReportExport(cmd *cobra.Command, args []string) error {
	q, err := accuracyQuery()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	report, err := a.reporter.HorizonAccuracy(ctx, q)
	if err != nil {
		return fmt.Errorf("accuracy: %w", err)
	}

	wb, err := export.NewWorkbook()
	if err != nil {
		return err
	}
	defer wb.Close()

	if err := wb.AddAccuracy(report); err != nil {
		return err
	}
	if reportMonth >= 1 && reportMonth <= 12 {
		series, err := a.reporter.Drift(ctx, forecast.DriftQuery{Year: reportYear, Month: reportMonth})
		if err != nil {
			return fmt.Errorf("drift: %w", err)
		}
		if err := wb.AddDrift(series); err != nil {
			return err
		}
	}

	out := reportOut
	if out == "" {
		out = export.AccuracyFilename(report)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()

	if _, err := wb.WriteTo(f); err != nil {
		return err
	}
	PrintSuccess("Saved " + out)
	return nil
}
