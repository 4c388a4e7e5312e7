package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/internal/forecast"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import [rows.json]",
	Short: "예측 스냅샷 import",
	Long: `정규화된 예측 행(JSON)을 import 합니다.

파일은 ForecastRow 배열 또는 {"rows": [...]} 형식입니다.
캡처 일자는 --captured-at, 파일명 날짜(YYYY-MM-DD), 오늘 순으로 결정됩니다.

미확인 벤더가 있으면 아무것도 기록하지 않고 검토 핸들을 출력합니다.
--decisions 파일을 주면 같은 실행에서 곧바로 결정을 적용합니다.
(메모리 백엔드에서는 핸들이 프로세스 종료와 함께 사라집니다)

Example:
  go run ./cmd/merchops import forecast_2026-01-05.json --category bedding
  go run ./cmd/merchops import rows.json --category bath --decisions decisions.json
  go run ./cmd/merchops import complete <handle> decisions.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importCompleteCmd = &cobra.Command{
		Use:   "complete [handle] [decisions.json]",
		Short: "검토 대기 import 완료 (redis 백엔드)",
		Args:  cobra.ExactArgs(2),
		RunE:  runImportComplete,
	}

	importShowCmd = &cobra.Command{
		Use:   "show [handle]",
		Short: "검토 대기 import 요약",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportShow,
	}

	importCancelCmd = &cobra.Command{
		Use:   "cancel [handle]",
		Short: "검토 대기 import 폐기",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCancel,
	}
)

var (
	importCategory   string
	importCapturedAt string
	importBy         string
	importDecisions  string
	importJSON       bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importCompleteCmd)
	importCmd.AddCommand(importShowCmd)
	importCmd.AddCommand(importCancelCmd)

	importCmd.Flags().StringVar(&importCategory, "category", "", "카테고리 그룹 (필수)")
	importCmd.Flags().StringVar(&importCapturedAt, "captured-at", "", "캡처 일자 YYYY-MM-DD")
	importCmd.Flags().StringVar(&importBy, "by", "", "import 수행자")
	importCmd.Flags().StringVar(&importDecisions, "decisions", "", "미확인 벤더 결정 파일 (JSON)")
	importCmd.PersistentFlags().BoolVar(&importJSON, "json", false, "결과를 JSON으로 출력")
	_ = importCmd.MarkFlagRequired("category")
}

func runImport(cmd *cobra.Command, args []string) error {
	req, err := readImportRequest(args[0])
	if err != nil {
		return err
	}
	req.CategoryGroup = importCategory
	if importBy != "" {
		req.ImportedBy = importBy
	}
	if importCapturedAt != "" {
		t, err := time.Parse("2006-01-02", importCapturedAt)
		if err != nil {
			return fmt.Errorf("parse --captured-at: %w", err)
		}
		req.CapturedAt = &t
	}

	var decisions map[string]forecast.Decision
	if importDecisions != "" {
		if decisions, err = readDecisions(importDecisions); err != nil {
			return err
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	res, err := a.importer.Propose(ctx, req)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if res.Status == forecast.ImportPendingReview && decisions != nil {
		printImportResult(res)
		fmt.Println()
		PrintInfo("Applying vendor decisions")
		if res, err = a.importer.Complete(ctx, res.Pending.Handle, decisions); err != nil {
			return fmt.Errorf("complete import: %w", err)
		}
	}

	return reportImport(res)
}

func runImportComplete(cmd *cobra.Command, args []string) error {
	decisions, err := readDecisions(args[1])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.importer.Complete(context.Background(), args[0], decisions)
	if err != nil {
		return fmt.Errorf("complete import: %w", err)
	}
	return reportImport(res)
}

func runImportShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.importer.Pending(context.Background(), args[0])
	if err != nil {
		return err
	}
	if importJSON {
		return printJSON(summary)
	}
	printPendingSummary(summary)
	return nil
}

func runImportCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.importer.Cancel(context.Background(), args[0]); err != nil {
		return err
	}
	PrintSuccess("Pending import cancelled")
	return nil
}

// readImportRequest ForecastRow 배열 또는 ImportRequest 객체
func readImportRequest(path string) (forecast.ImportRequest, error) {
	req := forecast.ImportRequest{Filename: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return req, fmt.Errorf("decode %s: %w", path, err)
		}
		if req.Filename == "" {
			req.Filename = filepath.Base(path)
		}
		return req, nil
	}

	var rows []contracts.ForecastRow
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return req, fmt.Errorf("decode %s: %w", path, err)
	}
	req.Rows = rows
	return req, nil
}

func readDecisions(path string) (map[string]forecast.Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var decisions map[string]forecast.Decision
	if err := json.Unmarshal(data, &decisions); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return decisions, nil
}

func reportImport(res *forecast.ImportResult) error {
	if importJSON {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printImportResult(res)
	}
	if res.Status == forecast.ImportFailed {
		return fmt.Errorf("import failed: %s", res.Error)
	}
	return nil
}

func printImportResult(res *forecast.ImportResult) {
	PrintHeader("Forecast Import")
	PrintKeyValue("Status", string(res.Status), 12)
	PrintKeyValue("Captured", res.CapturedAt.Format("2006-01-02"), 12)
	PrintKeyValue("Succeeded", fmt.Sprint(res.Succeeded), 12)
	PrintKeyValue("Failed", fmt.Sprint(res.Failed), 12)
	PrintKeyValue("Skipped", fmt.Sprint(res.Skipped), 12)
	if res.Verify != nil {
		PrintKeyValue("Verification", string(res.Verify.Status), 12)
	}

	if len(res.Cohorts) > 0 {
		fmt.Println()
		widths := []int{8, 6, 14, 8, 9, 20}
		PrintTableHeader([]string{"Vendor", "Year", "Category", "Beliefs", "Replaced", "Error"}, widths)
		for _, c := range res.Cohorts {
			PrintTableRow([]string{
				fmt.Sprint(c.Key.VendorID),
				fmt.Sprint(c.Key.TargetYear),
				c.Key.CategoryGroup,
				fmt.Sprint(c.Beliefs),
				fmt.Sprint(c.Replaced.Beliefs),
				c.Error,
			}, widths)
		}
	}

	if res.Pending != nil {
		fmt.Println()
		printPendingSummary(res.Pending)
	}

	if len(res.Warnings) > 0 {
		fmt.Println()
		PrintWarning(fmt.Sprintf("%d warnings", len(res.Warnings)))
		PrintList(res.Warnings)
	}
	if res.Error != "" {
		PrintError(res.Error)
	}
}

func printPendingSummary(s *forecast.PendingSummary) {
	PrintInfo(fmt.Sprintf("Pending review: %s (expires %s)", s.Handle, s.ExpiresAt.Format(time.RFC3339)))
	PrintKeyValue("Resolved rows", fmt.Sprint(s.ResolvedRows), 14)
	widths := []int{16, 24, 6, 14}
	PrintTableHeader([]string{"Identifier", "Name", "Rows", "Value"}, widths)
	for _, g := range s.Groups {
		PrintTableRow([]string{g.Identifier, g.VendorName, fmt.Sprint(g.RowCount), formatMoney(g.TotalValue)}, widths)
	}
}
