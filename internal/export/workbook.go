package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/wonny/merchops/backend/internal/forecast"
)

// ContentType xlsx 응답 MIME
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	accuracySheet = "Accuracy"
	driftSheet    = "Drift"
)

var accuracyHeadings = []string{
	"Month", "Projected", "Actual", "Variance", "Variance %", "Snapshot Keys", "Fallbacks", "Missed",
}

var driftHeadings = []string{"Captured At", "Value", "Quantity", "Rows"}

// Workbook 리포트 xlsx 작성기
type Workbook struct {
	f      *excelize.File
	header int
	money  int
}

// NewWorkbook 빈 워크북 생성
func NewWorkbook() (*Workbook, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create money style: %w", err)
	}

	return &Workbook{f: f, header: header, money: money}, nil
}

// AddAccuracy 정확도 리포트 시트
func (w *Workbook) AddAccuracy(r *forecast.HorizonReport) error {
	if err := w.sheet(accuracySheet); err != nil {
		return err
	}
	title := fmt.Sprintf("%d accuracy (%s", r.Year, r.Horizon)
	if r.OrderType != "" {
		title += ", " + string(r.OrderType)
	}
	title += ")"
	if err := w.f.SetCellValue(accuracySheet, "A1", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := w.headings(accuracySheet, 2, accuracyHeadings); err != nil {
		return err
	}

	row := 3
	for _, p := range r.Points {
		pct := any("")
		if p.VariancePct != nil {
			pct = *p.VariancePct
		}
		values := []any{
			p.Month, major(p.Projected), major(p.Actual), major(p.VarianceDollar),
			pct, p.SnapshotKeys, p.Fallbacks, p.Missed,
		}
		if err := w.row(accuracySheet, row, values); err != nil {
			return err
		}
		row++
	}

	total := []any{"Total", major(r.Projected), major(r.Actual), major(r.Actual - r.Projected)}
	if err := w.row(accuracySheet, row, total); err != nil {
		return err
	}
	return w.moneyColumns(accuracySheet, 3, row, "B", "D")
}

// AddDrift drift 시계열 시트
func (w *Workbook) AddDrift(s *forecast.DriftSeries) error {
	if err := w.sheet(driftSheet); err != nil {
		return err
	}
	title := fmt.Sprintf("%04d-%02d drift (churn %.2f)", s.Year, s.Month, s.ChurnScore)
	if err := w.f.SetCellValue(driftSheet, "A1", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := w.headings(driftSheet, 2, driftHeadings); err != nil {
		return err
	}

	row := 3
	for _, p := range s.Points {
		values := []any{p.CapturedAt.Format("2006-01-02"), major(p.Value), p.Quantity, p.Rows}
		if err := w.row(driftSheet, row, values); err != nil {
			return err
		}
		row++
	}
	if row == 3 {
		return nil
	}
	return w.moneyColumns(driftSheet, 3, row-1, "B", "B")
}

// WriteTo 워크북 직렬화
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	// 기본 시트는 사용한 시트가 있을 때만 제거
	if len(w.f.GetSheetList()) > 1 {
		if err := w.f.DeleteSheet("Sheet1"); err != nil {
			return 0, fmt.Errorf("delete default sheet: %w", err)
		}
	}
	n, err := w.f.WriteTo(out)
	if err != nil {
		return n, fmt.Errorf("write workbook: %w", err)
	}
	return n, nil
}

// Close 내부 리소스 해제
func (w *Workbook) Close() error {
	return w.f.Close()
}

// SheetNames 현재 시트 목록
func (w *Workbook) SheetNames() []string {
	return w.f.GetSheetList()
}

// AccuracyFilename 다운로드 파일명
func AccuracyFilename(r *forecast.HorizonReport) string {
	name := fmt.Sprintf("accuracy-%d-%s", r.Year, r.Horizon)
	if r.OrderType != "" {
		name += "-" + string(r.OrderType)
	}
	return name + ".xlsx"
}

func (w *Workbook) sheet(name string) error {
	idx, err := w.f.NewSheet(name)
	if err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.f.SetActiveSheet(idx)
	return nil
}

func (w *Workbook) headings(sheet string, row int, headings []string) error {
	values := make([]any, len(headings))
	for i, h := range headings {
		values[i] = h
	}
	if err := w.row(sheet, row, values); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(headings), row)
	if err := w.f.SetCellStyle(sheet, first, last, w.header); err != nil {
		return fmt.Errorf("style headings: %w", err)
	}
	return nil
}

func (w *Workbook) row(sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (w *Workbook) moneyColumns(sheet string, fromRow, toRow int, fromCol, toCol string) error {
	first := fmt.Sprintf("%s%d", fromCol, fromRow)
	last := fmt.Sprintf("%s%d", toCol, toRow)
	if err := w.f.SetCellStyle(sheet, first, last, w.money); err != nil {
		return fmt.Errorf("style money cells: %w", err)
	}
	return nil
}

// major 최소 단위 금액을 표시 단위로 변환
func major(minor int64) float64 {
	v, _ := decimal.New(minor, -2).Float64()
	return v
}
