package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/wonny/merchops/backend/internal/contracts"
	"github.com/wonny/merchops/backend/internal/forecast"
)

func sampleReport() *forecast.HorizonReport {
	pct := -20
	return &forecast.HorizonReport{
		Year:      2026,
		Horizon:   forecast.Horizon90Days,
		OrderType: contracts.OrderTypeStandard,
		AsOf:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Points: []forecast.HorizonPoint{
			{Month: 1, Projected: 100000, Actual: 80000, VarianceDollar: -20000, VariancePct: &pct, SnapshotKeys: 3},
			{Month: 2},
		},
		Projected: 100000,
		Actual:    80000,
	}
}

func TestWorkbook_Accuracy(t *testing.T) {
	wb, err := NewWorkbook()
	require.NoError(t, err)
	defer wb.Close()

	require.NoError(t, wb.AddAccuracy(sampleReport()))

	var buf bytes.Buffer
	_, err = wb.WriteTo(&buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Accuracy"}, f.GetSheetList())

	title, err := f.GetCellValue("Accuracy", "A1")
	require.NoError(t, err)
	assert.Equal(t, "2026 accuracy (90d, standard)", title)

	rows, err := f.GetRows("Accuracy", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 5) // title, header, 2 months, total
	assert.Equal(t, "Month", rows[1][0])
	assert.Equal(t, "1000", rows[2][1])
	assert.Equal(t, "-200", rows[2][3])
	assert.Equal(t, "-20", rows[2][4])
	assert.Equal(t, "Total", rows[4][0])
}

func TestWorkbook_Drift(t *testing.T) {
	wb, err := NewWorkbook()
	require.NoError(t, err)
	defer wb.Close()

	series := &forecast.DriftSeries{
		Year: 2026, Month: 3, ChurnScore: 12.5,
		Points: []forecast.DriftPoint{
			{CapturedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Value: 50000, Quantity: 10, Rows: 2},
		},
	}
	require.NoError(t, wb.AddAccuracy(sampleReport()))
	require.NoError(t, wb.AddDrift(series))

	var buf bytes.Buffer
	_, err = wb.WriteTo(&buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Accuracy", "Drift"}, f.GetSheetList())
	v, err := f.GetCellValue("Drift", "A3")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-05", v)
}

func TestAccuracyFilename(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, "accuracy-2026-90d-standard.xlsx", AccuracyFilename(r))
	r.OrderType = ""
	assert.Equal(t, "accuracy-2026-90d.xlsx", AccuracyFilename(r))
}
