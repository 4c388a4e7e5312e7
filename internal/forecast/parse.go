package forecast

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// RowParser 예측 행 검증/분류기
type RowParser struct {
	mtoMarker string
	brands    map[string]struct{} // 비어 있으면 모든 브랜드 허용
}

// NewRowParser 새 파서 생성
func NewRowParser(mtoMarker string, brands []string) *RowParser {
	p := &RowParser{
		mtoMarker: strings.ToUpper(strings.TrimSpace(mtoMarker)),
		brands:    make(map[string]struct{}, len(brands)),
	}
	for _, b := range brands {
		p.brands[strings.ToUpper(strings.TrimSpace(b))] = struct{}{}
	}
	return p
}

// parsedRow 검증 통과한 행
type parsedRow struct {
	Index     int
	Row       contracts.ForecastRow
	OrderType contracts.OrderType
	ItemKey   string // standard: SKU, MTO: 컬렉션
	Value     int64
	Quantity  int64
}

// Parse 한 행 검증, 실패 시 경고 메시지로 쓰일 에러 반환
func (p *RowParser) Parse(index int, row contracts.ForecastRow) (*parsedRow, error) {
	if row.TargetMonth < 1 || row.TargetMonth > 12 {
		return nil, fmt.Errorf("invalid target month %d", row.TargetMonth)
	}
	if row.TargetYear < 2000 || row.TargetYear > 2100 {
		return nil, fmt.Errorf("invalid target year %d", row.TargetYear)
	}

	orderType, err := p.classify(row.LeadTimeMarker)
	if err != nil {
		return nil, err
	}

	if len(p.brands) > 0 {
		if _, ok := p.brands[strings.ToUpper(strings.TrimSpace(row.Brand))]; !ok {
			return nil, fmt.Errorf("unrecognized brand code %q", row.Brand)
		}
	}

	var itemKey string
	if orderType == contracts.OrderTypeMTO {
		itemKey = strings.TrimSpace(row.Collection)
		if itemKey == "" {
			return nil, fmt.Errorf("make-to-order row without collection")
		}
	} else {
		itemKey = strings.TrimSpace(row.SKU)
		if itemKey == "" {
			return nil, fmt.Errorf("standard row without sku")
		}
	}

	value, err := parseMoney(row.ForecastValue)
	if err != nil {
		return nil, fmt.Errorf("forecast value: %w", err)
	}

	var cost decimal.Decimal
	if strings.TrimSpace(row.UnitCost) != "" {
		cost, err = parseDecimal(row.UnitCost)
		if err != nil {
			return nil, fmt.Errorf("unit cost: %w", err)
		}
	}

	return &parsedRow{
		Index:     index,
		Row:       row,
		OrderType: orderType,
		ItemKey:   itemKey,
		Value:     value,
		Quantity:  deriveQuantity(value, cost),
	}, nil
}

// classify 리드타임 표기 → 주문 유형 (공백/숫자 = standard, MTO 마커 = make-to-order)
func (p *RowParser) classify(marker string) (contracts.OrderType, error) {
	m := strings.ToUpper(strings.TrimSpace(marker))
	if m == "" {
		return contracts.OrderTypeStandard, nil
	}
	if m == p.mtoMarker {
		return contracts.OrderTypeMTO, nil
	}
	for _, r := range m {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("malformed lead time marker %q", marker)
		}
	}
	return contracts.OrderTypeStandard, nil
}

var moneyCleaner = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "")

func parseDecimal(s string) (decimal.Decimal, error) {
	clean := moneyCleaner.Replace(strings.TrimSpace(s))
	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = strings.TrimSuffix(strings.TrimPrefix(clean, "("), ")")
	}
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty numeric field")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable number %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// parseMoney 통화 문자열 → 최소 통화 단위 (센트)
func parseMoney(s string) (int64, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// deriveQuantity 금액 / 단가 반올림, 단가 없으면 0
func deriveQuantity(valueMinor int64, unitCost decimal.Decimal) int64 {
	if !unitCost.IsPositive() {
		return 0
	}
	return decimal.New(valueMinor, -2).Div(unitCost).Round(0).IntPart()
}

var filenameDatePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`), "2006-01-02"},
	{regexp.MustCompile(`(\d{4}_\d{2}_\d{2})`), "2006_01_02"},
	{regexp.MustCompile(`(\d{8})`), "20060102"},
}

// CaptureDate 캡처 일자 결정: 명시값 → 파일명 날짜 → 오늘 0시
func CaptureDate(explicit *time.Time, filename string, now time.Time) time.Time {
	if explicit != nil && !explicit.IsZero() {
		return truncateDay(*explicit)
	}
	if d, ok := dateFromFilename(filename); ok {
		return d
	}
	return truncateDay(now)
}

func dateFromFilename(filename string) (time.Time, bool) {
	base := filepath.Base(filename)
	for _, p := range filenameDatePatterns {
		m := p.re.FindString(base)
		if m == "" {
			continue
		}
		if d, err := time.Parse(p.layout, m); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
