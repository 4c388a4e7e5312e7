package forecast

import "math"

// OverDeliveryPct 예측 0 대비 실제 발주가 있는 경우의 센티널 (무한 초과)
const OverDeliveryPct = 100

// Variance 예측 대비 실제 차이
type Variance struct {
	Quantity int64
	Value    int64
	Pct      *int
}

// ComputeVariance 예측/실제 수량·금액 차이 계산
func ComputeVariance(forecastQty, forecastValue, actualQty, actualValue int64) Variance {
	return Variance{
		Quantity: actualQty - forecastQty,
		Value:    actualValue - forecastValue,
		Pct:      VariancePct(forecastValue, actualValue),
	}
}

// VariancePct round((actual - forecast) / forecast * 100)
// forecast == 0: actual == 0 이면 nil, actual > 0 이면 OverDeliveryPct
func VariancePct(forecastValue, actualValue int64) *int {
	if forecastValue <= 0 {
		if actualValue > 0 {
			pct := OverDeliveryPct
			return &pct
		}
		return nil
	}

	pct := int(math.Round(float64(actualValue-forecastValue) / float64(forecastValue) * 100))
	return &pct
}
