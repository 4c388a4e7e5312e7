package forecast

import (
	"time"

	"github.com/wonny/merchops/backend/internal/contracts"
)

const (
	// StandardLeadMonths 일반 주문 리드타임 (90일)
	StandardLeadMonths = 3
	// DefaultMTOGraceDays 주문 생산 유예 기간 (30일 리드타임 정책)
	DefaultMTOGraceDays = 14
	// BacktestMTOWindowDays 백테스트용 MTO 기한 (마지막 스냅샷 + 40일)
	BacktestMTOWindowDays = 40
)

// DeadlinePolicy 발주 기한 계산
// 실시간 정리(LiveDeadline)와 정확도 백테스트(BacktestDeadline)는 MTO 공식이 다르며 둘 다 유지한다
type DeadlinePolicy struct {
	MTOGraceDays int
}

// NewDeadlinePolicy 새 정책 생성 (graceDays <= 0 이면 기본값)
func NewDeadlinePolicy(graceDays int) DeadlinePolicy {
	if graceDays <= 0 {
		graceDays = DefaultMTOGraceDays
	}
	return DeadlinePolicy{MTOGraceDays: graceDays}
}

// StandardDeadline (대상월 - 3개월) 1일의 전날
// 2026-03 → 2025-11-30
func StandardDeadline(year, month int) time.Time {
	return time.Date(year, time.Month(month)-StandardLeadMonths, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// LiveDeadline 만료 스윕용 기한
func (p DeadlinePolicy) LiveDeadline(b contracts.ActiveBelief) time.Time {
	if b.OrderType == contracts.OrderTypeMTO {
		// 대상월 직전 월의 말일 + 유예
		lastOfPrev := time.Date(b.TargetYear, time.Month(b.TargetMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		return lastOfPrev.AddDate(0, 0, p.MTOGraceDays)
	}
	return StandardDeadline(b.TargetYear, b.TargetMonth)
}

// BacktestDeadline 정확도 리포트용 기한
func (p DeadlinePolicy) BacktestDeadline(b contracts.ActiveBelief) time.Time {
	if b.OrderType == contracts.OrderTypeMTO {
		return truncateDay(b.LastSnapshotDate).AddDate(0, 0, BacktestMTOWindowDays)
	}
	return StandardDeadline(b.TargetYear, b.TargetMonth)
}

// PastDeadline today(날짜 기준)가 기한을 지났는지
func PastDeadline(today, deadline time.Time) bool {
	return truncateDay(today).After(deadline)
}
