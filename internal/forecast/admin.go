package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// transitions 허용 상태 전이 (수동 매칭은 removed 외 모든 상태에서 별도 허용)
var transitions = map[contracts.MatchStatus][]contracts.MatchStatus{
	contracts.MatchUnmatched: {
		contracts.MatchPartial, contracts.MatchMatched, contracts.MatchExpired,
		contracts.MatchVerifiedUnmatched, contracts.MatchRemoved,
	},
	contracts.MatchPartial: {
		contracts.MatchMatched, contracts.MatchExpired, contracts.MatchUnmatched, contracts.MatchRemoved,
	},
	contracts.MatchMatched: {
		contracts.MatchUnmatched, contracts.MatchRemoved,
	},
	contracts.MatchExpired: {
		contracts.MatchUnmatched, contracts.MatchVerifiedUnmatched, contracts.MatchRemoved, contracts.MatchMatched,
	},
	contracts.MatchVerifiedUnmatched: {
		contracts.MatchUnmatched, contracts.MatchRemoved,
	},
	contracts.MatchRemoved: {
		contracts.MatchUnmatched,
	},
}

// CanTransition from → to 전이 허용 여부
func CanTransition(from, to contracts.MatchStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Admin 관리자 수동 조작
type Admin struct {
	store  contracts.ForecastStore
	orders contracts.OrderSource
	now    func() time.Time
	log    zerolog.Logger
}

// NewAdmin 새 관리자 서비스 생성
func NewAdmin(store contracts.ForecastStore, orders contracts.OrderSource, log zerolog.Logger) *Admin {
	return &Admin{
		store:  store,
		orders: orders,
		now:    time.Now,
		log:    log.With().Str("component", "forecast.admin").Logger(),
	}
}

// WithClock 테스트용 시계 주입
func (a *Admin) WithClock(now func() time.Time) *Admin {
	a.now = now
	return a
}

// Unmatch 매칭 해제 → unmatched, 매칭 필드 초기화
func (a *Admin) Unmatch(ctx context.Context, id int64, by string) (*contracts.ActiveBelief, error) {
	return a.mutate(ctx, id, "unmatch", func(b *contracts.ActiveBelief) error {
		if b.MatchStatus != contracts.MatchMatched && b.MatchStatus != contracts.MatchPartial {
			return transitionError(b.MatchStatus, contracts.MatchUnmatched)
		}
		b.ClearMatch()
		b.MatchStatus = contracts.MatchUnmatched
		b.StatusBy = optional(by)
		return nil
	})
}

// ManualMatch 지정 발주 번호로 수동 매칭, 실적은 해당 PO 합계
func (a *Admin) ManualMatch(ctx context.Context, id int64, orderRef, by string) (*contracts.ActiveBelief, error) {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return nil, fmt.Errorf("%w: empty order reference", ErrOrderRefNotFound)
	}

	return a.mutate(ctx, id, "manual_match", func(b *contracts.ActiveBelief) error {
		if b.MatchStatus == contracts.MatchRemoved {
			return transitionError(b.MatchStatus, contracts.MatchMatched)
		}

		totals, err := a.orders.ReferenceTotals(ctx, b.VendorID, orderRef)
		if errors.Is(err, contracts.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrOrderRefNotFound, orderRef)
		}
		if err != nil {
			return fmt.Errorf("load order totals: %w", err)
		}

		now := a.now()
		v := ComputeVariance(b.Quantity, b.ForecastValue, totals.TotalQuantity, totals.TotalValue)
		b.MatchStatus = contracts.MatchMatched
		b.MatchedOrderRef = stringPtr(orderRef)
		b.MatchedAt = &now
		b.ActualQuantity = int64Ptr(totals.TotalQuantity)
		b.ActualValue = int64Ptr(totals.TotalValue)
		b.QuantityVariance = int64Ptr(v.Quantity)
		b.ValueVariance = int64Ptr(v.Value)
		b.VariancePct = v.Pct
		b.StatusBy = optional(by)
		return nil
	})
}

// Remove 리포트에서 제외 (사유 필수)
func (a *Admin) Remove(ctx context.Context, id int64, reason, by string) (*contracts.ActiveBelief, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return a.mutate(ctx, id, "remove", func(b *contracts.ActiveBelief) error {
		if !CanTransition(b.MatchStatus, contracts.MatchRemoved) {
			return transitionError(b.MatchStatus, contracts.MatchRemoved)
		}
		b.MatchStatus = contracts.MatchRemoved
		b.StatusNote = &reason
		b.StatusBy = optional(by)
		return nil
	})
}

// Verify 검증 상태 설정
// verified_unmatched: 실적 0, -100% 로 고정 / unmatched: 복구
func (a *Admin) Verify(ctx context.Context, id int64, status contracts.MatchStatus, note, by string) (*contracts.ActiveBelief, error) {
	switch status {
	case contracts.MatchUnmatched:
		return a.restore(ctx, id, "verify", note, by)
	case contracts.MatchVerifiedUnmatched:
	default:
		return nil, fmt.Errorf("%w: verify status must be %s or %s", ErrInvalidTransition,
			contracts.MatchVerifiedUnmatched, contracts.MatchUnmatched)
	}

	return a.mutate(ctx, id, "verify", func(b *contracts.ActiveBelief) error {
		if !CanTransition(b.MatchStatus, contracts.MatchVerifiedUnmatched) {
			return transitionError(b.MatchStatus, contracts.MatchVerifiedUnmatched)
		}
		b.ClearMatch()
		b.MatchStatus = contracts.MatchVerifiedUnmatched
		b.ActualQuantity = int64Ptr(0)
		b.ActualValue = int64Ptr(0)
		b.QuantityVariance = int64Ptr(-b.Quantity)
		b.ValueVariance = int64Ptr(-b.ForecastValue)
		if b.ForecastValue > 0 {
			b.VariancePct = intPtr(-100)
		}
		b.StatusNote = optional(note)
		b.StatusBy = optional(by)
		return nil
	})
}

// Restore expired/verified_unmatched/removed → unmatched
func (a *Admin) Restore(ctx context.Context, id int64, by string) (*contracts.ActiveBelief, error) {
	return a.restore(ctx, id, "restore", "", by)
}

func (a *Admin) restore(ctx context.Context, id int64, action, note, by string) (*contracts.ActiveBelief, error) {
	return a.mutate(ctx, id, action, func(b *contracts.ActiveBelief) error {
		switch b.MatchStatus {
		case contracts.MatchExpired, contracts.MatchVerifiedUnmatched, contracts.MatchRemoved:
		default:
			return transitionError(b.MatchStatus, contracts.MatchUnmatched)
		}
		b.ClearMatch()
		b.MatchStatus = contracts.MatchUnmatched
		b.StatusNote = optional(note)
		b.StatusBy = optional(by)
		return nil
	})
}

// UpdateOrderType 주문 유형 수정
func (a *Admin) UpdateOrderType(ctx context.Context, id int64, orderType contracts.OrderType) (*contracts.ActiveBelief, error) {
	if !orderType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderType, orderType)
	}
	return a.mutate(ctx, id, "order_type", func(b *contracts.ActiveBelief) error {
		// MTO는 컬렉션으로 매칭하므로 컬렉션 없는 행은 전환 불가
		if orderType == contracts.OrderTypeMTO && strings.TrimSpace(b.Collection) == "" {
			return fmt.Errorf("%w: belief %d has no collection for make-to-order", ErrInvalidOrderType, b.ID)
		}
		b.OrderType = orderType
		return nil
	})
}

// UpdateComment 코멘트 수정 (빈 문자열이면 삭제)
func (a *Admin) UpdateComment(ctx context.Context, id int64, comment, by string) (*contracts.ActiveBelief, error) {
	return a.mutate(ctx, id, "comment", func(b *contracts.ActiveBelief) error {
		b.Comment = optional(comment)
		if b.Comment == nil {
			b.CommentedBy = nil
		} else {
			b.CommentedBy = optional(by)
		}
		return nil
	})
}

func (a *Admin) mutate(ctx context.Context, id int64, action string, fn func(b *contracts.ActiveBelief) error) (*contracts.ActiveBelief, error) {
	b, err := a.store.GetBelief(ctx, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrBeliefNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get belief: %w", err)
	}

	from := b.MatchStatus
	if err := fn(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = a.now()

	if err := a.store.SaveBelief(ctx, b); err != nil {
		return nil, fmt.Errorf("save belief: %w", err)
	}

	a.log.Info().
		Int64("belief_id", id).
		Str("action", action).
		Str("from", string(from)).
		Str("to", string(b.MatchStatus)).
		Msg("belief updated")

	return b, nil
}

func transitionError(from, to contracts.MatchStatus) error {
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
