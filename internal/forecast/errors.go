package forecast

import (
	"errors"
	"fmt"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// 엔진 공통 에러
var (
	ErrPendingNotFound   = errors.New("pending import not found, re-upload")
	ErrBeliefNotFound    = fmt.Errorf("belief %w", contracts.ErrNotFound)
	ErrInvalidTransition = errors.New("invalid match status transition")
	ErrReasonRequired    = errors.New("reason is required")
	ErrRunInProgress     = errors.New("run already in progress")
	ErrOrderRefNotFound  = errors.New("order reference not found")
	ErrNoValidRows       = errors.New("no valid forecast rows")
	ErrInvalidDecision   = errors.New("invalid pending decision")
	ErrInvalidOrderType  = errors.New("invalid order type")
)
