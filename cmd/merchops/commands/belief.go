package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/merchops/backend/internal/contracts"
)

// beliefCmd represents the belief command
var beliefCmd = &cobra.Command{
	Use:   "belief",
	Short: "active belief 관리",
	Long: `개별 belief의 상태를 수동으로 조정합니다.

Subcommands:
  unmatch  [id]             - 매칭 해제
  match    [id] [order_ref] - 지정 PO로 수동 매칭
  remove   [id] --reason    - 리포트에서 제외
  verify   [id] --status    - verified_unmatched 확정 또는 unmatched 복구
  restore  [id]             - unmatched로 복구
  order-type [id] [type]    - 주문 유형 수정
  comment  [id] [text]      - 코멘트 수정 (빈 문자열이면 삭제)

Example:
  go run ./cmd/merchops belief match 42 PO-1001 --by ops
  go run ./cmd/merchops belief remove 42 --reason "discontinued"`,
}

var (
	beliefBy     string
	beliefReason string
	beliefStatus string
	beliefNote   string
)

// beliefAction id 파싱 후 Admin 호출
type beliefAction func(ctx context.Context, a *app, id int64, args []string) (*contracts.ActiveBelief, error)

func newBeliefCmd(use, short string, nargs int, action beliefAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid belief id %q", args[0])
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := action(context.Background(), a, id, args[1:])
			if err != nil {
				return err
			}
			PrintSuccess(fmt.Sprintf("Belief %d: %s %s %04d-%02d → %s",
				b.ID, b.VendorCode, b.SKU, b.TargetYear, b.TargetMonth, b.MatchStatus))
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(beliefCmd)
	beliefCmd.PersistentFlags().StringVar(&beliefBy, "by", "", "작업자")

	unmatch := newBeliefCmd("unmatch [id]", "매칭 해제", 1,
		func(ctx context.Context, a *app, id int64, _ []string) (*contracts.ActiveBelief, error) {
			return a.admin.Unmatch(ctx, id, beliefBy)
		})
	match := newBeliefCmd("match [id] [order_ref]", "수동 매칭", 2,
		func(ctx context.Context, a *app, id int64, rest []string) (*contracts.ActiveBelief, error) {
			return a.admin.ManualMatch(ctx, id, rest[0], beliefBy)
		})
	remove := newBeliefCmd("remove [id]", "리포트에서 제외", 1,
		func(ctx context.Context, a *app, id int64, _ []string) (*contracts.ActiveBelief, error) {
			return a.admin.Remove(ctx, id, beliefReason, beliefBy)
		})
	verify := newBeliefCmd("verify [id]", "검증 상태 설정", 1,
		func(ctx context.Context, a *app, id int64, _ []string) (*contracts.ActiveBelief, error) {
			return a.admin.Verify(ctx, id, contracts.MatchStatus(beliefStatus), beliefNote, beliefBy)
		})
	restore := newBeliefCmd("restore [id]", "unmatched로 복구", 1,
		func(ctx context.Context, a *app, id int64, _ []string) (*contracts.ActiveBelief, error) {
			return a.admin.Restore(ctx, id, beliefBy)
		})
	orderType := newBeliefCmd("order-type [id] [type]", "주문 유형 수정", 2,
		func(ctx context.Context, a *app, id int64, rest []string) (*contracts.ActiveBelief, error) {
			ot, _ := contracts.ParseOrderType(rest[0])
			return a.admin.UpdateOrderType(ctx, id, ot)
		})
	comment := newBeliefCmd("comment [id] [text]", "코멘트 수정", 2,
		func(ctx context.Context, a *app, id int64, rest []string) (*contracts.ActiveBelief, error) {
			return a.admin.UpdateComment(ctx, id, rest[0], beliefBy)
		})

	remove.Flags().StringVar(&beliefReason, "reason", "", "제외 사유 (필수)")
	verify.Flags().StringVar(&beliefStatus, "status", string(contracts.MatchVerifiedUnmatched), "verified_unmatched | unmatched")
	verify.Flags().StringVar(&beliefNote, "note", "", "검증 메모")

	beliefCmd.AddCommand(unmatch, match, remove, verify, restore, orderType, comment)
}
