package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/merchops/backend/internal/api"
	"github.com/wonny/merchops/backend/internal/api/handlers"
	"github.com/wonny/merchops/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET    /health
  GET    /api/forecast/beliefs             - active belief 조회
  GET    /api/forecast/drift               - 대상월 예측 변화 추이
  GET    /api/forecast/churn               - churn 상위 품목
  GET    /api/forecast/accuracy            - 리드타임별 정확도 (1분 캐시)
  GET    /api/forecast/accuracy/export     - 정확도 xlsx
  POST   /api/forecast/imports             - 예측 import
  GET    /api/forecast/imports/{handle}    - 검토 대기 요약
  DELETE /api/forecast/imports/{handle}    - 검토 대기 폐기
  POST   /api/forecast/imports/{handle}/complete
  POST   /api/forecast/match | /sweep
  POST   /api/forecast/beliefs/{id}/{unmatch|match|remove|verify|restore|order-type|comment}

Example:
  go run ./cmd/merchops api
  go run ./cmd/merchops api --port 8089 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort       string
	withScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
	apiCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "같은 프로세스에서 스케줄러 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== MerchOps Forecast API Server ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	forecastHandler := handlers.NewForecastHandler(handlers.ForecastServices{
		Store:    a.store,
		Importer: a.importer,
		Matcher:  a.matcher,
		Sweeper:  a.sweeper,
		Admin:    a.admin,
		Reporter: a.reporter,
		Cache:    redis.NewCache(a.redis),
	}, a.log)

	var schedulerHandler *handlers.SchedulerHandler
	if withScheduler {
		sched, err := a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		schedulerHandler = handlers.NewSchedulerHandler(sched, a.log)
	}

	router := api.NewRouter(forecastHandler, schedulerHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
