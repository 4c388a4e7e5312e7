package commands

import (
	"fmt"

	"github.com/wonny/merchops/backend/internal/forecast"
	"github.com/wonny/merchops/backend/internal/orders"
	"github.com/wonny/merchops/backend/internal/vendors"
	"github.com/wonny/merchops/backend/pkg/config"
	"github.com/wonny/merchops/backend/pkg/database"
	"github.com/wonny/merchops/backend/pkg/logger"
	"github.com/wonny/merchops/backend/pkg/redis"
)

// app 커맨드 공용 의존성
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB
	redis  *redis.Client
	locker *redis.Locker

	store    *forecast.Repository
	orders   *orders.Repository
	vendors  *vendors.Repository
	policy   forecast.DeadlinePolicy
	importer *forecast.Importer
	matcher  *forecast.Matcher
	sweeper  *forecast.Sweeper
	admin    *forecast.Admin
	reporter *forecast.Reporter
}

// newApp config → logger → database → redis → 엔진 순서로 초기화
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rc, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	pending, err := newPendingStore(cfg, rc)
	if err != nil {
		rc.Close()
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		redis:   rc,
		locker:  redis.NewLocker(rc),
		store:   forecast.NewRepository(db.Pool),
		orders:  orders.NewRepository(db.Pool),
		vendors: vendors.NewRepository(db.Pool),
		policy:  forecast.NewDeadlinePolicy(cfg.Forecast.MTOGraceDays),
	}

	zl := log.Zerolog()
	a.importer = forecast.NewImporter(a.store, a.vendors, pending, cfg.Forecast, zl)
	a.matcher = forecast.NewMatcher(a.store, a.orders, a.locker, zl)
	a.sweeper = forecast.NewSweeper(a.store, a.policy, a.locker, zl)
	a.admin = forecast.NewAdmin(a.store, a.orders, zl)
	a.reporter = forecast.NewReporter(a.store, a.orders, a.policy, zl)

	log.WithFields(map[string]interface{}{
		"env":             cfg.Env,
		"redis":           rc.Enabled(),
		"pending_backend": cfg.Forecast.PendingBackend,
	}).Debug("Application initialized")

	return a, nil
}

// newPendingStore FORECAST_PENDING_BACKEND에 따라 선택
func newPendingStore(cfg *config.Config, rc *redis.Client) (forecast.PendingStore, error) {
	switch cfg.Forecast.PendingBackend {
	case "redis":
		store, err := forecast.NewRedisPendingStore(rc, nil)
		if err != nil {
			return nil, fmt.Errorf("create redis pending store: %w", err)
		}
		return store, nil
	default:
		return forecast.NewMemoryPendingStore(nil), nil
	}
}

// Close 연결 해제
func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	a.db.Close()
}
