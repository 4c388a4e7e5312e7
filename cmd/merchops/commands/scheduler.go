package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/merchops/backend/internal/scheduler"
	"github.com/wonny/merchops/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

등록되는 작업:
- matching:         FORECAST_MATCH_CRON (기본 매시 15분)
- expiration_sweep: FORECAST_SWEEP_CRON (기본 매일 02:00)
- pending_cleanup:  FORECAST_PENDING_CLEANUP_CRON (기본 10분마다)

Example:
  go run ./cmd/merchops scheduler start
  go run ./cmd/merchops scheduler run expiration_sweep`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler 엔진 작업 등록
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	fc := a.cfg.Forecast
	for _, job := range []scheduler.Job{
		jobs.NewMatchingJob(a.matcher, fc.MatchCron, a.log),
		jobs.NewExpirationSweepJob(a.sweeper, fc.SweepCron, a.log),
		jobs.NewPendingCleanupJob(a.importer, fc.PendingCleanupCron, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== MerchOps Scheduler ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	PrintList(sched.GetAllJobs())
	fmt.Println("\nPress Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	printJobStats(sched)

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Registered jobs:")
	for name, stat := range sched.GetJobStats() {
		PrintKeyValue(name, stat.Schedule, 18)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJobSync(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	switch {
	case result.Success:
		PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration))
	case result.Skipped:
		PrintWarning(fmt.Sprintf("%s skipped: another run is in progress", jobName))
	default:
		PrintError(fmt.Sprintf("%s failed: %s", jobName, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	fmt.Println("\nJob Statistics:")
	for jobName, stat := range sched.GetJobStats() {
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)
		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}
	}
}
