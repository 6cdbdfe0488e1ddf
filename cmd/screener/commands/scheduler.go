package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halallens/screener/internal/scheduler"
	"github.com/halallens/screener/internal/scheduler/jobs"
)

// schedulerCmd runs the screening pipeline on a schedule
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run scheduled screening jobs",
	Long: `Starts the job scheduler. Pending filings are picked up and
run through the pipeline every 30 minutes.

Example:
  go run ./cmd/screener scheduler`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(app.log)
	if err := sched.AddJob(jobs.NewScreeningJob(app.orchestrator, app.cfg, app.log)); err != nil {
		return fmt.Errorf("register screening job: %w", err)
	}

	sched.Start()
	fmt.Println("Scheduler running. Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}
