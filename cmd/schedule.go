package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/kpiscribe/kpiscribe/internal/facts"
	"github.com/kpiscribe/kpiscribe/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run recurring narrative generation on the configured cron schedule",
	Long: `Runs in the foreground and generates a narrative for the latest closed
month every time the configured cron schedule fires. Stop with Ctrl-C.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().Bool("now", false, "also run one generation immediately on startup")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Schedule == "" {
		return fmt.Errorf("no schedule configured: set `schedule` in %s (e.g. \"0 9 3 * *\")", cfgFile)
	}

	log := newLogger()
	database, factStore, sinkStore, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	requester, err := buildRequester(cfg, log, factStore, sinkStore)
	if err != nil {
		return err
	}

	run := func(ctx context.Context, period facts.PeriodKey) error {
		_, err := requester.Generate(ctx, period)
		return err
	}

	sched := scheduler.New(log, cfg.Schedule, cfg.ClosingLagDays, clockwork.NewRealClock(), run)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	if runNow, _ := cmd.Flags().GetBool("now"); runNow {
		sched.RunOnce(ctx)
	}

	<-ctx.Done()
	sched.Stop()
	fmt.Fprintln(os.Stderr, "Scheduler stopped.")
	return nil
}
