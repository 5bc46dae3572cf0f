package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ncobase/jobstream/internal/archiver"
	"github.com/ncobase/jobstream/internal/data"
	"github.com/ncobase/jobstream/internal/job/data/repository"
	"github.com/ncobase/jobstream/internal/job/service"
	"github.com/ncobase/jobstream/internal/progress"
	"github.com/ncobase/jobstream/internal/queue"
	"github.com/ncobase/jobstream/internal/worker"
	"github.com/ncobase/jobstream/pkg/logger"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job worker pool with the reconciler and archiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := data.New(conf.Data)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := repository.InitSchema(ctx, d.DB, conf.Data.Database.Driver); err != nil {
				return err
			}

			jobs := repository.NewJobRepo(d.DB)
			logs := repository.NewLogRepo(d.DB)
			archive := repository.NewArchiveRepo(d.DB)

			broker := queue.NewRabbitMQ(d.Rabbit, conf.Jobs.QueueName)
			publisher := progress.NewPublisher(d.Redis, conf.Jobs.Channel, conf.Jobs.CacheTTL)

			rt := worker.NewRuntime(jobs, logs, publisher, conf.Jobs)
			if err := worker.RegisterBuiltInHandlers(rt); err != nil {
				return err
			}

			svc := service.New(jobs, logs, archive, broker, publisher, conf.Jobs)

			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				rt.Run(ctx, broker)
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				archiver.New(archive, conf.Jobs.Retention(), conf.Jobs.ArchiveInterval).Run(ctx)
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				runReconciler(ctx, svc, conf.Jobs.ReconcileInterval, conf.Jobs.ReconcileGrace)
			}()

			logger.StdLogger().Infof(ctx, "worker pool started with %d workers", conf.Jobs.Workers)
			wg.Wait()
			return nil
		},
	}
}

// runReconciler re-dispatches pending jobs whose messages were lost.
func runReconciler(ctx context.Context, svc *service.Service, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.Reconcile(ctx, grace)
			if err != nil {
				logger.StdLogger().Errorf(ctx, "reconcile failed: %v", err)
				continue
			}
			if n > 0 {
				logger.StdLogger().Infof(ctx, "re-dispatched %d stale pending jobs", n)
			}
		}
	}
}
