package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ncobase/jobstream/internal/data"
	"github.com/ncobase/jobstream/internal/job/data/repository"
	jobHandler "github.com/ncobase/jobstream/internal/job/handler"
	"github.com/ncobase/jobstream/internal/job/service"
	"github.com/ncobase/jobstream/internal/progress"
	"github.com/ncobase/jobstream/internal/queue"
	"github.com/ncobase/jobstream/internal/realtime"
	"github.com/ncobase/jobstream/internal/server"
	"github.com/ncobase/jobstream/pkg/jwt"
	"github.com/ncobase/jobstream/pkg/logger"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and realtime gateway",
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
			svc := service.New(jobs, logs, archive, broker, publisher, conf.Jobs)

			tokens := jwt.NewTokenManager(conf.Auth.Secret)

			hub := realtime.NewHub(conf.Gateway.OwnerScoped)
			go hub.Run(ctx)
			go func() {
				sub := realtime.NewSubscriber(publisher, hub)
				for ctx.Err() == nil {
					if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
						logger.StdLogger().Errorf(ctx, "realtime subscriber stopped, restarting: %v", err)
						time.Sleep(time.Second)
					}
				}
			}()

			srv := server.New(conf, d,
				jobHandler.NewJobHandler(svc),
				realtime.NewHandler(hub, tokens),
				tokens,
			)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(ctx) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
