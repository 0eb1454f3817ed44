package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quantlab-io/tradecost/internal/api"
	"github.com/quantlab-io/tradecost/internal/config"
	"github.com/quantlab-io/tradecost/internal/marketdata"
	"github.com/quantlab-io/tradecost/internal/sim"
	"github.com/quantlab-io/tradecost/internal/store"
	"github.com/quantlab-io/tradecost/internal/volatility"
)

func newServeCmd() *cobra.Command {
	var (
		noFeed bool
		replay string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with live market data ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine := sim.NewEngine(cfg)
			server := api.NewServer(cfg.HTTP, engine)
			wireStore(ctx, cfg.Store, server)

			vol := volatility.NewCalculator(cfg.Volatility.Windows, cfg.Volatility.EWMALambda)
			processor := marketdata.NewProcessor(engine, vol, cfg.MarketData.UpdatesPerSecond)
			handleMsg := func(msg []byte) {
				if err := processor.Handle(msg); err != nil {
					log.Warn().Err(err).Msg("dropping bad snapshot")
					return
				}
				server.Metrics().MarketUpdates.Inc()
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(ctx) })

			switch {
			case replay != "":
				g.Go(func() error {
					// Loop the recording until shutdown
					for ctx.Err() == nil {
						if err := marketdata.Replay(ctx, replay, 50*time.Millisecond, handleMsg); err != nil {
							return err
						}
					}
					return ctx.Err()
				})
			case !noFeed:
				client := marketdata.NewClient(cfg.MarketData, handleMsg)
				g.Go(func() error { return client.Run(ctx) })
			}

			err = g.Wait()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if serr := engine.Shutdown(shutdownCtx); serr != nil {
				log.Warn().Err(serr).Msg("engine shutdown incomplete")
			}

			if err == context.Canceled {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noFeed, "no-feed", false, "Serve without connecting to the live feed")
	cmd.Flags().StringVar(&replay, "replay", "", "Loop a recorded snapshot file instead of the live feed")

	return cmd
}

// wireStore attaches the optional persistence backends to the server
func wireStore(ctx context.Context, cfg config.StoreConfig, server *api.Server) {
	var (
		repo *store.Repo
		pub  *store.Publisher
	)

	if cfg.PostgresDSN != "" {
		db, err := store.Open(cfg.PostgresDSN)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, persistence disabled")
		} else {
			repo = store.NewRepo(db, 0)
			log.Info().Msg("postgres persistence enabled")
		}
	}

	if cfg.RedisAddr != "" {
		p := store.NewPublisher(cfg.RedisAddr)
		if err := p.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, publishing disabled")
		} else {
			pub = p
			log.Info().Msg("redis publishing enabled")
		}
	}

	resultHook, batchHook := storeHooks(ctx, repo, pub)
	if resultHook != nil {
		server.SetResultHook(resultHook)
	}
	if batchHook != nil {
		server.SetBatchHook(batchHook)
	}
}

// storeHooks fans results and batches out to whichever backends are
// present; either hook is nil when no backend wants it.
func storeHooks(ctx context.Context, repo *store.Repo, pub *store.Publisher) (func(sim.Result), func(*sim.BatchResult)) {
	var (
		resultHooks []func(sim.Result)
		batchHooks  []func(*sim.BatchResult)
	)

	if repo != nil {
		resultHooks = append(resultHooks, func(res sim.Result) {
			if err := repo.InsertSimulation(ctx, res); err != nil {
				log.Warn().Err(err).Msg("persist simulation")
			}
		})
		batchHooks = append(batchHooks, func(br *sim.BatchResult) {
			if err := repo.InsertBatch(ctx, br); err != nil {
				log.Warn().Err(err).Msg("persist batch")
			}
		})
	}

	if pub != nil {
		resultHooks = append(resultHooks, func(res sim.Result) {
			if err := pub.PublishResult(ctx, res); err != nil {
				log.Warn().Err(err).Msg("publish result")
			}
		})
		batchHooks = append(batchHooks, func(br *sim.BatchResult) {
			if err := pub.PublishBatch(ctx, br); err != nil {
				log.Warn().Err(err).Msg("publish batch")
			}
		})
	}

	var resultHook func(sim.Result)
	if len(resultHooks) > 0 {
		resultHook = func(res sim.Result) {
			for _, hook := range resultHooks {
				hook(res)
			}
		}
	}
	var batchHook func(*sim.BatchResult)
	if len(batchHooks) > 0 {
		batchHook = func(br *sim.BatchResult) {
			for _, hook := range batchHooks {
				hook(br)
			}
		}
	}
	return resultHook, batchHook
}
