package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/autorewarder/internal/config"
	"github.com/elys-network/autorewarder/internal/operator"
	"github.com/elys-network/autorewarder/internal/web"
)

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run the operator loop and the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runOperator,
}

var cmdCycle = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single operator cycle and exit",
	Args:  cobra.NoArgs,
	RunE:  runSingleCycle,
}

var flagRun struct {
	NoWeb bool
}

func init() {
	cmdRun.Flags().BoolVar(&flagRun.NoWeb, "no-web", false, "Do not start the HTTP API and dashboard")
	cmdMain.AddCommand(cmdRun, cmdCycle)
}

func newOperator(a *app) (*operator.Operator, error) {
	return operator.New(operator.Config{
		Rewarder:  a.rewarder,
		Sink:      a.sink,
		Store:     a.store,
		Vaults:    config.Vaults,
		BatchSize: config.BatchSize,

		AbandonStaleCycles: config.AbandonStaleCycles,
	})
}

func runOperator(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	op, err := newOperator(a)
	if err != nil {
		return err
	}

	// --- Start Web Server ---
	var webServer *web.WebServer
	if !flagRun.NoWeb {
		webServer, err = web.NewWebServer(web.Config{
			Port:      config.WebPort,
			Rewarder:  a.rewarder,
			Store:     a.store,
			APIToken:  config.APIToken,
			BatchSize: config.BatchSize,
		})
		if err != nil {
			return err
		}
		go func() {
			log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting rewarder web dashboard")
			if err := webServer.Start(); err != nil {
				log.Error().Err(err).Msg("Web server failed")
			}
		}()
	}

	log.Info().Str("interval", config.LoopInterval.String()).Msg("Starting operator main loop")
	op.RunLoop(ctx, config.LoopInterval)

	if webServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Web server shutdown failed")
		}
	}
	log.Info().Msg("Rewarder stopped")
	return nil
}

func runSingleCycle(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	op, err := newOperator(a)
	if err != nil {
		return err
	}
	snapshot, err := op.RunCycle(ctx)
	if printErr := printJSON(snapshot); printErr != nil {
		log.Error().Err(printErr).Msg("Failed to print cycle snapshot")
	}
	return err
}
