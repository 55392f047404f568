package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/hub"
	"github.com/sawpanic/shortsentinel/internal/journal"
	"github.com/sawpanic/shortsentinel/internal/metrics"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/notifier"
	"github.com/sawpanic/shortsentinel/internal/orchestrator"
	"github.com/sawpanic/shortsentinel/internal/symbols"
	"github.com/sawpanic/shortsentinel/internal/venue"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the ingestion, scoring, and signal engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), *configPath)
		},
	}
}

func runEngine(parentCtx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	universe, err := symbols.Load(cfg.SymbolsFile)
	if err != nil {
		return fmt.Errorf("load symbol universe: %w", err)
	}
	log.Info().Int("symbols", len(universe.Symbols())).Str("file", cfg.SymbolsFile).Msg("loaded symbol universe")

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	reg := metrics.New()

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.New(universe, cfg)

	adapters := []venue.Adapter{
		venue.NewBinanceAdapter(),
		venue.NewBybitAdapter(),
		venue.NewMEXCAdapter(),
		venue.NewLBankAdapter(),
	}

	orch := orchestrator.New(cfg, h, universe, j, notifier.NewLogNotifier(), reg)

	errc := make(chan error, len(adapters)+4)

	for _, a := range adapters {
		a := a
		venueSymbols := universe.ForVenue(a.Venue())
		if a.Venue() == model.VenueLBank {
			venueSymbols = lbankWireSymbols(venueSymbols)
		}
		go func() {
			errc <- fmt.Errorf("venue adapter %s: %w", a.Venue(), a.Run(ctx, venueSymbols, h.Intake()))
		}()
	}

	binanceClient := venue.NewRESTClient("binance", 5)
	binanceAdapter := venue.NewBinanceAdapter()
	go func() {
		errc <- fmt.Errorf("funding/oi poll: %w", h.RunFundingOIPoll(ctx, binanceAdapter, binanceClient, universe.ForVenue(model.VenueBinance)))
	}()

	go func() {
		errc <- fmt.Errorf("hub: %w", h.Run(ctx))
	}()

	btcClient := venue.NewRESTClient("btc-regime", 1)
	go func() {
		orch.RunBTCPoll(ctx, btcClient)
		errc <- nil
	}()

	go func() {
		errc <- fmt.Errorf("orchestrator: %w", orch.Run(ctx))
	}()

	server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(reg)}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errc:
		if err != nil {
			log.Error().Err(err).Msg("component exited with error, shutting down")
		}
	}

	stop()
	_ = server.Close()
	return nil
}

func metricsMux(reg *metrics.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	return mux
}

// lbankWireSymbols is a no-op placeholder: LBank's Run accepts canonical
// symbols and translates to wire form internally via symbols.ToLBank, so no
// translation is needed at the call site. Kept for call-site symmetry with
// the other venues' ForVenue filtering.
func lbankWireSymbols(canonical []string) []string { return canonical }
