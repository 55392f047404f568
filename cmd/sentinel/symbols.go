package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/symbols"
)

func newSymbolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List the configured trading universe and its per-venue mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			universe, err := symbols.Load(cfg.SymbolsFile)
			if err != nil {
				return fmt.Errorf("load symbol universe: %w", err)
			}

			venues := []model.Venue{model.VenueBinance, model.VenueBybit, model.VenueMEXC, model.VenueLBank}
			fmt.Printf("%d symbols loaded from %s\n\n", len(universe.Symbols()), cfg.SymbolsFile)
			for _, v := range venues {
				fmt.Printf("%-8s %v\n", v, universe.ForVenue(v))
			}
			return nil
		},
	}
}
