package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <experiment file>",
		Short: "Check an experiment file against the deck layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateExperiment(configPath(cmd), args[0], cmd.OutOrStdout())
		},
	}
}

// validateExperiment loads the deck layout and an experiment file without
// touching any hardware and reports what a run would visit.
//
// Returns:
//   - error: Wrapped scanlist.ErrConfiguration or experiment.ErrInvalidParams
//     when the document does not fit the deck or cannot run
func validateExperiment(path, expFile string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	layout, err := deck.LoadLayout(cfg.Deck.LayoutFile)
	if err != nil {
		return fmt.Errorf("loading deck layout: %w", err)
	}
	units := deck.Units(cfg.Deck.TranslateUnits)
	if err := units.Validate(); err != nil {
		return err
	}

	doc, err := scanlist.LoadDocument(expFile)
	if err != nil {
		return err
	}
	store := scanlist.NewStore(deck.NewResolver(layout, units))
	if err := store.Load(doc); err != nil {
		return err
	}

	points := store.Snapshot()
	params := experiment.ParamsFrom(store.ExpInfo(), store.ScanParams())
	if err := params.Validate(points); err != nil {
		return err
	}

	wells := make(map[scanlist.WellKey]struct{})
	for _, p := range points {
		wells[p.Key()] = struct{}{}
	}
	fmt.Fprintf(out, "experiment %q: %d points in %d wells, %d scans\n",
		store.ExpInfo().Name, len(points), len(wells), doc.ScanParams.NumberScans)
	return nil
}
