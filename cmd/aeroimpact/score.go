package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/aeroimpact/internal/impact"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var (
		pos      telemetry.FlightPosition
		callsign string
		save     bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one flight position with the configured risk providers",
		Example: `  aeroimpact score --flight-id 3c6444 --lat 50.03 --lon 8.57 --alt 10500
  aeroimpact score --lat 40.64 --lon -73.78 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
				return errors.New("--lat and --lon are required")
			}
			if callsign != "" {
				pos.Callsign = &callsign
			}
			pos.Timestamp = time.Now().UTC()

			comps, err := buildComponents(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			var imp impact.Impact
			if save {
				imp, err = comps.service.Assess(cmd.Context(), pos)
			} else {
				imp, err = comps.service.Evaluate(cmd.Context(), pos)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(imp)
		},
	}

	cmd.Flags().StringVar(&pos.FlightID, "flight-id", "manual", "flight identifier (icao24)")
	cmd.Flags().StringVar(&callsign, "callsign", "", "flight callsign")
	cmd.Flags().Float64Var(&pos.Latitude, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&pos.Longitude, "lon", 0, "longitude in degrees")
	cmd.Flags().Float64Var(&pos.Altitude, "alt", 0, "altitude in metres")
	cmd.Flags().BoolVar(&save, "save", false, "persist and publish the impact")
	return cmd
}
