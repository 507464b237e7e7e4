package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/i474232898/aeroimpact/internal/telemetry"
)

func newFlightsCmd(opts *rootOptions) *cobra.Command {
	var (
		bbox     string
		extended bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "flights",
		Short: "Fetch and print the current airborne flights as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := telemetry.Filter{Extended: extended}
			if bbox != "" {
				box, err := parseBBox(bbox)
				if err != nil {
					return err
				}
				filter.BBox = box
			}

			comps, err := buildComponents(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer comps.Close()

			flights, err := comps.snapshots.GetFlights(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if limit > 0 && len(flights) > limit {
				flights = flights[:limit]
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(flights)
		},
	}

	cmd.Flags().StringVar(&bbox, "bbox", "", "bounding box as lamin,lomin,lamax,lomax")
	cmd.Flags().BoolVar(&extended, "extended", false, "request aircraft categories")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many flights (0 = all)")
	return cmd
}

func parseBBox(s string) (*telemetry.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox needs 4 comma-separated values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	return &telemetry.BoundingBox{LaMin: v[0], LoMin: v[1], LaMax: v[2], LoMax: v[3]}, nil
}
