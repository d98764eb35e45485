package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gcoo-labs/pinch/internal/maps"
	"github.com/gcoo-labs/pinch/sdk"
	"github.com/spf13/cobra"
)

func newMapCmd(c *cli) *cobra.Command {
	var center string

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show the map widget configuration",
		Long: `Show the map widget configuration served by the API. With --center the
view is moved and the new center is remembered for later invocations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if center != "" {
				p, err := parseLatLng(center)
				if err != nil {
					return err
				}
				c.state.Apply("map/center", func(s cliState) cliState {
					s.MapCenter = &p
					return s
				})
			}

			res, err := sdk.Get[envelope[maps.Widget]](cmd.Context(), c.api, "map")
			if err != nil {
				return err
			}
			widget := res.Data
			if saved := c.state.Get().MapCenter; saved != nil {
				widget.Map.Center = *saved
			}

			if c.jsonOut {
				return c.printJSON(widget)
			}
			fmt.Fprintf(c.out, "provider: %s\nscript:   %s\ncenter:   %g, %g\nzoom:     %d\n",
				widget.Provider, widget.ScriptURL, widget.Map.Center.Lat, widget.Map.Center.Lng, widget.Map.Zoom)
			return nil
		},
	}
	cmd.Flags().StringVar(&center, "center", "", "move the view to lat,lng")
	return cmd
}

func parseLatLng(s string) (maps.LatLng, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return maps.LatLng{}, fmt.Errorf("invalid center %q (expected lat,lng)", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return maps.LatLng{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return maps.LatLng{}, fmt.Errorf("invalid longitude: %w", err)
	}
	p := maps.LatLng{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return maps.LatLng{}, err
	}
	return p, nil
}
