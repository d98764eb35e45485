package main

import (
	"encoding/json"
	"time"

	"github.com/gcoo-labs/pinch/internal/maps"
	"github.com/spf13/cobra"
)

// cliState is the persisted state of the CLI
type cliState struct {
	LastRecordID string       `json:"lastRecordId,omitempty"`
	RecordCount  int          `json:"recordCount"`
	LastSyncedAt *time.Time   `json:"lastSyncedAt,omitempty"`
	MapCenter    *maps.LatLng `json:"mapCenter,omitempty"`
}

func newStateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show persisted CLI state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(c.state.Get())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear persisted CLI state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.state.Replace(cliState{})
			c.println("State cleared")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Show state transitions recorded by this invocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(c.state.History())
		},
	})

	return cmd
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
