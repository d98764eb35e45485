package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gcoo-labs/pinch/internal/airtable"
	"github.com/gcoo-labs/pinch/internal/api"
	"github.com/gcoo-labs/pinch/internal/events"
	"github.com/gcoo-labs/pinch/internal/query"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// recordsKey is the query key the record list is cached under
var recordsKey = query.Key{"airtable", "records"}

const recordsPath = "airtable"

// envelope is the response shape of every /api endpoint
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

func listPath(maxRecords int) string {
	return recordsPath + "?maxRecords=" + strconv.Itoa(maxRecords)
}

func recordPath(id string) string {
	return recordsPath + "?recordId=" + url.QueryEscape(id)
}

func newRecordsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"r"},
		Short:   "List and edit records",
	}

	var maxRecords int
	list := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxRecords <= 0 {
				return fmt.Errorf("--max must be positive")
			}
			q := query.APIQuery[envelope[airtable.ListResponse]](c.qc, c.api, recordsKey, listPath(maxRecords))
			res := q.Fetch(cmd.Context())
			if res.IsError() {
				return res.Err
			}
			c.recordSync(len(res.Data.Data.Records))
			return c.printRecords(res.Data.Data.Records)
		},
	}
	list.Flags().IntVarP(&maxRecords, "max", "n", 10, "maximum number of records")

	get := &cobra.Command{
		Use:   "get <recordId>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := query.Key{recordsKey[0], recordsKey[1], args[0]}
			q := query.APIQuery[envelope[airtable.Record]](c.qc, c.api, key, recordPath(args[0]))
			res := q.Fetch(cmd.Context())
			if res.IsError() {
				return res.Err
			}
			return c.printRecords([]airtable.Record{res.Data.Data})
		},
	}

	create := &cobra.Command{
		Use:   "create <field=value>...",
		Short: "Create a record",
		Long: `Create a record from field=value pairs. Values are parsed as JSON
when possible and kept as strings otherwise.

Example:
  pinch records create Name=Seoul Visits=3 Tags='["a","b"]'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args)
			if err != nil {
				return err
			}
			m, err := query.APIMutation[envelope[airtable.Record], api.CreateRecordRequest](
				c.qc, c.api, recordsPath, query.MethodPost, mutationOptions[envelope[airtable.Record], api.CreateRecordRequest](c, func(e envelope[airtable.Record]) string { return e.Data.ID }))
			if err != nil {
				return err
			}
			res, err := m.Mutate(cmd.Context(), api.CreateRecordRequest{Fields: fields})
			if err != nil {
				return err
			}
			return c.printRecords([]airtable.Record{res.Data})
		},
	}

	update := &cobra.Command{
		Use:   "update <recordId> <field=value>...",
		Short: "Update fields of a record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			m, err := query.APIMutation[envelope[airtable.Record], api.UpdateRecordRequest](
				c.qc, c.api, recordsPath, query.MethodPatch, mutationOptions[envelope[airtable.Record], api.UpdateRecordRequest](c, func(e envelope[airtable.Record]) string { return e.Data.ID }))
			if err != nil {
				return err
			}
			res, err := m.Mutate(cmd.Context(), api.UpdateRecordRequest{RecordID: args[0], Fields: fields})
			if err != nil {
				return err
			}
			return c.printRecords([]airtable.Record{res.Data})
		},
	}

	del := &cobra.Command{
		Use:   "delete <recordId>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := query.APIMutation[envelope[airtable.DeleteResponse], map[string]string](
				c.qc, c.api, recordsPath, query.MethodDelete, mutationOptions[envelope[airtable.DeleteResponse], map[string]string](c, func(e envelope[airtable.DeleteResponse]) string { return e.Data.ID }))
			if err != nil {
				return err
			}
			res, err := m.Mutate(cmd.Context(), map[string]string{query.PathParamsKey: recordPath(args[0])})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(res.Data)
			}
			c.println("Deleted", res.Data.ID)
			return nil
		},
	}

	var natsURL string
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print the record list whenever another client changes it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.watch(cmd.Context(), natsURL, maxRecords)
		},
	}
	watch.Flags().StringVar(&natsURL, "nats-url", "", "NATS server (default: config nats_url)")
	watch.Flags().IntVarP(&maxRecords, "max", "n", 10, "maximum number of records")

	cmd.AddCommand(list, get, create, update, del, watch)
	return cmd
}

// mutationOptions remembers the touched record in CLI state and
// invalidates the record list
func mutationOptions[T, V any](c *cli, id func(T) string) query.MutationOptions[T, V] {
	return query.MutationOptions[T, V]{
		OnSuccess: func(ctx context.Context, data T, _ V) {
			recordID := id(data)
			c.state.Apply("mutate", func(s cliState) cliState {
				s.LastRecordID = recordID
				return s
			})
			c.qc.Invalidate(recordsKey)
		},
	}
}

func (c *cli) recordSync(count int) {
	now := time.Now().UTC()
	c.state.Apply("sync", func(s cliState) cliState {
		s.RecordCount = count
		s.LastSyncedAt = &now
		return s
	})
}

func (c *cli) printRecords(records []airtable.Record) error {
	if c.jsonOut {
		return c.printJSON(records)
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tFIELDS")
	for _, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.CreatedTime, fields)
	}
	return w.Flush()
}

// parseFields turns field=value arguments into a field map. Values that
// parse as JSON keep their JSON type.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q (expected name=value)", arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		fields[name] = parsed
	}
	return fields, nil
}

// watch prints the record list, then reprints it every time a mutation
// event invalidates it
func (c *cli) watch(ctx context.Context, natsURL string, maxRecords int) error {
	cfg := events.NewConfigFromEnv()
	cfg.Name = "pinch-cli"
	cfg.Source = "pinch-cli-" + uuid.NewString()
	cfg.URL = natsURL
	if cfg.URL == "" {
		cfg.URL = c.v.GetString(cfgKeyNATSURL)
	}
	if !cfg.Enabled() {
		return fmt.Errorf("no NATS server configured (use --nats-url or nats_url)")
	}

	bus, err := events.NewNATSBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q := query.APIQuery[envelope[airtable.ListResponse]](c.qc, c.api, recordsKey, listPath(maxRecords))
	updates := make(chan query.Result[envelope[airtable.ListResponse]], 1)
	unsubscribe := q.Subscribe(func(r query.Result[envelope[airtable.ListResponse]]) {
		if r.IsFetching {
			return
		}
		select {
		case updates <- r:
		default:
		}
	})
	defer unsubscribe()

	stopEvents, err := c.qc.InvalidateOnEvents(bus, cfg.Source)
	if err != nil {
		return err
	}
	defer stopEvents()

	first := q.Fetch(ctx)
	if first.IsError() {
		return first.Err
	}
	if err := c.printRecords(first.Data.Data.Records); err != nil {
		return err
	}
	// the first fetch was already printed
	select {
	case <-updates:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-updates:
			if r.IsError() {
				fmt.Fprintln(c.out, "refresh failed:", r.Err)
				continue
			}
			c.recordSync(len(r.Data.Data.Records))
			fmt.Fprintf(c.out, "\n-- %s --\n", r.UpdatedAt.Format(time.RFC3339))
			if err := c.printRecords(r.Data.Data.Records); err != nil {
				return err
			}
		}
	}
}
