package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gcoo-labs/pinch/internal/query"
	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/gcoo-labs/pinch/internal/store"
	"github.com/gcoo-labs/pinch/internal/telemetry"
	"github.com/gcoo-labs/pinch/sdk"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli holds everything a command needs. It is built once per invocation
// by the root command's PersistentPreRunE.
type cli struct {
	out io.Writer

	configDir string
	jsonOut   bool

	v          *viper.Viper
	local      *storage.SQLite
	api        sdk.Client
	qc         *query.Client
	state      *store.Store[cliState]
	closeState func() error
}

func newRootCmd(out io.Writer) (*cobra.Command, *cli) {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "pinch",
		Short:         "pinch is a terminal front end for the pinch API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.teardown()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configDir, "config-dir", defaultConfigDir, "configuration directory")
	flags.BoolVar(&c.jsonOut, "json", false, "output as JSON")
	flags.String("api", "", "API base URL (default: config api_base_url)")
	flags.String("storage", "", "local storage database path")
	flags.String("state-backend", "", "state backend: sqlite, memory, redis, postgres, spaces")

	root.AddCommand(newLoginCmd(c))
	root.AddCommand(newLogoutCmd(c))
	root.AddCommand(newRecordsCmd(c))
	root.AddCommand(newMapCmd(c))
	root.AddCommand(newStateCmd(c))

	return root, c
}

func (c *cli) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	configDir, err := expandHome(c.configDir)
	if err != nil {
		return err
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		cfgKeyAPIBaseURL:   "api",
		cfgKeyStoragePath:  "storage",
		cfgKeyStateBackend: "state-backend",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	c.v = v

	logCfg := telemetry.NewConfigFromEnv()
	logCfg.ServiceName = "pinch-cli"
	logCfg.ServiceVersion = version
	logCfg.LogLevel = v.GetString(cfgKeyLogLevel)
	logCfg.Environment = v.GetString(cfgKeyEnvironment)
	logCfg.ExportToFile = false
	if err := telemetry.InitLogger(logCfg); err != nil {
		return err
	}
	log := telemetry.WithFields(logrus.Fields{"component": "cli"})

	c.local, err = storage.NewSQLite(ctx, v.GetString(cfgKeyStoragePath))
	if err != nil {
		return fmt.Errorf("open local storage: %w", err)
	}

	apiCfg := sdk.DefaultConfig().
		WithBaseURL(v.GetString(cfgKeyAPIBaseURL)).
		WithTokenSource(sdk.NewStorageTokenSource(c.local))
	c.api, err = sdk.NewClient(apiCfg)
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	c.qc = query.NewClient(query.WithLogger(log))

	backend, closeBackend, err := openStateBackend(ctx, v, c.local)
	if err != nil {
		return fmt.Errorf("open state backend: %w", err)
	}
	c.closeState = closeBackend

	c.state = store.New(cliState{}, store.Config{
		Name:    v.GetString(cfgKeyStateName),
		Persist: true,
	},
		store.WithStorage[cliState](backend),
		store.WithEnvironment[cliState](v.GetString(cfgKeyEnvironment)),
		store.WithLogger[cliState](log),
	)
	return nil
}

func (c *cli) teardown() error {
	var errs []error
	if c.state != nil {
		c.state.Destroy()
	}
	if c.qc != nil {
		c.qc.Close()
	}
	if c.api != nil {
		errs = append(errs, c.api.Close())
	}
	if c.closeState != nil {
		errs = append(errs, c.closeState())
	}
	if c.local != nil {
		errs = append(errs, c.local.Close())
	}
	return errors.Join(errs...)
}

func (c *cli) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}
