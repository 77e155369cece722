package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/config"
	"github.com/Sternrassler/mstr-client/pkg/filter"
	"github.com/Sternrassler/mstr-client/pkg/logging"
	"github.com/Sternrassler/mstr-client/pkg/metrics"
	"github.com/Sternrassler/mstr-client/pkg/output"
	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what the subcommands share once the root command initialized.
type app struct {
	cfgFile     string
	metricsAddr string

	cfg         *config.Config
	logger      zerolog.Logger
	client      *client.Client
	rdb         *redis.Client
	stopMetrics context.CancelFunc
	metricsDone chan error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "mstrctl",
		Short: "Export reports and manage objects on a MicroStrategy server",
		Long: `mstrctl talks to the MicroStrategy REST API. It downloads report and
cube results in parallel chunks and manages events, subscriptions and
folders.`,
		Version:            fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:       true,
		PersistentPreRunE:  a.initialize,
		PersistentPostRunE: a.shutdown,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./config.yaml, ~/.mstrctl/config.yaml or /etc/mstrctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(
		newStatusCmd(a),
		newReportCmd(a),
		newCubeCmd(a),
		newEventCmd(a),
		newSubscriptionCmd(a),
		newFolderCmd(a),
	)
	return rootCmd
}

// initialize loads the configuration and creates the client.
func (a *app) initialize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	a.logger = logging.Setup(lc)

	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if cfg.Metrics.Addr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		a.stopMetrics = cancel
		a.metricsDone = make(chan error, 1)
		go func() { a.metricsDone <- metrics.Serve(ctx, cfg.Metrics.Addr) }()
	}

	a.rdb = cfg.RedisClient()
	if a.rdb != nil {
		if err := a.rdb.Ping(cmd.Context()).Err(); err != nil {
			a.logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, continuing without cache")
			a.rdb.Close()
			a.rdb = nil
		}
	}

	a.client, err = client.New(cfg.ClientConfig(a.rdb))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// shutdown releases the session and stops the metrics endpoint.
func (a *app) shutdown(cmd *cobra.Command, args []string) error {
	if a.client != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
		defer cancel()
		if err := a.client.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close session")
		}
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsDone; err != nil {
			return err
		}
	}
	return nil
}

// filter compiles a --filter value. "@name" selects a preset from the
// config file.
func (a *app) filter(expression string) (*filter.Filter, error) {
	switch {
	case expression == "":
		return nil, nil
	case strings.HasPrefix(expression, "@"):
		return a.cfg.Preset(strings.TrimPrefix(expression, "@"))
	default:
		f, err := filter.Compile(expression)
		if err != nil {
			return nil, fmt.Errorf("invalid filter expression: %w", err)
		}
		return f, nil
	}
}

// outputFlags are shared by every command that prints a table.
type outputFlags struct {
	format string
	path   string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", "table", "output format ("+strings.Join(output.Names(), ", ")+")")
	cmd.Flags().StringVarP(&o.path, "output", "o", "", "write to this file instead of stdout")
}

func (o *outputFlags) write(cmd *cobra.Command, tbl *pagination.Table) error {
	formatter, err := output.ByName(o.format)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if o.path != "" {
		f, err := os.Create(o.path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if err := formatter.Format(tbl, w); err != nil {
		return fmt.Errorf("write %s output: %w", formatter.Name(), err)
	}
	return nil
}

// listTable turns API objects into a table with the given columns.
func listTable[T any](items []T, columns ...string) (*pagination.Table, error) {
	tbl := &pagination.Table{Columns: columns, Rows: make([]pagination.Row, 0, len(items))}
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		var row pagination.Row
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, err
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// progress prints a progress line to stderr when it is a terminal.
func progress(cmd *cobra.Command) pagination.ProgressFunc {
	w := cmd.ErrOrStderr()
	if !logging.IsTerminal(w) {
		return nil
	}
	return func(p pagination.Progress) {
		fmt.Fprintf(w, "\r%d/%d chunks, %d/%d rows", p.Chunks, p.TotalChunks, p.Rows, p.TotalRows)
		if p.Chunks == p.TotalChunks {
			fmt.Fprintln(w)
		}
	}
}
