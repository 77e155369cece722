package main

import (
	"fmt"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/Sternrassler/mstr-client/pkg/report"
	"github.com/spf13/cobra"
)

var infoColumns = []string{"id", "name", "subtype", "dateModified"}

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export and list reports",
	}
	cmd.AddCommand(newExportCmd(a, false), newListCmd(a, false))
	return cmd
}

func newCubeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cube",
		Short: "Export and list cubes",
	}
	cmd.AddCommand(newExportCmd(a, true), newListCmd(a, true))
	return cmd
}

func newExportCmd(a *app, cube bool) *cobra.Command {
	var (
		limit      int
		noParallel bool
		instanceID string
		out        outputFlags
	)

	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Download the full result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []report.Option{
				report.WithParallel(a.cfg.Fetch.Parallel && !noParallel),
				report.WithMaterializer(pagination.New(a.cfg.Materializer()).WithLogger(a.logger)),
				report.WithProgress(progress(cmd)),
			}
			if instanceID != "" {
				opts = append(opts, report.WithInstanceID(instanceID))
			}

			newReport := report.New
			if cube {
				newReport = report.NewCube
			}
			r := newReport(a.client, args[0], opts...)

			tbl, err := r.ToTable(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("export %s: %w", args[0], err)
			}
			return out.write(cmd, tbl)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "rows per chunk (0 derives it from the first chunk)")
	cmd.Flags().BoolVar(&noParallel, "no-parallel", false, "download chunks one at a time")
	cmd.Flags().StringVar(&instanceID, "instance", "", "reuse an existing instance")
	out.register(cmd)
	return cmd
}

func newListCmd(a *app, cube bool) *cobra.Command {
	var (
		name       string
		filterExpr string
		limit      int
		out        outputFlags
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objects matching the criteria",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.filter(filterExpr)
			if err != nil {
				return err
			}

			infos, err := report.List(cmd.Context(), a.client, report.ListOptions{
				Name:     name,
				Cubes:    cube,
				Limit:    limit,
				Filter:   f,
				Parallel: a.cfg.Fetch.Parallel,
			})
			if err != nil {
				return err
			}

			tbl, err := listTable(infos, infoColumns...)
			if err != nil {
				return err
			}
			return out.write(cmd, tbl)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "only names containing this value")
	cmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression or @preset")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of objects (0 = all)")
	out.register(cmd)
	return cmd
}
