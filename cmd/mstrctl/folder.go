package main

import (
	"fmt"

	"github.com/Sternrassler/mstr-client/pkg/folder"
	"github.com/spf13/cobra"
)

func newFolderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Browse and create folders",
	}

	var (
		filterExpr string
		out        outputFlags
	)
	contentsCmd := &cobra.Command{
		Use:   "contents ID",
		Short: "List the objects in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.filter(filterExpr)
			if err != nil {
				return err
			}
			dir, err := folder.Get(cmd.Context(), a.client, args[0])
			if err != nil {
				return err
			}
			infos, err := dir.Contents(cmd.Context(), f)
			if err != nil {
				return err
			}
			tbl, err := listTable(infos, "id", "name", "type", "subtype")
			if err != nil {
				return err
			}
			return out.write(cmd, tbl)
		},
	}
	contentsCmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression or @preset")
	out.register(contentsCmd)

	var parent, description string
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := folder.Create(cmd.Context(), a.client, args[0], parent, description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), f.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&parent, "parent", "", "ID of the parent folder")
	createCmd.Flags().StringVar(&description, "description", "", "folder description")
	_ = createCmd.MarkFlagRequired("parent")

	cmd.AddCommand(contentsCmd, createCmd)
	return cmd
}
