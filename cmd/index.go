package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newIndexCmd(opts *options) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Show what the application and media catalogs contain",
	}

	indexCmd.AddCommand(
		newIndexListCmd(opts, "apps", "List launchable applications"),
		newIndexListCmd(opts, "media", "List local media files"),
	)

	return indexCmd
}

func newIndexListCmd(opts *options, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [filter]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, _ := newCatalogs(opts.cfg.Catalog, afero.NewOsFs()).index(name)

			var pattern string
			if len(args) == 1 {
				pattern = args[0]
			}

			found, err := idx.Search(cmd.Context(), pattern)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range found {
				fmt.Fprintf(out, "%-40s  %s\n", c.Name, c.Handle)
			}

			_, err = fmt.Fprintf(out, "%d %s\n", len(found), name)
			return err
		},
	}
}
