package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/vidl/internal/backup"
)

func (r *runner) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup the database as a simple .json file",
	}
	cmd.AddCommand(r.exportCmd(), r.importCmd())
	return cmd
}

func (r *runner) exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a snapshot to stdout or a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			snap, err := backup.Export(cmd.Context(), app.Store, w)
			if err != nil {
				return err
			}
			videos := 0
			for _, c := range snap.Channels {
				videos += len(c.Videos)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d channels and %d videos\n", len(snap.Channels), videos)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the snapshot to this file instead of stdout")
	return cmd
}

func (r *runner) importCmd() *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a snapshot from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			mode := backup.ModeMerge
			if replace {
				mode = backup.ModeReplace
			}
			stats, err := backup.Import(cmd.Context(), app.Store, in, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d channels and %d videos (%s, %d already present)\n",
				stats.Channels, stats.Videos, mode, stats.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "delete all existing data before importing")
	return cmd
}
