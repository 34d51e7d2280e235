package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/vidl/internal/db"
	"github.com/vrsandeep/vidl/internal/models"
	"github.com/vrsandeep/vidl/internal/updater"
	"github.com/vrsandeep/vidl/migrations"
)

func (r *runner) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialise the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := r.cfg.Database.Path
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Database %s already exists, nothing to do\n", path)
				return nil
			}
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Initialised database %s\n", path)
			return nil
		},
	}
}

func (r *runner) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Update the database schema to be current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.InitDB(r.cfg.Database.Path, r.cfg.BusyTimeout())
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.RunMigrations(database, migrations.FS, r.logger); err != nil {
				return err
			}
			version, err := db.SchemaVersion(database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database schema is at version %d\n", version)
			return nil
		},
	}
}

func (r *runner) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> [youtube|vimeo]",
		Short: "Add a channel by user name, handle, URL or channel ID",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := models.ServiceYoutube
			if len(args) == 2 {
				var err error
				if service, err = models.ParseService(args[1]); err != nil {
					return err
				}
			}
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ch, err := app.Engine.AddChannel(cmd.Context(), service, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d - %s (%s on service %s)\n", ch.ID, ch.Title, ch.RemoteID, ch.Service)
			return nil
		},
	}
}

func (r *runner) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a channel and all of its videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ch, err := app.Store.GetChannel(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := app.Store.DeleteChannel(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d - %s\n", ch.ID, ch.Title)
			return nil
		},
	}
}

func (r *runner) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id>",
		Short: "Re-read a channel's title and thumbnail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ch, err := app.Engine.RefreshChannel(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d - %s\n", ch.ID, ch.Title)
			return nil
		},
	}
}

func (r *runner) listCmd() *cobra.Command {
	var (
		status string
		page   int
	)
	cmd := &cobra.Command{
		Use:   "list [channel-id]",
		Short: "List channels, or the videos of one channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				channels, err := app.Store.ListChannels(cmd.Context())
				if err != nil {
					return err
				}
				if len(channels) == 0 {
					fmt.Fprintln(out, "No channels yet added")
				}
				for _, c := range channels {
					fmt.Fprintf(out, "%d - %s (%s on service %s)\nThumbnail: %s\n", c.ID, c.Title, c.RemoteID, c.Service, c.Thumbnail)
				}
				return nil
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := app.Store.GetChannel(cmd.Context(), id); err != nil {
				return err
			}
			statuses, err := models.ParseStatusList(status)
			if err != nil {
				return err
			}
			if page < 0 {
				return fmt.Errorf("invalid page %d", page)
			}
			videos, err := app.Store.ListVideos(cmd.Context(), models.VideoFilter{
				ChannelID: id,
				Statuses:  statuses,
				Limit:     50,
				Offset:    page * 50,
			})
			if err != nil {
				return err
			}
			for _, v := range videos {
				fmt.Fprintf(out, "ID: %d\nVideo: %s\nTitle: %s\nStatus: %s\nURL: %s\nPublished: %s\nThumbnail: %s\nDescription: %s\n----\n",
					v.ID, v.RemoteID, v.Title, v.Status.Name(), v.URL, v.PublishedAt.Format("2006-01-02 15:04:05"), v.Thumbnail, v.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "comma separated statuses to show, e.g. NE,GE")
	cmd.Flags().IntVar(&page, "page", 0, "page of 50 videos, starting at 0")
	return cmd
}

func (r *runner) updateCmd() *cobra.Command {
	var opts updater.Options
	cmd := &cobra.Command{
		Use:   "update [filter]",
		Short: "Fetch new videos of all channels, or those matching filter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()
			out := cmd.OutOrStdout()

			var sel updater.Selector
			if len(args) == 1 {
				sel.Query = args[0]
			}
			report, err := app.Engine.Update(cmd.Context(), sel, opts)
			if report != nil {
				for _, c := range report.Channels {
					switch {
					case c.Err != nil:
						fmt.Fprintf(out, "%d - %s: failed: %s\n", c.ChannelID, c.Title, c.Error)
					case c.Skipped:
						fmt.Fprintf(out, "%d - %s: skipped (%s)\n", c.ChannelID, c.Title, c.SkipReason)
					default:
						fmt.Fprintf(out, "%d - %s: %d new videos\n", c.ChannelID, c.Title, c.NewVideos)
					}
				}
			}
			if err != nil {
				return err
			}
			if len(report.Channels) == 0 {
				fmt.Fprintln(out, "No channels to update, nothing to do")
				return nil
			}
			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d channels failed to update", len(failed), len(report.Channels))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "update channels even if they were checked recently")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "read every page and correct changed titles")
	return cmd
}

func (r *runner) downloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <video-id>...",
		Short: "Queue videos for download",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()
			out := cmd.OutOrStdout()

			queued, failed := 0, 0
			for _, res := range app.Pool.Enqueue(cmd.Context(), ids) {
				switch {
				case res.Err != nil:
					failed++
					fmt.Fprintf(out, "%d: %s\n", res.VideoID, res.Error)
				case res.AlreadyQueued:
					fmt.Fprintf(out, "%d: already queued\n", res.VideoID)
				default:
					queued++
					fmt.Fprintf(out, "%d: queued\n", res.VideoID)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d videos could not be queued", failed, len(ids))
			}
			if queued == 0 {
				fmt.Fprintln(out, "Nothing to do")
			}
			return nil
		},
	}
}

// statusCmd builds the ignore and unignore commands.
func (r *runner) statusCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <video-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := r.openApp(r.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			change := app.Store.IgnoreVideo
			if name == "unignore" {
				change = app.Store.UnignoreVideo
			}
			var errs []error
			for _, id := range ids {
				if err := change(cmd.Context(), id); err != nil {
					errs = append(errs, fmt.Errorf("%d: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %sd\n", id, name)
			}
			return errors.Join(errs...)
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
