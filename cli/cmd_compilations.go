package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"diarysync"
	"diarysync/api"
	"diarysync/model"
)

func newCompilationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compilations",
		Short: "Render and download compilations",
	}

	var (
		from, to, quality, watermark string
		clipIDs                      []string
		createWait                   bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Start rendering a compilation of a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.CreateCompilationRequest
			var err error
			if req.StartDate, err = model.ParseDate(from); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			if req.EndDate, err = model.ParseDate(to); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			if req.EndDate.Before(req.StartDate) {
				return errors.New("--to is before --from")
			}
			if req.Quality, err = model.ParseQuality(quality); err != nil {
				return fmt.Errorf("invalid --quality: %w", err)
			}
			req.ClipIDs = clipIDs

			c, err := a.client()
			if err != nil {
				return err
			}
			if watermark == "" {
				prefs, err := c.Preferences(cmd.Context())
				if err != nil {
					return err
				}
				watermark = string(prefs.WatermarkPosition)
			}
			if watermark == "" {
				req.WatermarkPosition = model.WatermarkBottomRight
			} else if req.WatermarkPosition, err = model.ParseWatermarkPosition(watermark); err != nil {
				return fmt.Errorf("invalid --watermark: %w", err)
			}

			comp, err := c.Compilations().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created compilation %s (%s)\n", comp.ID, comp.Status)
			if !createWait {
				return nil
			}
			return a.followCompilation(cmd, comp.ID, true)
		},
	}
	create.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	create.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	create.Flags().StringVar(&quality, "quality", "720p", "Output quality: 480p, 720p, 1080p or 4k")
	create.Flags().StringVar(&watermark, "watermark", "", "Watermark position (default from prefs)")
	create.Flags().StringSliceVar(&clipIDs, "clip", nil, "Clip ids to include (default all in range)")
	create.Flags().BoolVar(&createWait, "wait", false, "Wait until rendering finished")
	create.MarkFlagRequired("from")
	create.MarkFlagRequired("to")

	var (
		statusStr string
		page      int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List compilations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status model.CompilationStatus
			if statusStr != "" {
				s, err := model.ParseCompilationStatus(statusStr)
				if err != nil {
					return fmt.Errorf("invalid --status: %w", err)
				}
				status = s
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			p, err := c.Compilations().List(cmd.Context(), status, page)
			if err != nil {
				return err
			}
			a.staleNotice(p.Stale)
			if ok, err := a.printJSON(p); ok {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tFROM\tTO\tSTATUS\tQUALITY\tCLIPS")
			for _, cp := range p.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", cp.ID, cp.StartDate, cp.EndDate, cp.Status, cp.Quality, cp.ClipCount)
			}
			fmt.Fprintf(w, "\npage %d of %d (%d total)\n", p.Page+1, max(p.TotalPages, 1), p.TotalElements)
			return w.Flush()
		},
	}
	list.Flags().StringVar(&statusStr, "status", "", "Only compilations with this status")
	list.Flags().IntVar(&page, "page", 0, "Zero-based page")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one compilation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Compilations().FetchAndCache(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.staleNotice(res.Stale)
			if ok, err := a.printJSON(res.Value); ok {
				return err
			}
			cp := res.Value
			w := a.table()
			fmt.Fprintf(w, "ID:\t%s\n", cp.ID)
			fmt.Fprintf(w, "Range:\t%s .. %s\n", cp.StartDate, cp.EndDate)
			fmt.Fprintf(w, "Status:\t%s\n", cp.Status)
			fmt.Fprintf(w, "Quality:\t%s\n", cp.Quality)
			fmt.Fprintf(w, "Watermark:\t%s\n", cp.WatermarkPosition)
			fmt.Fprintf(w, "Clips:\t%d\n", cp.ClipCount)
			fmt.Fprintf(w, "Size:\t%s\n", formatSize(cp.FileSizeBytes))
			if cp.ExpiresAt != nil {
				fmt.Fprintf(w, "Expires:\t%s\n", cp.ExpiresAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	var follow bool
	status := &cobra.Command{
		Use:   "status <id>",
		Short: "Show rendering progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.followCompilation(cmd, args[0], follow)
		},
	}
	status.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling until rendering finished")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a compilation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Compilations().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted compilation %s\n", args[0])
			return nil
		},
	}

	downloadURL := &cobra.Command{
		Use:   "download-url <id>",
		Short: "Print a temporary download link for a rendered compilation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			url, err := c.Compilations().DownloadURL(cmd.Context(), args[0])
			if errors.Is(err, diarysync.ErrNoObjectKey) {
				return fmt.Errorf("compilation %s is not rendered yet", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, url)
			return nil
		},
	}

	cmd.AddCommand(create, list, get, status, del, downloadURL)
	return cmd
}

func (a *app) followCompilation(cmd *cobra.Command, id string, follow bool) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	for p, err := range c.Compilations().PollProgress(cmd.Context(), id) {
		if err != nil {
			return err
		}
		printed, err := a.printJSON(p)
		if err != nil {
			return err
		}
		if !printed {
			fmt.Fprintf(a.stdout, "%s: %s%s\n", p.ID, p.Status, progressSuffix(p))
		}
		if p.Status == model.CompilationFailed {
			return fmt.Errorf("rendering of %s failed", p.ID)
		}
		if !follow {
			return nil
		}
	}
	return cmd.Context().Err()
}

func progressSuffix(p model.CompilationProgress) string {
	switch {
	case p.PercentComplete != nil && p.CurrentClip != nil:
		return fmt.Sprintf(" %d%% (clip %d of %d)", *p.PercentComplete, *p.CurrentClip, p.ClipCount)
	case p.PercentComplete != nil:
		return fmt.Sprintf(" %d%%", *p.PercentComplete)
	}
	return ""
}
