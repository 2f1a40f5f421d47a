package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"diarysync/api"
	"diarysync/model"
)

func newClipsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Select and browse daily clips",
	}

	var (
		req     api.SelectClipRequest
		selDate string
		selWait bool
	)
	sel := &cobra.Command{
		Use:   "select",
		Short: "Pick the one-second clip of a video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDate(selDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			req.Date = d
			c, err := a.client()
			if err != nil {
				return err
			}
			clip, err := c.Clips().Select(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Selected clip %s (%s)\n", clip.ID, clip.Status)
			if !selWait {
				return nil
			}
			return a.waitClip(cmd, clip.ID)
		},
	}
	sel.Flags().StringVar(&req.VideoID, "video", "", "Source video id")
	sel.Flags().StringVar(&selDate, "date", "", "Diary date (YYYY-MM-DD)")
	sel.Flags().Float64Var(&req.StartTimeSeconds, "start", 0, "Clip start in seconds")
	sel.Flags().BoolVar(&selWait, "wait", false, "Wait until the clip is extracted")
	sel.MarkFlagRequired("video")
	sel.MarkFlagRequired("date")

	var page int
	list := &cobra.Command{
		Use:   "list",
		Short: "List clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			p, err := c.Clips().List(cmd.Context(), page)
			if err != nil {
				return err
			}
			a.staleNotice(p.Stale)
			if ok, err := a.printJSON(p); ok {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tDATE\tSTATUS\tSTART\tVIDEO")
			for _, cl := range p.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1fs\t%s\n", cl.ID, cl.Date, cl.Status, cl.StartTimeSeconds, cl.VideoID)
			}
			fmt.Fprintf(w, "\npage %d of %d (%d total)\n", p.Page+1, max(p.TotalPages, 1), p.TotalElements)
			return w.Flush()
		},
	}
	list.Flags().IntVar(&page, "page", 0, "Zero-based page")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Clips().FetchAndCache(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.staleNotice(res.Stale)
			if ok, err := a.printJSON(res.Value); ok {
				return err
			}
			cl := res.Value
			w := a.table()
			fmt.Fprintf(w, "ID:\t%s\n", cl.ID)
			fmt.Fprintf(w, "Date:\t%s\n", cl.Date)
			fmt.Fprintf(w, "Status:\t%s\n", cl.Status)
			fmt.Fprintf(w, "Video:\t%s\n", cl.VideoID)
			fmt.Fprintf(w, "Start:\t%.1fs\n", cl.StartTimeSeconds)
			return w.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Clips().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted clip %s\n", args[0])
			return nil
		},
	}

	calendar := &cobra.Command{
		Use:   "calendar [YYYY-MM]",
		Short: "Show which days of a month have a clip",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month := time.Now().Year(), int(time.Now().Month())
			if len(args) == 1 {
				t, err := time.Parse("2006-01", args[0])
				if err != nil {
					return fmt.Errorf("invalid month %q, want YYYY-MM", args[0])
				}
				year, month = t.Year(), int(t.Month())
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Clips().Calendar(cmd.Context(), year, month)
			if err != nil {
				return err
			}
			a.staleNotice(res.Stale)
			if ok, err := a.printJSON(res.Value); ok {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "DATE\tCLIP\tSTATUS")
			for _, d := range res.Value {
				clip, status := "-", "-"
				if d.HasClip {
					clip = d.ClipID
				}
				if d.ClipStatus != nil {
					status = string(*d.ClipStatus)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Date, clip, status)
			}
			return w.Flush()
		},
	}

	wait := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait until a clip is extracted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.waitClip(cmd, args[0])
		},
	}

	cmd.AddCommand(sel, list, get, del, calendar, wait)
	return cmd
}

func (a *app) waitClip(cmd *cobra.Command, id string) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	for cl, err := range c.Clips().PollReady(cmd.Context(), id) {
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "%s: %s\n", cl.ID, cl.Status)
		if cl.Status == model.ClipFailed {
			return fmt.Errorf("extraction of %s failed", cl.ID)
		}
	}
	return cmd.Context().Err()
}
