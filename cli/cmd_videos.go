package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"diarysync/api"
	"diarysync/model"
)

func newVideosCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "Manage uploaded videos",
	}

	var (
		dateStr, statusStr string
		page               int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter api.VideoFilter
			if dateStr != "" {
				d, err := model.ParseDate(dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				filter.Date = d
			}
			if statusStr != "" {
				s, err := model.ParseVideoStatus(statusStr)
				if err != nil {
					return fmt.Errorf("invalid --status: %w", err)
				}
				filter.Status = s
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			p, err := c.Videos().List(cmd.Context(), filter, page)
			if err != nil {
				return err
			}
			a.staleNotice(p.Stale)
			if ok, err := a.printJSON(p); ok {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tDATE\tSTATUS\tSIZE")
			for _, v := range p.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.Date, v.Status, formatSize(v.FileSize))
			}
			fmt.Fprintf(w, "\npage %d of %d (%d total)\n", p.Page+1, max(p.TotalPages, 1), p.TotalElements)
			return w.Flush()
		},
	}
	list.Flags().StringVar(&dateStr, "date", "", "Only videos of this day (YYYY-MM-DD)")
	list.Flags().StringVar(&statusStr, "status", "", "Only videos with this status")
	list.Flags().IntVar(&page, "page", 0, "Zero-based page")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Videos().FetchAndCache(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.staleNotice(res.Stale)
			if ok, err := a.printJSON(res.Value); ok {
				return err
			}
			v := res.Value
			w := a.table()
			fmt.Fprintf(w, "ID:\t%s\n", v.ID)
			fmt.Fprintf(w, "Date:\t%s\n", v.Date)
			fmt.Fprintf(w, "Status:\t%s\n", v.Status)
			fmt.Fprintf(w, "Size:\t%s\n", formatSize(v.FileSize))
			if v.DurationSeconds != nil {
				fmt.Fprintf(w, "Duration:\t%.1fs\n", *v.DurationSeconds)
			}
			if v.VideoURL != "" {
				fmt.Fprintf(w, "URL:\t%s\n", v.VideoURL)
			}
			return w.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Videos().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted video %s\n", args[0])
			return nil
		},
	}

	wait := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait until a video is processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			return a.waitVideo(cmd.Context(), c, args[0])
		},
	}

	cmd.AddCommand(list, get, del, wait)
	return cmd
}

func formatSize(n *int64) string {
	if n == nil {
		return "-"
	}
	const unit = 1024
	b := *n
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for m := b / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
