package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"diarysync"
	"diarysync/model"
	"diarysync/transfer"
)

func newUploadCmd(a *app) *cobra.Command {
	var (
		dateStr string
		wait    bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload the video of a day",
		Long: `Upload a video file for a day (today by default). Progress is printed
while the bytes are sent. With --wait the command also waits until the
server finished processing the video.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := model.DateOf(time.Now())
			if dateStr != "" {
				d, err := model.ParseDate(dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				date = d
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			upload, err := c.StartUpload(cmd.Context(), date, args[0])
			if err != nil {
				return err
			}
			outcome, err := a.follow(upload)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Uploaded %s (%d bytes, %d attempt(s))\n", outcome.JobID, outcome.BytesSent, outcome.Attempts)
			if !wait {
				return nil
			}
			return a.waitVideo(cmd.Context(), c, outcome.JobID)
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", "", "Diary date as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the video is processed")
	return cmd
}

func newUploadsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Inspect and resume unfinished uploads",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List uploads that did not finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			tasks := c.PendingUploads()
			if ok, err := a.printJSON(tasks); ok {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(a.stdout, "No pending uploads")
				return nil
			}
			w := a.table()
			fmt.Fprintln(w, "VIDEO\tFILE\tSIZE\tATTEMPTS\tLAST ERROR")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", t.VideoID, t.SourcePath, t.Size, t.Attempts, t.LastError)
			}
			return w.Flush()
		},
	}

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Restart every unfinished upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			uploads, err := c.ResumeUploads(cmd.Context())
			if err != nil {
				fmt.Fprintf(a.stderr, "warning: %v\n", err)
			}
			if len(uploads) == 0 {
				fmt.Fprintln(a.stdout, "Nothing to resume")
				return nil
			}
			var errs []error
			for _, u := range uploads {
				outcome, err := a.follow(u)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", u.ID(), err))
					continue
				}
				fmt.Fprintf(a.stdout, "Uploaded %s\n", outcome.JobID)
			}
			return errors.Join(errs...)
		},
	}

	cmd.AddCommand(list, resume)
	return cmd
}

// follow prints the progress of u until it ends.
func (a *app) follow(u *transfer.Upload) (transfer.Outcome, error) {
	last := -2
	for ev := range u.Events() {
		switch {
		case ev.State == transfer.Failed:
			fmt.Fprintf(a.stderr, "%s: failed after %d attempt(s)\n", ev.JobID, ev.Attempt)
		case ev.Percent < 0:
			fmt.Fprintf(a.stderr, "\r%s: %d bytes", ev.JobID, ev.BytesSent)
		case ev.Percent != last:
			fmt.Fprintf(a.stderr, "\r%s: %3d%%", ev.JobID, ev.Percent)
		}
		last = ev.Percent
	}
	fmt.Fprintln(a.stderr)

	outcome, err := u.Wait()
	var completion *diarysync.CompletionError
	if errors.As(err, &completion) {
		return outcome, fmt.Errorf("video transferred but not confirmed, run the upload again: %w", err)
	}
	return outcome, err
}

func (a *app) waitVideo(ctx context.Context, c *diarysync.Client, id string) error {
	for v, err := range c.Videos().PollReady(ctx, id) {
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "%s: %s\n", v.ID, v.Status)
		if v.Status == model.VideoFailed {
			return fmt.Errorf("processing of %s failed", v.ID)
		}
	}
	return ctx.Err()
}
