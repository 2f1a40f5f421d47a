package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"diarysync/model"
)

func newPrefsCmd(a *app) *cobra.Command {
	var (
		darkMode, notifications bool
		watermark               string
	)
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change local preferences",
		Long: `Without flags, print the stored preferences. Each flag that is given
updates the matching preference.`,
		Example: `  diarysync prefs
  diarysync prefs --dark-mode=true --watermark TOP_LEFT`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			flags := cmd.Flags()
			if flags.Changed("dark-mode") {
				if err := c.SetDarkMode(ctx, darkMode); err != nil {
					return err
				}
			}
			if flags.Changed("notifications") {
				if err := c.SetNotificationsEnabled(ctx, notifications); err != nil {
					return err
				}
			}
			if flags.Changed("watermark") {
				pos, err := model.ParseWatermarkPosition(watermark)
				if err != nil {
					return fmt.Errorf("invalid --watermark: %w", err)
				}
				if err := c.SetWatermarkPosition(ctx, pos); err != nil {
					return err
				}
			}

			prefs, err := c.Preferences(ctx)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(prefs); ok {
				return err
			}
			w := a.table()
			fmt.Fprintf(w, "Dark mode:\t%t\n", prefs.DarkMode)
			fmt.Fprintf(w, "Notifications:\t%t\n", prefs.NotificationsEnabled)
			fmt.Fprintf(w, "Watermark:\t%s\n", valueOr(string(prefs.WatermarkPosition), "-"))
			fmt.Fprintf(w, "Push token:\t%s\n", valueOr(prefs.PushToken, "-"))
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&darkMode, "dark-mode", false, "Enable dark mode")
	cmd.Flags().BoolVar(&notifications, "notifications", false, "Enable notifications")
	cmd.Flags().StringVar(&watermark, "watermark", "", "Default watermark position for compilations")
	return cmd
}

func newDeviceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage push notification devices",
	}
	register := &cobra.Command{
		Use:   "register <push-token>",
		Short: "Store a push token and register it with the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.RegisterDevice(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("token stored locally, registration failed: %w", err)
			}
			fmt.Fprintln(a.stdout, "Device registered")
			return nil
		},
	}
	cmd.AddCommand(register)
	return cmd
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
