package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"diarysync/api"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long:  `Sign in and store the tokens in the data dir. The password is read from stdin when --password is omitted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.readSecret(password, "Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			user, err := c.Login(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(user); ok {
				return err
			}
			fmt.Fprintf(a.stdout, "Signed in as %s (%s)\n", user.DisplayName, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("DIARYSYNC_PASSWORD"), "Account password")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var req api.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.readSecret(req.Password, "Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			req.Password = pw
			c, err := a.client()
			if err != nil {
				return err
			}
			user, err := c.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(user); ok {
				return err
			}
			fmt.Fprintf(a.stdout, "Registered %s (%s)\n", user.DisplayName, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", os.Getenv("DIARYSYNC_PASSWORD"), "Account password")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Timezone, "timezone", "", "IANA timezone, e.g. Europe/Berlin")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			user, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(user); ok {
				return err
			}
			w := a.table()
			fmt.Fprintf(w, "ID:\t%s\n", user.ID)
			fmt.Fprintf(w, "Email:\t%s\n", user.Email)
			fmt.Fprintf(w, "Name:\t%s\n", user.DisplayName)
			fmt.Fprintf(w, "Tier:\t%s\n", user.Tier)
			fmt.Fprintf(w, "Timezone:\t%s\n", user.Timezone)
			return w.Flush()
		},
	}
}

func newQuotaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show tier limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			q, err := c.Quota(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := a.printJSON(q); ok {
				return err
			}
			w := a.table()
			fmt.Fprintf(w, "Tier:\t%s\n", q.Tier)
			fmt.Fprintf(w, "Videos per day:\t%d\n", q.Limits.MaxVideosPerDay)
			fmt.Fprintf(w, "Max video size:\t%d MB\n", q.Limits.MaxVideoSizeMB)
			fmt.Fprintf(w, "Compilation days:\t%d\n", q.Limits.MaxCompilationDays)
			fmt.Fprintf(w, "Retention:\t%d days\n", q.Limits.CompilationRetentionDays)
			return w.Flush()
		},
	}
}
