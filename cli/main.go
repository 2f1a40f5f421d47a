package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"diarysync"
	"diarysync/config"
	"diarysync/internal/logging"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, diarysync.ErrUnauthorized) || errors.Is(err, diarysync.ErrNoCredentials) {
			fmt.Fprintln(os.Stderr, "Sign in again with: diarysync login")
		}
		os.Exit(1)
	}
}

// app carries the global flags and the lazily opened client.
type app struct {
	configPath string
	dataDir    string
	logLevel   string
	jsonOutput bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// overrides applied after the config is loaded; used by tests
	configure func(*config.Config)
	options   []diarysync.Option

	c *diarysync.Client
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "diarysync",
		Short: "Sync and upload client for a one-clip-a-day video diary",
		Long: `diarysync talks to the video diary backend: it signs you in, uploads
the day's video, waits for server-side processing and keeps a local cache
so listings still work offline.

Examples:
  diarysync login --email me@example.com
  diarysync upload today.mp4 --wait
  diarysync clips calendar 2024-06
  diarysync compilations create --from 2024-06-01 --to 2024-06-30 --quality 1080p`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: search diarysync.yaml)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Directory for credentials, cache and upload journal")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newQuotaCmd(a),
		newUploadCmd(a),
		newUploadsCmd(a),
		newVideosCmd(a),
		newClipsCmd(a),
		newCompilationsCmd(a),
		newPrefsCmd(a),
		newDeviceCmd(a),
	)
	return root
}

// client loads the configuration and opens the data dir on first use.
func (a *app) client() (*diarysync.Client, error) {
	if a.c != nil {
		return a.c, nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.configure != nil {
		a.configure(cfg)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: a.stderr})
	opts := append([]diarysync.Option{diarysync.WithLogger(logger)}, a.options...)
	c, err := diarysync.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("base_url", cfg.BaseURL).Str("data_dir", cfg.DataDir).Msg("client ready")
	a.c = c
	return c, nil
}

func (a *app) close() error {
	if a.c == nil {
		return nil
	}
	err := a.c.Close()
	a.c = nil
	return err
}

// printJSON writes v indented when --json is set and reports whether it did.
func (a *app) printJSON(v any) (bool, error) {
	if !a.jsonOutput {
		return false, nil
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
}

func (a *app) staleNotice(stale bool) {
	if stale {
		fmt.Fprintln(a.stderr, "offline: showing cached data")
	}
}

// readSecret returns value, or the first line of stdin when value is empty.
func (a *app) readSecret(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(a.stderr, prompt)
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}
