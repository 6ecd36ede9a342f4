// Command repl-toolkit runs the demo echo backend in an interactive or headless
// session.
//
//	repl-toolkit                      # interactive prompt
//	repl-toolkit "hello"              # send a first message, then prompt
//	printf 'a\nb\n/send\n' | repl-toolkit --headless
//	repl-toolkit config init          # write the default config file
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"repl-toolkit/app"
	"repl-toolkit/backend"
	"repl-toolkit/config"
	"repl-toolkit/headless"
	"repl-toolkit/log"
)

var version = "dev"

type rootOptions struct {
	configPath string
	headless   bool
	prompt     string
	history    string
	logDir     string
	debug      bool
	noFormat   bool
	steps      int
	step       time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "repl-toolkit [initial message]",
		Short:   "Interactive and headless REPL over a demo echo backend",
		Version: version,
		Long: `Start a REPL session backed by a demo echo backend.

Interactive mode (the default on a terminal) reads input with a multi-line
editor: Enter runs a command or adds a line, Alt+Enter sends, Alt+C cancels a
running request. Headless mode (--headless, or when stdin is not a terminal)
reads stdin line by line, accumulates text and sends it on /send and at EOF.`,
		Example: `  # Interactive session
  repl-toolkit

  # Batch mode from a file
  repl-toolkit --headless < input.txt`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, strings.Join(args, " "))
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to YAML configuration file (default ~/.repl-toolkit/config.yaml)")
	cmd.Flags().BoolVarP(&opts.headless, "headless", "H", false,
		"Read stdin line by line instead of starting the interactive prompt")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Prompt text")
	cmd.Flags().StringVar(&opts.history, "history", "", "History file path")
	cmd.Flags().StringVar(&opts.logDir, "log-dir", "", "Write logs to this directory")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.noFormat, "no-format", false, "Print tagged output verbatim")
	cmd.Flags().IntVar(&opts.steps, "steps", 3, "Simulated work steps per echo request")
	cmd.Flags().DurationVar(&opts.step, "step", 500*time.Millisecond, "Duration of one simulated work step")

	cmd.AddCommand(newConfigCmd(opts))
	return cmd
}

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := config.ResolveConfigPath(root.configPath)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

// loadConfig returns the configuration and the path it was read from. A missing
// default file is not an error.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, named := config.ResolveConfigPath(explicit)
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, config.ErrConfigNotFound) && !named {
		return cfg, "", nil
	}
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, path, nil
}

func (o *rootOptions) apply(cfg *config.Config) {
	if o.prompt != "" {
		cfg.Prompt = o.prompt
	}
	if o.history != "" {
		cfg.HistoryFile = config.ExpandUserPath(o.history)
	}
	if o.logDir != "" {
		cfg.Log.Enabled = true
		cfg.Log.Dir = config.ExpandUserPath(o.logDir)
	}
	if o.debug {
		cfg.Log.Enabled = true
		cfg.Log.Debug = true
	}
	if o.noFormat {
		cfg.AutoFormat = false
	}
}

func run(ctx context.Context, opts *rootOptions, initial string) error {
	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)

	log.Initialize(cfg.Log.LogConfig())
	defer log.Close()

	sessionID := uuid.NewString()
	logs := log.ForSession(sessionID)
	defer log.Release(sessionID)
	if path != "" {
		logs.InfoLog.Printf("loaded config from %s", path)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !opts.headless && term.IsTerminal(int(os.Stdin.Fd()))
	profile := termenv.Ascii
	if term.IsTerminal(int(os.Stdout.Fd())) {
		profile = termenv.EnvColorProfile()
	}

	if interactive {
		return runInteractive(ctx, cfg, opts, profile, logs, initial)
	}
	return runHeadless(ctx, cfg, opts, profile, logs, initial)
}

func runInteractive(ctx context.Context, cfg *config.Config, opts *rootOptions, profile termenv.Profile, logs *log.SessionLoggers, initial string) error {
	repl, err := app.New(
		app.WithConfig(cfg),
		app.WithProfile(profile),
		app.WithLoggers(logs),
	)
	if err != nil {
		return err
	}

	echo := backend.NewEcho(repl.Registry().Printer(), opts.step, opts.steps)
	err = repl.Run(ctx, backend.Cancellable(echo), initial)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runHeadless(ctx context.Context, cfg *config.Config, opts *rootOptions, profile termenv.Profile, logs *log.SessionLoggers, initial string) error {
	session, err := headless.New(
		headless.WithConfig(cfg),
		headless.WithProfile(profile),
		headless.WithLoggers(logs),
	)
	if err != nil {
		return err
	}

	echo := backend.NewEcho(session.Registry().Printer(), opts.step, opts.steps)
	ok, err := session.Run(ctx, backend.Cancellable(echo), initial)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("headless run failed")
	}
	return nil
}
