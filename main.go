// Command geoconflate matches the objects of two geographic datasets and
// validates each match against the matches around it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/aggregate"
	"github.com/kwv/geoconflate/config"
	"github.com/kwv/geoconflate/matcher"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Runner is the pipeline behind the commands
type Runner interface {
	Configure(cfg *config.Config)
	Run(ctx context.Context) error
	Match(ctx context.Context) error
	Explain(ctx context.Context, sourceID, targetID int) error
	Serve(ctx context.Context) error
}

// inputFlags override the input and output sections of the configuration
type inputFlags struct {
	source, target, outDir string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "Source dataset (GeoJSON or .shp)")
	cmd.Flags().StringVar(&f.target, "target", "", "Target dataset (GeoJSON or .shp)")
}

func (f *inputFlags) apply(cfg *config.Config) {
	if f.source != "" {
		cfg.Input.Source = f.source
	}
	if f.target != "" {
		cfg.Input.Target = f.target
	}
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
}

func newRootCmd(app Runner) *cobra.Command {
	var configFile, logLevel string
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "geoconflate",
		Short:         "Match and validate objects between two geographic datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				c.Log.Level = logLevel
			}
			if err := c.Validate(); err != nil {
				return err
			}
			if err := config.InitLogger(c.Log); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cfg = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	var runFlags inputFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Match, validate and write every configured output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runFlags.apply(cfg)
			app.Configure(cfg)
			return app.Run(cmd.Context())
		},
	}
	runFlags.register(runCmd)
	runCmd.Flags().StringVar(&runFlags.outDir, "out", "", "Output directory")

	var matchFlags inputFlags
	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Run candidate matching only and print the matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			matchFlags.apply(cfg)
			app.Configure(cfg)
			return app.Match(cmd.Context())
		},
	}
	matchFlags.register(matchCmd)

	var explainFlags inputFlags
	explainCmd := &cobra.Command{
		Use:   "explain SOURCE_ID TARGET_ID",
		Short: "Explain the validation of one source/target pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := strconv.Atoi(args[0])
			if err != nil {
				return eris.Wrapf(config.ErrConfig, "source id %q", args[0])
			}
			tgt, err := strconv.Atoi(args[1])
			if err != nil {
				return eris.Wrapf(config.ErrConfig, "target id %q", args[1])
			}
			explainFlags.apply(cfg)
			app.Configure(cfg)
			return app.Explain(cmd.Context(), src, tgt)
		},
	}
	explainFlags.register(explainCmd)

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			app.Configure(cfg)
			return app.Serve(cmd.Context())
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address")

	matchersCmd := &cobra.Command{
		Use:   "matchers",
		Short: "List the registered matchers and aggregators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "matchers:")
			for _, n := range matcher.Names() {
				fmt.Fprintf(out, "  %s\n", n)
			}
			fmt.Fprintln(out, "aggregators:")
			for _, n := range aggregate.Names() {
				fmt.Fprintf(out, "  %s\n", n)
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "geoconflate version: %s\n", Version)
		},
	}

	root.AddCommand(runCmd, matchCmd, explainCmd, serveCmd, matchersCmd, versionCmd)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(NewApp(os.Stdout)).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
