package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/mtobjects/internal/config"
	"github.com/ironsheep/mtobjects/internal/logger"
	"github.com/ironsheep/mtobjects/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// logLevelEnv overrides the configured log level; --log-level wins over it.
const logLevelEnv = "MTO_LOG_LEVEL"

func main() {
	if err := newApp().Root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the state shared by all subcommands.
type app struct {
	Root *cobra.Command

	configPath string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

func newApp() *app {
	a := &app{}
	a.Root = &cobra.Command{
		Use:   "mto",
		Short: "max-tree object detection",
		Long: `
mto detects faint extended objects in astronomical images. It builds a
max-tree of the image and keeps the nodes whose excess over the local
background is statistically significant.
`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	a.Root.PersistentFlags().StringVarP(
		&a.configPath, "config", "c", "mto.yaml", "configuration file; defaults apply if it does not exist")
	a.Root.PersistentFlags().StringVar(
		&a.logLevel, "log-level", "", "debug, info, warn, error or disabled (overrides $"+logLevelEnv+")")

	a.Root.AddCommand(
		newDetectCommand(a),
		a.serveCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return a
}

// setup loads the configuration and creates the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	level := cfg.Output.LogLevel
	if env := os.Getenv(logLevelEnv); env != "" {
		level = env
	}
	if a.logLevel != "" {
		level = a.logLevel
	}
	zl, err := logger.ParseLevel(level)
	if err != nil {
		return err
	}
	cfg.Output.LogLevel = level
	a.cfg = cfg
	a.log = logger.NewConsoleLogger(zl)
	return nil
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the MCP server on stdin/stdout",
		Long: `
Serve the detection tools over the Model Context Protocol. Requests are read
from stdin and responses written to stdout, one JSON-RPC message per line;
logs go to stderr. Configure it in your MCP client.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pipeline, err := newPipeline(a.cfg, a.log)
			if err != nil {
				return err
			}
			server.Version = Version
			a.log.Info("main", "mto MCP server starting", map[string]interface{}{
				"version": Version, "commit": GitCommit,
			})
			return server.New(pipeline, a.log).Serve(commandContext(cmd), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "mto %s\n", Version)
	fmt.Fprintf(w, "  Build time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
}

// commandContext returns the context the command was executed with.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
