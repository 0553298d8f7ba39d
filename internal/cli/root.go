// Package cli provides the command-line interface for matrun.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quillci/matrun/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "matrun",
		Short: "matrun - run CI workflows locally",
		Long: `matrun executes CI workflow definitions on the local machine.

It expands matrix strategies into job instances, orders jobs by their
declared needs, runs independent instances in parallel and records every
run. Built-in actions cover checkout, interpreter setup and hash-verified
dependency installation.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./matrun.yaml)")
	rootCmd.PersistentFlags().String("repo", "", "repository directory the checkout action copies from")
	rootCmd.PersistentFlags().String("workspace", "", "root directory for job workspaces")
	rootCmd.PersistentFlags().String("toolcache", "", "directory holding provisioned interpreters")
	rootCmd.PersistentFlags().String("packages", "", "local artifact directory for pinned installs")
	rootCmd.PersistentFlags().String("shell", "", "shell used for run steps")
	rootCmd.PersistentFlags().Int("max-parallel", 0, "maximum job instances running at once")
	rootCmd.PersistentFlags().String("history", "", "path of the run history database")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}
