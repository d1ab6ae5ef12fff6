package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/mtobjects/internal/config"
)

func (a *app) configCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write the default configuration",
		Long: `
Write the built-in defaults to path, or to the --config file when no path is
given. An existing file is kept unless --force is set.
`,
		Args: cobra.MaximumNArgs(1),
		// The file being written need not be loadable.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf("%s already exists; use --force to overwrite", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return errors.Wrap(err, "error marshaling config")
			}
			return enc.Close()
		},
	}

	root.AddCommand(initCmd, showCmd)
	return root
}
