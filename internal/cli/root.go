package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// rootOptions holds the global flags.
type rootOptions struct {
	cfgFile  string
	logLevel string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "toolkit",
		Short: "Toolkit - typed tool registry and executor",
		Long: `Toolkit declares named tools with validated input and runs them with
retry, timeout and caching policies. Tools can be invoked locally, in batches,
or served over HTTP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.toolkit/toolkit.json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(
		newToolsCmd(opts),
		newExecCmd(opts),
		newBatchCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
	)

	return rootCmd
}

// Execute runs the command tree. It is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
