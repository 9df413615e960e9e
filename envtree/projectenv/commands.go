package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/presbrey/projectenv/config"
	"github.com/presbrey/projectenv/envtree"
	"github.com/presbrey/projectenv/hierarchy"
)

type options struct {
	configPath string
	extensions []string
	recursive  bool
	stopAt     string
	encoding   string
	silent     bool
	logLevel   string
	filesOnly  bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "projectenv",
		Short: "Resolve layered .env configuration for a project directory",
		Long: `projectenv merges the host environment with the .env files found in a
project directory and each of its parent directories. Files closer to the
project override files higher up, and every file overrides the host
environment.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "settings file (yaml, toml or json)")
	flags.StringSliceVar(&opts.extensions, "ext", nil, "environment file extensions (default env)")
	flags.BoolVarP(&opts.recursive, "recursive", "r", false, "also scan subdirectories of each project directory")
	flags.StringVar(&opts.stopAt, "stop-at", "", "stop the upward search at this directory")
	flags.StringVar(&opts.encoding, "encoding", "", "file encoding: utf-8 or iso-8859-1")
	flags.BoolVarP(&opts.silent, "silent", "s", false, "suppress log output")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&opts.filesOnly, "files-only", false, "use an empty host environment")

	rootCmd.AddCommand(newResolveCommand(opts))
	rootCmd.AddCommand(newGetCommand(opts))
	rootCmd.AddCommand(newFilesCommand(opts))

	return rootCmd
}

func newResolveCommand(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "resolve [dir]",
		Short: "Print the resolved environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("format") {
				settings.Format = format
				if err := settings.Validate(); err != nil {
					return err
				}
			}

			loader, _, err := opts.load(settings, dirArg(args))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), settings.Format, loader.Store().Snapshot())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: dotenv, json, yaml or toml")
	return cmd
}

func newGetCommand(opts *options) *cobra.Command {
	var defaultValue string

	cmd := &cobra.Command{
		Use:   "get KEY [dir]",
		Short: "Print a single resolved value",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.settings(cmd)
			if err != nil {
				return err
			}

			loader, _, err := opts.load(settings, dirArg(args[1:]))
			if err != nil {
				return err
			}

			value, ok := loader.Store().Get(args[0])
			if !ok {
				if !cmd.Flags().Changed("default") {
					return fmt.Errorf("%s is not set", args[0])
				}
				value = defaultValue
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
	cmd.Flags().StringVarP(&defaultValue, "default", "d", "", "value to print when KEY is unset")
	return cmd
}

func newFilesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "files [dir]",
		Short: "List the environment files applied, root first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := opts.settings(cmd)
			if err != nil {
				return err
			}

			_, report, err := opts.load(settings, dirArg(args))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, layer := range report.Layers {
				for _, file := range layer.Files {
					fmt.Fprintln(out, file)
				}
			}
			for _, failure := range report.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", failure)
			}
			return nil
		},
	}
}

// settings loads the settings file and applies any flags that were set
func (o *options) settings(cmd *cobra.Command) (*config.Settings, error) {
	settings, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("ext") {
		settings.Extensions = o.extensions
	}
	if flags.Changed("recursive") {
		settings.Recursive = o.recursive
	}
	if flags.Changed("stop-at") {
		settings.StopDir = o.stopAt
	}
	if flags.Changed("encoding") {
		settings.Encoding = o.encoding
	}
	if flags.Changed("silent") {
		settings.Silent = o.silent
	}
	if flags.Changed("log-level") {
		settings.LogLevel = o.logLevel
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (o *options) load(settings *config.Settings, dir string) (*envtree.Loader, *envtree.Report, error) {
	leaf, err := hierarchy.FromDirectory(dir, settings.StopDir)
	if err != nil {
		return nil, nil, err
	}

	cfg := settings.LoaderConfig()
	if o.filesOnly {
		cfg.HostEnvironment = func() (map[string]string, error) {
			return map[string]string{}, nil
		}
	}

	loader := envtree.New(cfg)
	report, err := loader.Load(leaf)
	if err != nil {
		return nil, nil, err
	}
	return loader, report, nil
}

func dirArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}
