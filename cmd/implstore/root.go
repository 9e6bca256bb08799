package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jamesainslie/implstore/pkg/implstore/config"
	"github.com/jamesainslie/implstore/pkg/implstore/logging"
	"github.com/jamesainslie/implstore/pkg/implstore/output"
	"github.com/jamesainslie/implstore/pkg/implstore/store"
	"github.com/jamesainslie/implstore/pkg/implstore/tuner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = logging.Get("cli")

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "implstore",
		Short: "Manage a content-addressed store of implementations",
		Long: `implstore keeps directory trees in a store, each one named by the
digest of its manifest, so a name always identifies exactly one tree.

Examples:
  implstore manifest ./build               # Print the digest of a tree
  implstore add sha256new=ab12... ./build  # Copy a tree into the store
  implstore add sha256new=ab12... app.tgz  # Unpack an archive into the store
  implstore list 'sha256new=*'             # List entries matching a pattern
  implstore audit                          # Check every entry
  implstore optimise                       # Hard-link duplicate files`,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/implstore/config.yaml)")
	rootCmd.PersistentFlags().String("store", "", "store directory (default: $XDG_CACHE_HOME/implstore/implementations)")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format: "+strings.Join(output.Available(), ", "))
	rootCmd.PersistentFlags().String("template", "", "Go template for -o template")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "override hash worker count (0=auto)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("template", rootCmd.PersistentFlags().Lookup("template"))
	_ = viper.BindPFlag("workers.hash", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if dir, err := config.ConfigDir(); err == nil {
			viper.AddConfigPath(dir)
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig decodes the merged flag, env, file and default settings.
func loadConfig() (*config.Config, error) {
	// A named file that cannot be read is an error; a missing default is not.
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return config.FromViper(viper.GetViper())
}

// setupLogging initializes file logging from the configuration. Verbose
// mode mirrors debug output to stderr. A bad configuration is left for the
// command to report so that config edit still works.
func setupLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printVerbose(cmd, "Logging disabled: %v", err)
		return nil
	}

	consoleLevel := ""
	if getVerbose() {
		consoleLevel = "debug"
	}
	logCfg := cfg.LogConfig(consoleLevel)
	logCfg.Console = cmd.ErrOrStderr()
	if err := logging.Init(logCfg); err != nil {
		printVerbose(cmd, "Logging disabled: %v", err)
		return nil
	}
	logger.Debug("command started", "command", cmd.CommandPath())
	return nil
}

// openStore opens the configured store with tuned worker counts.
func openStore(cfg *config.Config) (*store.Store, error) {
	tuned := tuner.Auto(cfg.Workers.Hash, cfg.Workers.Audit)
	opts := store.Options{
		ReadOnly:       cfg.Store.ReadOnly,
		WalkWorkers:    tuned.WalkWorkers,
		HashWorkers:    tuned.HashWorkers,
		AuditWorkers:   tuned.AuditWorkers,
		CopyBufferSize: tuned.CopyBufferSize,
	}
	s, err := store.New(cfg.Store.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// withStore loads the configuration and opens the store.
func withStore() (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newFormatter returns the formatter selected by --output.
func newFormatter() (output.Formatter, error) {
	name := viper.GetString("output")
	if name == "" {
		name = "pretty"
	}
	if name == "template" {
		tmpl := viper.GetString("template")
		if tmpl == "" {
			return nil, errors.New("--template is required when using -o template")
		}
		return output.NewTemplateFormatter(tmpl), nil
	}
	formatter, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return formatter, nil
}

// render formats r to the command's stdout.
func render(cmd *cobra.Command, r *output.Report) error {
	formatter, err := newFormatter()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = io.Copy(cmd.OutOrStdout(), &buf)
	return err
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(cmd.ErrOrStderr(), "[DEBUG] "+format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: "+format+"\n", args...)
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(cmd *cobra.Command, format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
	}
}
