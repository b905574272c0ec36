// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "neodbg",
	Short: "Debugger for Neo N3 smart contracts",
	Long: `neodbg debugs compiled Neo N3 smart contracts (.nef files) on a
reference NeoVM. Editors connect to it over the Debug Adapter Protocol;
it also provides an interactive command line debugger.

Getting started:
  neodbg debug                       Serve DAP on TCP port 4711
  neodbg debug --stdio               Serve DAP on stdin/stdout
  neodbg debug --repl contract.nef   Debug interactively
  neodbg disasm contract.nef         Print a contract's disassembly
  neodbg trace -o run.neotrace contract.nef
                                     Record a trace for reverse debugging

Debug info (.nefdbgnfo or .debug.json) is found next to the program or
given with --debug-info. Without it contracts are debugged as disassembly.

Configuration:
  Flags may also be set in the config file ($HOME/.neodbg.yaml) or with
  NEODBG_ environment variables, e.g. NEODBG_LOG_LEVEL=debug.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.neodbg.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		`Log level: "debug", "info", "warn" or "error".`)
	rootCmd.PersistentFlags().String("log-file", "",
		"Append logs to this file instead of stderr.")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err == nil {
			// Search config in home directory with name ".neodbg" (without extension).
			viper.AddConfigPath(home)
			viper.SetConfigName(".neodbg")
		}
	}

	viper.SetEnvPrefix("NEODBG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the command logger from the log-level and log-file
// settings. Logs go to stderr by default because stdout may carry DAP
// messages. The returned function closes the log file, if any.
func newLogger(cmd *cobra.Command) (*log.Entry, func(), error) {
	logger := log.New()
	level, err := log.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	var out io.Writer = cmd.ErrOrStderr()
	closeFn := func() {}
	if path := viper.GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //#nosec G302 G304
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeFn = func() { f.Close() } //nolint:errcheck
	}
	logger.SetOutput(out)
	return logger.WithField("command", cmd.Name()), closeFn, nil
}
