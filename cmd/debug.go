// Copyright © 2018 The ELPS authors

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/neo-project/neo-debugger-sub000/debugger"
	"github.com/neo-project/neo-debugger-sub000/debugger/dapserver"
	"github.com/neo-project/neo-debugger-sub000/debugger/debugrepl"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	debugREPL       bool
	debugSourceRoot string
	debugLaunch     launchFlags
)

var debugCmd = &cobra.Command{
	Use:   "debug [flags] [program.nef]",
	Short: "Serve the Debug Adapter Protocol or debug interactively",
	Long: `Start a debugger for Neo N3 contracts.

By default, starts a DAP (Debug Adapter Protocol) server for editors
(VS Code, Neovim, Helix, etc.) to connect to. The program and its
invocation come from the client's launch request. With --repl, launches
the program given on the command line in an interactive CLI debugger.

Transport modes (DAP):
  --port N     Listen for a DAP client on TCP port N (default: 4711)
  --stdio      Use stdin/stdout for DAP communication (for editors that
               launch the debug adapter as a child process)

Launch arguments (--repl):
  The --launch file holds the same JSON as a DAP launch request. The other
  launch flags override its fields. Each --arg is parsed as JSON when it
  can be; otherwise it is a string in contract argument syntax, such as
  "@NVg7LjGcUSrgxgjX3zEgqaksfMaiS8Z6e1" or "0x0102".

Examples:
  neodbg debug                                   Debug with TCP on port 4711
  neodbg debug --port 9229                       Debug with TCP on port 9229
  neodbg debug --stdio                           Debug with stdio transport
  neodbg debug --repl token.nef                  Interactive CLI debug REPL
  neodbg debug --repl --operation transfer \
      --arg '"@NVg7LjGcUSrgxgjX3zEgqaksfMaiS8Z6e1"' --arg 10 token.nef`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newLogger(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		if debugREPL {
			var program string
			if len(args) > 0 {
				program = args[0]
			}
			cfg, err := debugLaunch.config(program)
			if err != nil {
				return err
			}
			root := debugSourceRoot
			if root == "" && cfg.Program != "" {
				root = filepath.Dir(cfg.Program)
			}
			session, err := debugger.Launch(cmd.Context(), cfg, debugger.WithLogger(logger))
			if err != nil {
				return err
			}
			defer session.Close()
			return debugrepl.Run(session,
				debugrepl.WithSourceRoot(root),
				debugrepl.WithStderr(cmd.ErrOrStderr()))
		}

		if len(args) > 0 {
			return errors.New("the program of a DAP session comes from the launch request; use --repl to debug a program directly")
		}
		srv := dapserver.New(
			dapserver.WithLogger(logger),
			dapserver.WithContext(cmd.Context()),
		)
		if viper.GetBool("stdio") {
			logger.Info("DAP debugger: using stdio transport")
			return srv.ServeStdio(cmd.InOrStdin(), cmd.OutOrStdout())
		}
		return srv.ServeTCP(fmt.Sprintf("localhost:%d", viper.GetInt("port")))
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)

	debugCmd.Flags().Int("port", 4711,
		"TCP port for DAP server (default: 4711)")
	debugCmd.Flags().Bool("stdio", false,
		"Use stdin/stdout for DAP communication")
	debugCmd.Flags().BoolVar(&debugREPL, "repl", false,
		"Start an interactive CLI debug REPL instead of a DAP server")
	debugCmd.Flags().StringVar(&debugSourceRoot, "source-root", "",
		"Directory searched for source files (default: the program's directory)")
	debugLaunch.addTo(debugCmd)

	_ = viper.BindPFlag("port", debugCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("stdio", debugCmd.Flags().Lookup("stdio"))
}
