// Copyright © 2018 The ELPS authors

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/debugger"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// TraceExtension is the extension of recorded trace files.
const TraceExtension = ".neotrace"

var (
	traceOutput string
	traceLaunch launchFlags
)

var traceCmd = &cobra.Command{
	Use:   "trace [flags] program.nef",
	Short: "Record an execution trace for replay",
	Long: `Run a contract invocation to completion, recording the VM state before
every instruction. Launching with "invocation": {"trace-file": ...} replays
the trace in the debugger, which can then step backwards.

The invocation is given with the same launch flags as "neodbg debug --repl".

Examples:
  neodbg trace token.nef                              Writes token.neotrace
  neodbg trace -o run.neotrace --operation balanceOf \
      --arg '"@NVg7LjGcUSrgxgjX3zEgqaksfMaiS8Z6e1"' token.nef`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newLogger(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		var program string
		if len(args) > 0 {
			program = args[0]
		}
		cfg, err := traceLaunch.config(program)
		if err != nil {
			return err
		}
		if cfg.Invocation.TraceFile != "" {
			return errors.New("cannot record a trace of a trace-file invocation")
		}
		session, err := debugger.Launch(cmd.Context(), cfg, debugger.WithLogger(logger))
		if err != nil {
			return err
		}
		defer session.Close()
		engine, ok := session.Engine().(*debugger.LiveEngine)
		if !ok {
			return errors.New("session engine cannot be traced")
		}

		out := traceOutput
		if out == "" {
			out = strings.TrimSuffix(cfg.Program, filepath.Ext(cfg.Program)) + TraceExtension
		}
		f, err := os.Create(out) //#nosec G304
		if err != nil {
			return err
		}
		if err := debugger.RecordTrace(cmd.Context(), f, engine); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.WithFields(log.Fields{
			"trace": out,
			"state": engine.State().String(),
		}).Info("trace recorded")
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().StringVarP(&traceOutput, "output", "o", "",
		"Trace file to write (default: the program path with a .neotrace extension)")
	traceLaunch.addTo(traceCmd)
}
