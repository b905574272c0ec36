// Copyright © 2018 The ELPS authors

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/neo-project/neo-debugger-sub000/debugger"
	"github.com/spf13/cobra"
)

// launchFlags are the flags of commands that launch a session from the
// command line instead of a DAP launch request.
type launchFlags struct {
	launchFile string
	operation  string
	args       []string
	debugInfo  string
	checkpoint string
	signers    []string
	debugView  string
}

func (f *launchFlags) addTo(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.launchFile, "launch", "",
		"JSON file with launch arguments, as in a DAP launch request")
	cmd.Flags().StringVar(&f.operation, "operation", "",
		"Contract method to invoke (default: the script entry)")
	cmd.Flags().StringArrayVar(&f.args, "arg", nil,
		"Invocation argument as JSON or a plain string (may be repeated)")
	cmd.Flags().StringVar(&f.debugInfo, "debug-info", "",
		"Debug info file (default: found next to the program)")
	cmd.Flags().StringVar(&f.checkpoint, "checkpoint", "",
		"Storage checkpoint file to start from")
	cmd.Flags().StringArrayVar(&f.signers, "signer", nil,
		"Account that passes CheckWitness (may be repeated)")
	cmd.Flags().StringVar(&f.debugView, "debug-view", "",
		`Initial view: "source" or "disassembly"`)
}

// config builds the launch configuration. Flags override the fields of
// the --launch file; program, when not empty, overrides its program.
func (f *launchFlags) config(program string) (*debugger.LaunchConfig, error) {
	fields := map[string]any{}
	if f.launchFile != "" {
		raw, err := os.ReadFile(f.launchFile)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("%s: %w", f.launchFile, err)
		}
	}
	if program != "" {
		fields["program"] = program
	}
	inv, _ := fields["invocation"].(map[string]any)
	if inv == nil {
		inv = map[string]any{}
	}
	if f.operation != "" {
		inv["operation"] = f.operation
	}
	if len(f.args) > 0 {
		args := make([]any, len(f.args))
		for i, a := range f.args {
			args[i] = parseArgFlag(a)
		}
		inv["args"] = args
	}
	if len(inv) > 0 {
		fields["invocation"] = inv
	}
	if f.debugInfo != "" {
		fields["debugInfo"] = f.debugInfo
	}
	if f.checkpoint != "" {
		fields["checkpoint"] = f.checkpoint
	}
	if len(f.signers) > 0 {
		fields["signers"] = f.signers
	}
	if f.debugView != "" {
		fields["debugView"] = f.debugView
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return debugger.DecodeLaunchConfig(raw)
}

// parseArgFlag reads an --arg value as JSON, falling back to the plain
// string so that "hello" and "@N..." need no quoting.
func parseArgFlag(s string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return v
}
