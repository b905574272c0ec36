// Copyright © 2018 The ELPS authors

package cmd

import (
	"errors"
	"fmt"

	"github.com/neo-project/neo-debugger-sub000/debugger"
	"github.com/neo-project/neo-debugger-sub000/debuginfo"
	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/spf13/cobra"
)

var (
	disasmDebugInfo string
	disasmNoInfo    bool
)

var disasmCmd = &cobra.Command{
	Use:   "disasm [flags] program.nef",
	Short: "Print the disassembly of a contract",
	Long: `Print the disassembly listing of a NEF file, as shown by the debugger's
disassembly view.

Each instruction line holds its address, opcode and operand. When debug
info is available, method boundaries and source lines are annotated.

Examples:
  neodbg disasm token.nef                          Use debug info next to the file
  neodbg disasm --debug-info out/token.nefdbgnfo token.nef
  neodbg disasm --no-debug-info token.nef          Plain instruction listing`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nef, err := neovm.LoadNEF(args[0])
		if err != nil {
			return err
		}
		script := neovm.NewScript(nef.Script)

		var info *debuginfo.DebugInfo
		if !disasmNoInfo {
			path := disasmDebugInfo
			if path == "" {
				path, err = debuginfo.Locate(args[0])
				if err != nil && !errors.Is(err, debuginfo.ErrNotFound) {
					return err
				}
			}
			if path != "" {
				info, err = debuginfo.Load(path)
				if err != nil {
					return err
				}
			}
		}

		dis, err := debugger.NewDisassembler(neovm.DefaultSyscalls()).Disassemble(script, info)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), dis.Source)
		return err
	},
}

func init() {
	rootCmd.AddCommand(disasmCmd)

	disasmCmd.Flags().StringVar(&disasmDebugInfo, "debug-info", "",
		"Debug info file (default: found next to the program)")
	disasmCmd.Flags().BoolVar(&disasmNoInfo, "no-debug-info", false,
		"Ignore debug info and list instructions only")
}
