package main

import (
	"fmt"
	"os"

	"github.com/deepnoodle-ai/luastack"
	"github.com/spf13/cobra"
)

var (
	dumpFlag bool
	callLogs string
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Load and call a Lua file, printing its results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCommand,
}

func init() {
	runCmd.Flags().BoolVar(&dumpFlag, "dump", false, "Print the stack with slot kinds instead of plain results")
	runCmd.Flags().StringVar(&callLogs, "call-logs", "", "Directory for newline-delimited JSON call logs")
}

func runCommand(cmd *cobra.Command, args []string) error {
	filename := args[0]
	src, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	rt, err := newRuntime(cmd, func(opts *luastack.Options) {
		if callLogs != "" {
			opts.CallLogger = luastack.NewFileCallLogger(callLogs)
		}
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	st := rt.Stack()
	if err := st.SetGlobalValue("arg", args[1:]); err != nil {
		return err
	}
	if err := st.Load(src, filename); err != nil {
		return err
	}
	if err := st.Call(cmd.Context(), 0, luastack.MultRet); err != nil {
		return err
	}
	if dumpFlag {
		fmt.Print(st.DumpString())
	} else {
		printResults(st, 1)
	}
	return nil
}
