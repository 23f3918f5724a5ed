package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/deepnoodle-ai/luastack"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive Lua session",
	Long:  "Read Lua lines from stdin. Expressions print their value. '.dump' prints the stack and '.quit' exits.",
	RunE:  replCommand,
}

func replCommand(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	st := rt.Stack()
	prompt := color.New(color.FgCyan)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ".quit", ".exit":
			return nil
		case ".dump":
			fmt.Print(st.DumpString())
			continue
		case ".refs":
			fmt.Printf("%d live references\n", rt.LiveReferences())
			continue
		}
		if err := evalLine(cmd, st, line); err != nil {
			reportError(err)
			st.SetTop(0)
		}
	}
}

// evalLine runs line as an expression when it parses as one, otherwise as a
// statement, and prints any results.
func evalLine(cmd *cobra.Command, st *luastack.Stack, line string) error {
	if err := st.LoadString("return "+line, "stdin"); err != nil {
		if err := st.LoadString(line, "stdin"); err != nil {
			return err
		}
	}
	base := st.Top()
	if err := st.Call(cmd.Context(), 0, luastack.MultRet); err != nil {
		return err
	}
	printResults(st, base)
	return st.SetTop(base - 1)
}
