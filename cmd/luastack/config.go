package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/deepnoodle-ai/luastack"
	"github.com/spf13/cobra"
)

var (
	configGlobal string
	configFields []string
)

var configCmd = &cobra.Command{
	Use:   "config FILE",
	Short: "Run a Lua config file and read typed fields from a global table",
	Long: `Run a Lua config file and read fields from the table it assigns to a global.

Fields are given as name or name:type, where type is one of string, integer,
number or boolean. Without --field the whole table is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: configCommand,
}

func init() {
	configCmd.Flags().StringVar(&configGlobal, "global", "config", "Global holding the config table")
	configCmd.Flags().StringSliceVar(&configFields, "field", nil, "Field to read, as name[:type]")
}

func configCommand(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	st := rt.Stack()
	if err := st.Load(src, args[0]); err != nil {
		return err
	}
	if err := st.Call(cmd.Context(), 0, 0); err != nil {
		return err
	}
	tbl, err := luastack.GlobalAs[luastack.Table](st, configGlobal)
	if err != nil {
		return fmt.Errorf("global %q: %w", configGlobal, err)
	}
	defer rt.ReleaseValue(tbl)

	if len(configFields) == 0 {
		if err := st.PushRef(tbl.Ref); err != nil {
			return err
		}
		fmt.Print(st.DumpString())
		return nil
	}
	for _, field := range configFields {
		name, kind, _ := strings.Cut(field, ":")
		value, err := readField(st, tbl, name, kind)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		fmt.Printf("%s = %v\n", name, value)
	}
	return nil
}

func readField(st *luastack.Stack, tbl luastack.Table, name, kind string) (any, error) {
	switch kind {
	case "", "string":
		return luastack.TableFieldAs[string](st, tbl, name)
	case "integer", "int":
		return luastack.TableFieldAs[int64](st, tbl, name)
	case "number", "float":
		return luastack.TableFieldAs[float64](st, tbl, name)
	case "boolean", "bool":
		return luastack.TableFieldAs[bool](st, tbl, name)
	}
	return nil, fmt.Errorf("unknown field type %q", kind)
}
