package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/deepnoodle-ai/luastack"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	logLevel    string
	optionsFile string
	stdlib      bool
	memoryLimit int
	verbose     bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "luastack",
	Short:         "Run Lua chunks through the luastack bridge",
	Long:          "Run Lua chunks, an interactive REPL or a config reader on top of a protected luastack runtime.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'warn'\n", logLevel)
			level = slog.LevelWarn
		}
		logger = luastack.NewLevelLogger(os.Stderr, level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Set log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&optionsFile, "options", "", "Runtime options file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().BoolVar(&stdlib, "stdlib", true, "Install the standard libraries")
	rootCmd.PersistentFlags().IntVar(&memoryLimit, "memory-limit", 0, "Memory limit in bytes (0 means unlimited)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print tracebacks for runtime errors")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// newRuntime builds a runtime from the options file, overridden by any flags
// set on the command line and then by configure.
func newRuntime(cmd *cobra.Command, configure ...func(*luastack.Options)) (*luastack.Runtime, error) {
	opts := luastack.Options{InstallStdlib: true}
	if optionsFile != "" {
		loaded, err := luastack.LoadOptionsFile(optionsFile)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("stdlib") || optionsFile == "" {
		opts.InstallStdlib = stdlib
	}
	if flags.Changed("memory-limit") {
		opts.MemoryLimit = memoryLimit
	}
	opts.Logger = logger
	for _, fn := range configure {
		fn(&opts)
	}
	return luastack.New(opts)
}

// reportError prints err with its location or traceback when known.
func reportError(err error) {
	var bridgeErr *luastack.Error
	if !errors.As(err, &bridgeErr) {
		color.Red("Error: %v", err)
		return
	}
	switch bridgeErr.Type {
	case luastack.ErrorTypeSyntax:
		color.Red("Syntax error: %s", bridgeErr.Cause)
	case luastack.ErrorTypeRuntime:
		color.Red("Runtime error: %s", bridgeErr.Cause)
		if verbose && bridgeErr.Traceback != "" {
			color.HiBlack(strings.TrimSpace(bridgeErr.Traceback))
		}
	case luastack.ErrorTypeOutOfMemory, luastack.ErrorTypeStackOverflow:
		color.Red("Aborted (%s): %s", bridgeErr.Type, bridgeErr.Cause)
	default:
		color.Red("Error: %v", bridgeErr)
	}
}

// printResults prints the slots from..top of the stack, one per line.
func printResults(st *luastack.Stack, from int) {
	for _, slot := range st.Dump() {
		if slot.Index < from {
			continue
		}
		if slot.Kind == luastack.KindString {
			s, err := luastack.PeekAs[string](st, slot.Index)
			if err == nil {
				fmt.Println(s)
				continue
			}
		}
		fmt.Println(slot.Repr)
	}
}
