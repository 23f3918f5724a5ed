package luastack

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default limits applied by New when the corresponding option is zero.
const (
	DefaultStackLimit = 8192
	DefaultCallDepth  = 200
)

// Standard library names accepted in Options.Libraries.
const (
	LibPackage   = "package"
	LibBase      = "base"
	LibTable     = "table"
	LibIO        = "io"
	LibOS        = "os"
	LibString    = "string"
	LibMath      = "math"
	LibDebug     = "debug"
	LibChannel   = "channel"
	LibCoroutine = "coroutine"
)

// Options are used to configure a Runtime.
type Options struct {
	// InstallStdlib preloads the standard libraries into the globals.
	InstallStdlib bool `json:"install_stdlib,omitempty" yaml:"install_stdlib,omitempty" toml:"install_stdlib,omitempty"`

	// Libraries restricts InstallStdlib to the named libraries. Empty means
	// all of them.
	Libraries []string `json:"libraries,omitempty" yaml:"libraries,omitempty" toml:"libraries,omitempty"`

	// MemoryLimit caps, in bytes, the operand stack, the reference registry
	// and the heap growth of each call. Zero means unlimited.
	MemoryLimit int `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty" toml:"memory_limit,omitempty"`

	// StackLimit is the maximum number of operand stack slots.
	StackLimit int `json:"stack_limit,omitempty" yaml:"stack_limit,omitempty" toml:"stack_limit,omitempty"`

	// CallDepth is the maximum interpreter call depth.
	CallDepth int `json:"call_depth,omitempty" yaml:"call_depth,omitempty" toml:"call_depth,omitempty"`

	// IncludeGoStackTrace adds the Go stack to tracebacks of host panics.
	IncludeGoStackTrace bool `json:"include_go_stack_trace,omitempty" yaml:"include_go_stack_trace,omitempty" toml:"include_go_stack_trace,omitempty"`

	Logger     *slog.Logger  `json:"-" yaml:"-" toml:"-"`
	CallLogger CallLogger    `json:"-" yaml:"-" toml:"-"`
	Callbacks  CallCallbacks `json:"-" yaml:"-" toml:"-"`
	ChunkCache *ChunkCache   `json:"-" yaml:"-" toml:"-"`
}

func (o Options) withDefaults() Options {
	if o.StackLimit <= 0 {
		o.StackLimit = DefaultStackLimit
	}
	if o.CallDepth <= 0 {
		o.CallDepth = DefaultCallDepth
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.CallLogger == nil {
		o.CallLogger = NewNullCallLogger()
	}
	if o.Callbacks == nil {
		o.Callbacks = NewBaseCallCallbacks()
	}
	if o.ChunkCache == nil {
		o.ChunkCache = DefaultChunkCache
	}
	return o
}

// Validate checks the options for values New cannot honor.
func (o Options) Validate() error {
	if o.MemoryLimit < 0 {
		return fmt.Errorf("memory limit must not be negative")
	}
	if o.StackLimit < 0 {
		return fmt.Errorf("stack limit must not be negative")
	}
	if o.CallDepth < 0 {
		return fmt.Errorf("call depth must not be negative")
	}
	for _, name := range o.Libraries {
		if _, ok := libraryOpeners[name]; !ok {
			return fmt.Errorf("unknown library %q", name)
		}
	}
	return nil
}

// LoadOptionsFile reads options from a YAML or TOML file, chosen by the
// file extension.
func LoadOptionsFile(path string) (Options, error) {
	var opts Options
	f, err := os.Open(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read options file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(f).Decode(&opts); err != nil {
			return opts, fmt.Errorf("failed to decode options file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(f).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			return opts, fmt.Errorf("failed to decode options file: %w", err)
		}
	default:
		return opts, fmt.Errorf("unsupported options file extension %q", filepath.Ext(path))
	}
	return opts, opts.Validate()
}

// LoadOptionsString reads options from a YAML string.
func LoadOptionsString(data string) (Options, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return opts, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return opts, opts.Validate()
}
