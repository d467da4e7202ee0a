// config gathers the printfun definitions and the log level from an optional
// JSON file and the command line, and turns them into a Registry.
package config

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	xerrors "github.com/qiniu/x/errors"

	"github.com/0x7f454c46/cprintf/clog"
	"github.com/0x7f454c46/cprintf/printfun"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoPrintfuns means the configuration yielded no rule at all.
var ErrNoPrintfuns = errors.New("no printf-alike functions specified")

type Config struct {
	Printfuns []string `json:"printfuns"`
	LogLevel  string   `json:"log_level"`
}

// ConfigError names the configuration parameter that can't be used.
type ConfigError struct {
	Param string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Param, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func Load(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		err = xerrors.NewWith(err, `os.ReadFile(file)`, -2, "os.ReadFile", file)
		return nil, &ConfigError{Param: "config", Err: err}
	}
	var conf Config
	if err = json.Unmarshal(b, &conf); err != nil {
		err = xerrors.NewWith(err, `json.Unmarshal(b, &conf)`, -2, "json.Unmarshal", file)
		return nil, &ConfigError{Param: "config", Err: err}
	}
	return &conf, nil
}

// Merge adds rules given on the command line after the file's ones. A
// non-empty level overrides the file's level.
func (c *Config) Merge(printfuns []string, level string) {
	c.Printfuns = append(c.Printfuns, printfuns...)
	if level != "" {
		c.LogLevel = level
	}
}

// ApplyLogLevel configures the log sink. It must run before Registry.
func (c *Config) ApplyLogLevel() error {
	if c.LogLevel == "" {
		return nil
	}
	if err := clog.SetLevel(c.LogLevel); err != nil {
		return &ConfigError{Param: "log-level", Err: err}
	}
	return nil
}

// Registry parses every printfun. The first malformed one aborts the whole
// configuration.
func (c *Config) Registry() (*printfun.Registry, error) {
	reg := printfun.NewRegistry()
	for _, def := range c.Printfuns {
		if _, err := reg.Parse(def); err != nil {
			return nil, &ConfigError{Param: "printfun", Err: err}
		}
	}
	if reg.Len() == 0 {
		return nil, &ConfigError{Param: "printfun", Err: ErrNoPrintfuns}
	}
	return reg, nil
}
