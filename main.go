// cprintf specializes printf-alike calls with constant format strings in an
// LLVM IR module into direct calls to per-specifier handlers.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/0x7f454c46/cprintf/clog"
	"github.com/0x7f454c46/cprintf/config"
	"github.com/0x7f454c46/cprintf/llvm"
)

func dfr(cb func() error) {
	if err := cb(); err != nil {
		panic(err)
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run reports a fatal error on stderr at any log level.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "cprintf: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var (
		printfuns []string
		confFile  string
		logLevel  string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "cprintf [flags] input.ll",
		Short: "Specialize printf-alike calls with constant format strings",
		Long: `cprintf rewrites calls to printf-alike functions whose format string is a
compile-time constant into a sequence of direct calls to one handler per
%-specifier, so the format string is never parsed at run time.

A printfun is defined as
  <function>(<fmt_position>) %<spec> <handler> [%<spec> <handler>]...
e.g. "printf(0) %s __puts %ld __putlong %c __putchar %% __putwrite".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := &config.Config{}
			if confFile != "" {
				loaded, err := config.Load(confFile)
				if err != nil {
					return err
				}
				conf = loaded
			}
			flagLevel := ""
			if cmd.Flags().Changed("log-level") || conf.LogLevel == "" {
				flagLevel = logLevel
			}
			conf.Merge(printfuns, flagLevel)
			if err := conf.ApplyLogLevel(); err != nil {
				return err
			}
			reg, err := conf.Registry()
			if err != nil {
				return err
			}

			mod, stats, err := llvm.RewriteFile(reg, args[0])
			if err != nil {
				return err
			}
			clog.Infof("specialized %d of %d printfun calls in %d functions, %d skipped",
				stats.Specialized, stats.Calls, stats.Functions, stats.Skipped)

			if output == "" || output == "-" {
				_, err = mod.WriteTo(stdout)
				return err
			}
			wf, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
			if err != nil {
				return err
			}
			defer dfr(wf.Close)
			_, err = mod.WriteTo(wf)
			return err
		},
	}
	cmd.SetOut(stdout)

	cmd.Flags().StringArrayVarP(&printfuns, "printfun", "p", nil, "printf-alike function definition, may be repeated")
	cmd.Flags().StringVarP(&confFile, "config", "c", "", "JSON file with \"printfuns\" and \"log_level\"")
	cmd.Flags().StringVarP(&logLevel, "log-level", "l", "warn", "none, error, warn, info, debug or all")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output .ll file (default stdout)")
	return cmd
}
