// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Command corvus drives the bytecode generator and two-tier driver
// over a handful of built-in demonstration programs. It is not a
// source-file interpreter: the lexer/parser that would turn a .y file
// into an ast.Program is an external collaborator this module never
// implements (spec.md line 13), so "corvus run fib" exercises the same
// AST -> bytecode -> JIT-or-interpret pipeline a real front end would,
// just fed a hand-built AST instead of parsed text.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"corvus/bytecode"
	"corvus/config"
	"corvus/driver"
	"corvus/runtime"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := config.Default()
	var warn string

	root := &cobra.Command{
		Use:   "corvus",
		Short: "A two-tier (bytecode + x86-64 JIT) evaluator for the corvus scripting language",
	}
	root.PersistentFlags().BoolVarP(&opts.JIT, "jit", "j", true, "enable the JIT driver (disable to always interpret)")
	root.PersistentFlags().StringVarP(&warn, "warn", "W", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.DumpHIR, "dump-hir", false, "log each compiled function's HIR before lowering (shown with -W debug)")
	root.PersistentFlags().BoolVar(&opts.DumpMIR, "dump-mir", false, "log each compiled function's MIR before codegen (shown with -W debug)")

	root.AddCommand(newRunCmd(&opts, &warn))
	root.AddCommand(newListCmd())
	return root
}

func newRunCmd(opts *config.Options, warn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <demo-name>",
		Short: "Run a built-in demo program (see 'corvus list')",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.WarnLevel = parseLevel(*warn)
			return runDemo(args[0], *opts)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in demo programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(demoPrograms))
			for name := range demoPrograms {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println(strings.Join(names, "\n"))
			return nil
		},
	}
}

func runDemo(name string, opts config.Options) error {
	build, ok := demoPrograms[name]
	if !ok {
		return fmt.Errorf("no such demo program %q (see 'corvus list')", name)
	}

	table, err := bytecode.Generate(build())
	if err != nil {
		return fmt.Errorf("generating bytecode: %w", err)
	}

	log := opts.NewLogger()
	d := driver.New(table, log)
	defer d.Close()
	d.JITEnabled = opts.JIT
	d.DumpHIR = opts.DumpHIR
	d.DumpMIR = opts.DumpMIR

	entry := table.Entry(bytecode.MainFuncId)
	v, err := d.Interp.Run(entry.Bytecode, []runtime.Value{runtime.Nil})
	if err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	fmt.Println(formatResult(v))
	return nil
}

func formatResult(v runtime.Value) string {
	switch v.Kind() {
	case runtime.KindInt:
		return fmt.Sprintf("%d", v.AsInt())
	case runtime.KindFloat:
		return fmt.Sprintf("%g", v.AsFloat())
	case runtime.KindBool:
		return fmt.Sprintf("%v", v.AsBool())
	case runtime.KindNil:
		return "nil"
	default:
		return fmt.Sprintf("%v{kind=%v}", v, v.Kind())
	}
}

func parseLevel(s string) logrus.Level {
	if lvl, err := logrus.ParseLevel(s); err == nil {
		return lvl
	}
	return logrus.WarnLevel
}
