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

// Package config holds the process-wide options the CLI layer collects
// from flags and hands to the driver (spec.md §7's ambient knobs: JIT
// on/off, a warning level, and debug IR dumps). It stays an in-process
// struct rather than a file format, matching a library-plus-CLI rather
// than a long-running server.
package config

import "github.com/sirupsen/logrus"

// Options is the resolved set of run-time knobs for one invocation.
type Options struct {
	// JIT enables the two-tier driver's compile attempts. Disabling it
	// pins every call to the bytecode interpreter (spec.md §4.7).
	JIT bool

	// WarnLevel maps to a logrus level: how noisy JIT
	// fallback/compile-failure logging should be.
	WarnLevel logrus.Level

	// DumpHIR/DumpMIR log the lowered IR for each JIT-compiled
	// function at Debug level as it is produced, for debugging the
	// compiler itself rather than the program it's compiling. The dumps
	// appear only when WarnLevel is logrus.DebugLevel.
	DumpHIR bool
	DumpMIR bool
}

// Default returns the options a bare invocation (no flags) runs with:
// JIT on, warnings only.
func Default() Options {
	return Options{JIT: true, WarnLevel: logrus.WarnLevel}
}

// NewLogger builds a logrus.Logger configured per o.WarnLevel, the
// same library falcon's own diagnostics would reach for (spec.md's
// ambient-stack logging section).
func (o Options) NewLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(o.WarnLevel)
	return l
}
