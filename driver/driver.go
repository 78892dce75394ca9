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

// Package driver implements the two-tier execution policy of spec.md
// §4.7: every call site is dispatched through the function table's
// per-FuncId CompileState. A cached successful compile calls straight
// into machine code; an uncompiled function gets one JIT attempt, with
// any failure falling back to (and then permanently pinning) bytecode
// interpretation, so a JIT bug can only cost performance, never
// correctness.
package driver

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"corvus/bytecode"
	"corvus/codegen"
	"corvus/hir"
	"corvus/mir"
	"corvus/runtime"
)

// Driver owns the function table, the interpreter, and every compiled
// entry's executable mapping.
type Driver struct {
	Table *bytecode.FuncTable
	Interp *bytecode.Interp
	Log   *logrus.Logger

	// JITEnabled mirrors config's --jit flag; when false every call
	// goes straight to the interpreter and FuncTable entries are left
	// Uncompiled forever (spec.md §7's "-j off" ambient knob).
	JITEnabled bool

	// DumpHIR/DumpMIR mirror config's --dump-hir/--dump-mir flags:
	// log each function's IR (via its own String() method) at Debug
	// level through Log as tryCompile produces it, for debugging the
	// compiler itself. Nothing is shown unless Log's level is Debug.
	DumpHIR bool
	DumpMIR bool

	compiled map[bytecode.FuncId]*codegen.Compiled
}

// New builds a driver over table, wiring the interpreter's call
// dispatch to this driver's two-tier policy.
func New(table *bytecode.FuncTable, log *logrus.Logger) *Driver {
	d := &Driver{
		Table:      table,
		Log:        log,
		JITEnabled: true,
		compiled:   map[bytecode.FuncId]*codegen.Compiled{},
	}
	d.Interp = bytecode.NewInterp(table)
	d.Interp.Dispatch = d.Call
	d.Interp.OnMethodDef = d.Invalidate
	return d
}

// Call is the sole call-site entry point: every OpCall in the
// interpreter goes through here. Top-level (_MAIN) code is not
// dispatched through Call; callers run it with Interp.Run.
func (d *Driver) Call(id bytecode.FuncId, args []runtime.Value) (runtime.Value, error) {
	entry := d.Table.Entry(id)
	if entry.Kind == bytecode.KindBuiltin {
		return entry.Native.Fn(args)
	}

	if !d.JITEnabled {
		return d.Interp.Run(entry.Bytecode, args)
	}

	switch entry.State {
	case bytecode.Success:
		return d.callCompiled(id, entry, args)

	case bytecode.Fail:
		return d.Interp.Run(entry.Bytecode, args)

	case bytecode.Uncompiled:
		if err := d.tryCompile(id, entry); err != nil {
			d.Log.WithFields(logrus.Fields{"func": entry.Id, "name_hint": firstParamHint(entry)}).
				WithError(err).Debug("jit lowering failed, falling back to interpreter")
			entry.State = bytecode.Fail
			return d.Interp.Run(entry.Bytecode, args)
		}
		return d.callCompiled(id, entry, args)

	default:
		return d.Interp.Run(entry.Bytecode, args)
	}
}

func firstParamHint(e *bytecode.FuncEntry) string {
	if len(e.Params) == 0 {
		return ""
	}
	return e.Params[0]
}

// tryCompile runs the whole AST -> HIR -> MIR -> machine-code pipeline
// for one function and records the outcome on its FuncEntry. It never
// panics outward: HIR construction and MIR lowering are designed to
// return an error (rather than panic) for anything outside the
// compiler's covered subset (spec.md §7).
func (d *Driver) tryCompile(id bytecode.FuncId, entry *bytecode.FuncEntry) error {
	entry.State = bytecode.Compiling

	// codegen/entry.go's trampoline only has 0- and 1-argument forms
	// (CallInt0/CallInt1/CallFloat0/CallFloat1); the System V argument
	// registers codegen.go emits OpIn loads from for a second-or-later
	// parameter would never be populated by a call made through that
	// trampoline. Rather than grow wrong-but-silent results into
	// callCompiled, reject 2+-parameter functions here so they take the
	// interpreter fallback, consistent with the other documented scope
	// cuts in this function.
	if len(entry.Params) > 1 {
		return fmt.Errorf("jit: multi-argument functions are not supported (%d params)", len(entry.Params))
	}

	paramTypes := make([]hir.Type, len(entry.Params))
	for i := range paramTypes {
		// The driver has no static type information ahead of a first
		// call, so every parameter is assumed Integer. callCompiled
		// sends any call with a non-integer argument to the
		// interpreter instead, so the compiled code only ever runs on
		// integer arguments.
		paramTypes[i] = hir.Integer
	}

	// A direct self-recursive call needs this function's own return
	// type before Build finishes building it (spec.md §4.2's
	// chicken-and-egg case), so the first attempt guesses Integer and,
	// if the body's own trailing type disagrees, retries once having
	// learned the real answer. Two tries bound the cost of the guess
	// without needing a separate type-inference pre-pass.
	hf, err := hir.Build(entry.Bytecode.Name, entry.Params, paramTypes, entry.Body, uint32(id), hir.Integer)
	if err == nil && hf.ReturnType == hir.Float {
		hf, err = hir.Build(entry.Bytecode.Name, entry.Params, paramTypes, entry.Body, uint32(id), hir.Float)
	}
	if err != nil {
		return err
	}
	if d.DumpHIR {
		d.Log.Debugf("%v", hf)
	}
	mf, err := mir.Lower(hf, len(entry.Params)+numLocalsHint(entry))
	if err != nil {
		return err
	}
	if d.DumpMIR {
		d.Log.Debugf("%v", mf)
	}
	compiled, err := codegen.Compile(mf, uint32(id))
	if err != nil {
		return err
	}

	d.compiled[id] = compiled
	entry.State = bytecode.Success
	entry.EntryAddr = compiled.Entry
	entry.ReturnKind = returnKindOf(compiled.ReturnType)
	return nil
}

// numLocalsHint approximates the local-slot high-water mark bytecode
// generation already computed for the interpreter's frame, since HIR's
// builder (unlike bytecode's) never reports its own slot count back to
// the caller directly.
func numLocalsHint(entry *bytecode.FuncEntry) int {
	if entry.Bytecode == nil {
		return 0
	}
	n := entry.Bytecode.NumLocals - 1 - len(entry.Params) // minus self, minus params already counted
	if n < 0 {
		return 0
	}
	return n
}

func returnKindOf(t hir.Type) bytecode.ReturnKind {
	if t == hir.Float {
		return bytecode.ReturnFloat
	}
	return bytecode.ReturnInt
}

func (d *Driver) callCompiled(id bytecode.FuncId, entry *bytecode.FuncEntry, args []runtime.Value) (runtime.Value, error) {
	c, ok := d.compiled[id]
	if !ok {
		// Evicted or never actually materialized (e.g. resumed from a
		// stale FuncEntry.State left over from before a process
		// restart, which never happens in-process but keeps this path
		// from panicking if it ever is reached).
		entry.State = bytecode.Uncompiled
		return d.Call(id, args)
	}

	// args[0] is the receiver (frame slot 0, self); the compiled entry
	// takes only the declared parameters.
	params := args
	if len(params) > 0 {
		params = params[1:]
	}
	for _, p := range params {
		if p.Kind() != runtime.KindInt {
			return d.Interp.Run(entry.Bytecode, args)
		}
	}

	var arg int64
	if len(params) > 0 {
		arg = boxedToInt(params[0])
	}

	switch entry.ReturnKind {
	case bytecode.ReturnFloat:
		if len(params) == 0 {
			return runtime.Float(c.CallFloat0()), nil
		}
		return runtime.Float(c.CallFloat1(arg)), nil
	default:
		if len(params) == 0 {
			return runtime.Int(c.CallInt0()), nil
		}
		return runtime.Int(c.CallInt1(arg)), nil
	}
}

// boxedToInt unwraps an argument Value as a fixnum. JIT-compiled
// functions only ever accept integer arguments (spec.md §7's scope
// cut) so a non-integer argument here means the call should never
// have reached a compiled entry in the first place.
func boxedToInt(v runtime.Value) int64 {
	if v.Kind() == runtime.KindInt {
		return v.AsInt()
	}
	return 0
}

// Invalidate drops any compiled entry for id and resets its
// CompileState to Uncompiled, used on method redefinition (spec.md §9's
// resolved open question: redefinition invalidates eagerly rather than
// leaving stale machine code reachable under the old identity).
func (d *Driver) Invalidate(id bytecode.FuncId) {
	if c, ok := d.compiled[id]; ok {
		_ = c.Release()
		delete(d.compiled, id)
		entry := d.Table.Entry(id)
		entry.State = bytecode.Uncompiled
		entry.EntryAddr = 0
		entry.ReturnKind = bytecode.ReturnUnknown
	}
}

// Close releases every compiled entry's executable mapping.
func (d *Driver) Close() {
	for id, c := range d.compiled {
		_ = c.Release()
		delete(d.compiled, id)
	}
}
