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

package bytecode

import (
	"github.com/dolthub/swiss"

	"corvus/ast"
	"corvus/utils"
)

// FuncTable is the process-wide function table (spec.md §3): a
// monotonically growing, never-shrinking list of FuncEntry indexed by
// FuncId, plus the identifier->FuncId side map used to resolve call
// sites. FuncId 0 is reserved for top-level ("_MAIN") code.
//
// The identifier->FuncId map is a swiss.Map: every call-site name
// resolution goes through it, which is exactly the workload a
// SwissTable hash map targets. Entries themselves are a plain slice
// indexed by FuncId.
type FuncTable struct {
	entries []*FuncEntry
	byName  *swiss.Map[string, FuncId]
}

// NewFuncTable creates a table pre-seeded with the reserved _MAIN
// entry at FuncId 0.
func NewFuncTable() *FuncTable {
	t := &FuncTable{
		byName: swiss.NewMap[string, FuncId](64),
	}
	main := &FuncEntry{Id: MainFuncId, Kind: KindNormal}
	t.entries = append(t.entries, main)
	t.byName.Put("_MAIN", MainFuncId)
	return t
}

// DeclareNormal reserves a new FuncId for a normal (AST-carrying)
// function body and binds name to it.
func (t *FuncTable) DeclareNormal(name string, params []string, body []ast.Stmt) FuncId {
	id := FuncId(len(t.entries))
	t.entries = append(t.entries, &FuncEntry{Id: id, Kind: KindNormal, Params: params, Body: body})
	t.Rebind(name, id)
	return id
}

// DeclareBuiltin registers a native function.
func (t *FuncTable) DeclareBuiltin(b *Builtin) FuncId {
	id := FuncId(len(t.entries))
	t.entries = append(t.entries, &FuncEntry{Id: id, Kind: KindBuiltin, Native: b})
	t.Rebind(b.Name, id)
	return id
}

// Rebind points name at id, overwriting any previous binding. Used for
// both initial definition and redefinition (spec.md §9: "Method
// redefinition").
func (t *FuncTable) Rebind(name string, id FuncId) {
	t.byName.Put(name, id)
}

// Lookup resolves an identifier to a FuncId.
func (t *FuncTable) Lookup(name string) (FuncId, bool) {
	return t.byName.Get(name)
}

// Entry returns the table entry for id. Panics on an out-of-range id,
// which would indicate a compiler bug (ids are only ever handed out by
// Declare*).
func (t *FuncTable) Entry(id FuncId) *FuncEntry {
	utils.Assert(int(id) < len(t.entries), "FuncId %d out of range", id)
	return t.entries[id]
}

// Replace swaps in a new body for an existing FuncId, preserving the
// id (spec.md §3 invariant: "a normal entry may be replaced (method
// redefinition) in place, preserving its id"). The caller is
// responsible for invalidating any JIT cache entry
// (driver.Driver.Invalidate).
func (t *FuncTable) Replace(id FuncId, params []string, body []ast.Stmt) {
	e := t.Entry(id)
	e.Params = params
	e.Body = body
	e.Bytecode = nil
	e.State = Uncompiled
	e.EntryAddr = 0
	e.ReturnKind = ReturnUnknown
}

// Len reports the number of entries, including _MAIN.
func (t *FuncTable) Len() int { return len(t.entries) }
