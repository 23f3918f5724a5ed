package luastack

import (
	lua "github.com/yuin/gopher-lua"
)

// registryKey anchors the reference table in the interpreter registry.
const registryKey = "luastack.references"

// slotBytes is the accounting size of one stack or registry slot.
const slotBytes = 16

// refSlot is the host-side record of one index of the reference table.
// gen counts how often the index was handed out, so a Reference from an
// earlier use of the index no longer matches.
type refSlot struct {
	gen   uint32
	live  bool
	kind  Kind
	bytes int
}

// referenceRegistry maps references to indexes of an interpreter-side
// table. Released indexes go on a free list and are reused by later
// retains, so the table only grows to the peak number of live references.
type referenceRegistry struct {
	table *lua.LTable
	slots []refSlot // index n is slots[n-1]
	free  []int
	live  int
	bytes int
}

func newReferenceRegistry(L *lua.LState) *referenceRegistry {
	table := L.NewTable()
	L.G.Registry.RawSetString(registryKey, table)
	return &referenceRegistry{table: table}
}

// acquire returns a free index of the reference table.
func (r *referenceRegistry) acquire() int {
	if n := len(r.free); n > 0 {
		index := r.free[n-1]
		r.free = r.free[:n-1]
		return index
	}
	r.slots = append(r.slots, refSlot{})
	return len(r.slots)
}

// entry returns the slot ref names, or nil when ref was released.
func (r *referenceRegistry) entry(ref Reference) *refSlot {
	if ref.index < 1 || ref.index > len(r.slots) {
		return nil
	}
	slot := &r.slots[ref.index-1]
	if !slot.live || slot.gen != ref.gen {
		return nil
	}
	return slot
}

// Retain stores the value at idx in the reference registry. The value then
// survives being popped until the reference is released.
func (s *Stack) Retain(idx int) (Reference, error) {
	if err := s.rt.checkOpen(); err != nil {
		return Reference{}, err
	}
	abs, err := s.absIndex(idx)
	if err != nil {
		return Reference{}, err
	}
	return s.rt.retain(s.L.Get(abs))
}

// PushRef pushes the value named by ref.
func (s *Stack) PushRef(ref Reference) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	lv, err := s.rt.lookup(ref)
	if err != nil {
		return err
	}
	return s.push(lv)
}

// Release drops the registry hold on ref. Any later use of ref fails with
// UseAfterRelease.
func (rt *Runtime) Release(ref Reference) error {
	if err := rt.checkOwned(ref); err != nil {
		return err
	}
	slot := rt.refs.entry(ref)
	if slot == nil {
		return rt.releasedError(ref)
	}
	rt.refs.table.RawSetInt(ref.index, lua.LNil)
	slot.live = false
	rt.refs.free = append(rt.refs.free, ref.index)
	rt.refs.live--
	rt.refs.bytes -= slot.bytes
	return nil
}

// ReleaseValue releases the reference carried by v, if any.
func (rt *Runtime) ReleaseValue(v Value) error {
	ref, ok := refOf(v)
	if !ok {
		return nil
	}
	return rt.Release(ref)
}

// LiveReferences returns the number of references not yet released.
func (rt *Runtime) LiveReferences() int {
	if rt.closed {
		return 0
	}
	return rt.refs.live
}

func (rt *Runtime) retain(lv lua.LValue) (Reference, error) {
	kind := kindOf(lv)
	switch kind {
	case KindNone:
		return Reference{}, NewError(ErrorTypeInvalidIndex, "no value to retain")
	case KindNil:
		return Reference{}, NewError(ErrorTypeTypeMismatch, "cannot retain nil")
	}
	size := slotBytes
	if str, ok := lv.(lua.LString); ok {
		size += len(str)
	}
	if rt.memoryLimit > 0 && rt.refs.bytes+size > rt.memoryLimit {
		return Reference{}, newErrorf(ErrorTypeOutOfMemory,
			"reference registry would exceed the memory limit of %d bytes", rt.memoryLimit)
	}
	index := rt.refs.acquire()
	slot := &rt.refs.slots[index-1]
	slot.gen++
	slot.live = true
	slot.kind = kind
	slot.bytes = size
	rt.refs.table.RawSetInt(index, lv)
	rt.refs.live++
	rt.refs.bytes += size
	return Reference{runtime: rt.id, index: index, gen: slot.gen, kind: kind}, nil
}

func (rt *Runtime) retainKind(lv lua.LValue, want Kind) (Reference, error) {
	if kindOf(lv) != want {
		return Reference{}, mismatch(want, lv)
	}
	return rt.retain(lv)
}

func (rt *Runtime) lookup(ref Reference) (lua.LValue, error) {
	if err := rt.checkOwned(ref); err != nil {
		return nil, err
	}
	if rt.refs.entry(ref) == nil {
		return nil, rt.releasedError(ref)
	}
	return rt.refs.table.RawGetInt(ref.index), nil
}

func (rt *Runtime) checkOwned(ref Reference) error {
	if err := rt.checkOpen(); err != nil {
		return err
	}
	if ref.runtime != rt.id {
		return newErrorf(ErrorTypeForeignReference, "%s does not belong to runtime %s", ref, rt.id)
	}
	return nil
}

func (rt *Runtime) releasedError(ref Reference) *Error {
	return newErrorf(ErrorTypeUseAfterRelease, "%s was released", ref)
}
