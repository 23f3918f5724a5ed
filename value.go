package luastack

import (
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// Kind identifies the runtime type of a stack slot or Value.
type Kind int

const (
	// KindNone is reported for a slot that does not exist.
	KindNone Kind = iota
	KindNil
	KindBoolean
	KindInteger
	KindNumber
	KindString
	KindTable
	KindFunction
	KindUserData
	// KindThread and KindChannel exist inside the interpreter but cannot
	// cross the boundary as a Value.
	KindThread
	KindChannel
)

var kindNames = [...]string{
	KindNone:     "none",
	KindNil:      "nil",
	KindBoolean:  "boolean",
	KindInteger:  "integer",
	KindNumber:   "number",
	KindString:   "string",
	KindTable:    "table",
	KindFunction: "function",
	KindUserData: "userdata",
	KindThread:   "thread",
	KindChannel:  "channel",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsReference returns true for kinds that are carried across the boundary
// as a Reference rather than copied.
func (k Kind) IsReference() bool {
	return k == KindTable || k == KindFunction || k == KindUserData
}

// maxExactInteger is the largest magnitude an Integer keeps exactly once it
// is stored in an interpreter number.
const maxExactInteger = 1 << 53

// Value is anything that can cross the host/interpreter boundary. The set of
// implementations is closed: Nil, Boolean, Integer, Number, String, Table,
// Function and UserData.
type Value interface {
	Kind() Kind
	String() string
	value()
}

// Nil is the Lua nil value.
type Nil struct{}

// Boolean is a Lua boolean.
type Boolean bool

// Integer is an integral Lua number. Values beyond ±2^53 lose precision once
// pushed, because the interpreter stores every number as a float64.
type Integer int64

// Number is a floating point Lua number.
//
// The interpreter has a single number type, so a pushed Number with an
// integral value within ±2^53 reads back as Integer: Push(Number(2.0))
// followed by PopValue returns Integer(2). Use PopAs[float64] to read any
// number as a float.
type Number float64

// String is an owned copy of a Lua string. Lua strings are byte sequences
// and may hold invalid UTF-8 or embedded zeros.
type String []byte

// Table is a Lua table kept alive in the reference registry.
type Table struct {
	Ref Reference
}

// Function is a Lua or host function kept alive in the reference registry.
type Function struct {
	Ref Reference
}

// UserData is a userdata value kept alive in the reference registry.
type UserData struct {
	Ref Reference
}

func (Nil) Kind() Kind      { return KindNil }
func (Boolean) Kind() Kind  { return KindBoolean }
func (Integer) Kind() Kind  { return KindInteger }
func (Number) Kind() Kind   { return KindNumber }
func (String) Kind() Kind   { return KindString }
func (Table) Kind() Kind    { return KindTable }
func (Function) Kind() Kind { return KindFunction }
func (UserData) Kind() Kind { return KindUserData }

func (Nil) value()      {}
func (Boolean) value()  {}
func (Integer) value()  {}
func (Number) value()   {}
func (String) value()   {}
func (Table) value()    {}
func (Function) value() {}
func (UserData) value() {}

func (Nil) String() string { return "nil" }

func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

func (n Number) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }

func (s String) String() string { return string(s) }

func (t Table) String() string { return t.Ref.String() }

func (f Function) String() string { return f.Ref.String() }

func (u UserData) String() string { return u.Ref.String() }

// Reference is an opaque handle to an interpreter-owned value held in the
// registry of one Runtime. References may be copied freely; they stay valid
// until released or until the owning Runtime is closed.
type Reference struct {
	runtime string
	index   int
	gen     uint32
	kind    Kind
}

// Kind returns the kind of the referenced value.
func (r Reference) Kind() Kind {
	return r.kind
}

// RuntimeID returns the ID of the Runtime that owns the reference.
func (r Reference) RuntimeID() string {
	return r.runtime
}

// IsZero returns true for the zero Reference, which names nothing.
func (r Reference) IsZero() bool {
	return r.index == 0
}

func (r Reference) String() string {
	if r.IsZero() {
		return "ref(none)"
	}
	return fmt.Sprintf("%s(%s#%d.%d)", r.kind, r.runtime, r.index, r.gen)
}

// wrapReference builds the Value variant matching the reference kind.
func wrapReference(ref Reference) Value {
	switch ref.kind {
	case KindTable:
		return Table{Ref: ref}
	case KindFunction:
		return Function{Ref: ref}
	default:
		return UserData{Ref: ref}
	}
}

// refOf extracts the reference carried by v, if any.
func refOf(v Value) (Reference, bool) {
	switch r := v.(type) {
	case Table:
		return r.Ref, true
	case Function:
		return r.Ref, true
	case UserData:
		return r.Ref, true
	}
	return Reference{}, false
}

func kindOf(lv lua.LValue) Kind {
	switch v := lv.(type) {
	case nil:
		return KindNone
	case *lua.LNilType:
		return KindNil
	case lua.LBool:
		return KindBoolean
	case lua.LNumber:
		if isExactInteger(float64(v)) {
			return KindInteger
		}
		return KindNumber
	case lua.LString:
		return KindString
	case *lua.LTable:
		return KindTable
	case *lua.LFunction:
		return KindFunction
	case *lua.LUserData:
		return KindUserData
	case *lua.LState:
		return KindThread
	case lua.LChannel:
		return KindChannel
	}
	return KindNone
}

func isExactInteger(f float64) bool {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return false
	}
	return f == math.Trunc(f) && math.Abs(f) <= maxExactInteger
}
