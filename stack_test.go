package luastack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pushInts(t *testing.T, st *Stack, values ...int64) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, st.PushInteger(v))
	}
}

func stackInts(t *testing.T, st *Stack) []int {
	t.Helper()
	var out []int
	for i := 1; i <= st.Top(); i++ {
		v, err := PeekAs[int](st, i)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestAbsIndex(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	pushInts(t, st, 10, 20, 30)

	tests := []struct {
		idx      int
		expected int
		valid    bool
	}{
		{1, 1, true},
		{3, 3, true},
		{-1, 3, true},
		{-3, 1, true},
		{0, 0, false},
		{4, 0, false},
		{-4, 0, false},
	}
	for _, tt := range tests {
		abs, err := st.AbsIndex(tt.idx)
		if !tt.valid {
			require.ErrorIs(t, err, ErrInvalidIndex, "index %d", tt.idx)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.expected, abs)
	}
}

func TestSetTopAndPop(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	pushInts(t, st, 1, 2)

	require.NoError(t, st.SetTop(4))
	require.Equal(t, 4, st.Top())
	kind, err := st.TypeOf(4)
	require.NoError(t, err)
	require.Equal(t, KindNil, kind)

	require.NoError(t, st.SetTop(-2))
	require.Equal(t, 3, st.Top())
	require.NoError(t, st.SetTop(-1))
	require.Equal(t, 3, st.Top())
	require.ErrorIs(t, st.SetTop(-5), ErrInvalidIndex)

	require.ErrorIs(t, st.Pop(4), ErrStackUnderflow)
	require.Equal(t, 3, st.Top())
	require.NoError(t, st.Pop(2))
	require.Equal(t, []int{1}, stackInts(t, st))
	require.NoError(t, st.SetTop(0))
	require.Equal(t, 0, st.Top())
}

func TestSlotShuffles(t *testing.T) {
	tests := []struct {
		name     string
		op       func(st *Stack) error
		expected []int
	}{
		{"insert bottom", func(st *Stack) error { return st.Insert(1) }, []int{3, 1, 2}},
		{"insert top", func(st *Stack) error { return st.Insert(-1) }, []int{1, 2, 3}},
		{"remove middle", func(st *Stack) error { return st.Remove(2) }, []int{1, 3}},
		{"replace bottom", func(st *Stack) error { return st.Replace(1) }, []int{3, 2}},
		{"replace top", func(st *Stack) error { return st.Replace(-1) }, []int{1, 2}},
		{"copy", func(st *Stack) error { return st.Copy(1, 3) }, []int{1, 2, 1}},
		{"rotate up", func(st *Stack) error { return st.Rotate(1, 1) }, []int{3, 1, 2}},
		{"rotate down", func(st *Stack) error { return st.Rotate(1, -1) }, []int{2, 3, 1}},
		{"rotate full turn", func(st *Stack) error { return st.Rotate(1, 3) }, []int{1, 2, 3}},
		{"push value", func(st *Stack) error { return st.PushValue(-2) }, []int{1, 2, 3, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestRuntime(t, Options{}).Stack()
			pushInts(t, st, 1, 2, 3)
			require.NoError(t, tt.op(st))
			require.Equal(t, tt.expected, stackInts(t, st))
		})
	}
}

func TestSlotShufflesRejectInvalidIndex(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	pushInts(t, st, 1, 2)
	ops := map[string]func() error{
		"insert":  func() error { return st.Insert(5) },
		"remove":  func() error { return st.Remove(0) },
		"replace": func() error { return st.Replace(-3) },
		"copy":    func() error { return st.Copy(1, 9) },
		"rotate":  func() error { return st.Rotate(3, 1) },
		"push":    func() error { return st.PushValue(7) },
	}
	for name, op := range ops {
		require.ErrorIs(t, op(), ErrInvalidIndex, name)
		require.Equal(t, []int{1, 2}, stackInts(t, st), name)
	}
}

func TestPeekAs(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	require.NoError(t, st.PushInteger(42))
	require.NoError(t, st.PushNumber(2.5))
	require.NoError(t, st.PushString("hello"))
	require.NoError(t, st.PushBoolean(true))
	require.NoError(t, st.PushNil())

	i, err := PeekAs[int](st, 1)
	require.NoError(t, err)
	require.Equal(t, 42, i)

	f, err := PeekAs[float64](st, 1)
	require.NoError(t, err)
	require.Equal(t, 42.0, f)

	n, err := PeekAs[Number](st, 2)
	require.NoError(t, err)
	require.Equal(t, Number(2.5), n)

	_, err = PeekAs[int64](st, 2)
	require.ErrorIs(t, err, ErrTypeMismatch)

	s, err := PeekAs[string](st, 3)
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	b, err := PeekAs[[]byte](st, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), b)

	// No string/number coercion.
	_, err = PeekAs[string](st, 1)
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = PeekAs[int](st, 3)
	require.ErrorIs(t, err, ErrTypeMismatch)

	ok, err := PeekAs[bool](st, 4)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = PeekAs[Nil](st, -1)
	require.NoError(t, err)
	_, err = PeekAs[Nil](st, 1)
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = PeekAs[int](st, 9)
	require.ErrorIs(t, err, ErrInvalidIndex)
	require.Equal(t, 5, st.Top())
}

func TestPopAs(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()

	_, err := PopAs[int](st)
	require.ErrorIs(t, err, ErrStackUnderflow)
	require.Equal(t, 0, st.Top())

	require.NoError(t, st.PushString("x"))
	_, err = PopAs[bool](st)
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Equal(t, 1, st.Top())

	s, err := PopAs[String](st)
	require.NoError(t, err)
	require.Equal(t, String("x"), s)
	require.Equal(t, 0, st.Top())
}

func TestPushPopValue(t *testing.T) {
	tests := []struct {
		name     string
		in       Value
		expected Value
	}{
		{"nil", Nil{}, Nil{}},
		{"boolean", Boolean(false), Boolean(false)},
		{"integer", Integer(-7), Integer(-7)},
		{"number", Number(0.25), Number(0.25)},
		{"integral number reads as integer", Number(2.0), Integer(2)},
		{"beyond exact range reads as number", Integer(1 << 60), Number(1 << 60)},
		{"string with zero byte", String("a\x00b"), String("a\x00b")},
		{"invalid utf8", String([]byte{0xff, 0xfe}), String([]byte{0xff, 0xfe})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestRuntime(t, Options{}).Stack()
			require.NoError(t, st.Push(tt.in))
			kind, err := st.TypeOf(-1)
			require.NoError(t, err)
			require.Equal(t, tt.expected.Kind(), kind)
			v, err := st.PopValue()
			require.NoError(t, err)
			require.Equal(t, tt.expected, v)
			require.Equal(t, 0, st.Top())
		})
	}
}

func TestPushAfterPopIsEquivalent(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	pushInts(t, st, 1, 2)
	require.NoError(t, st.PushString("tmp"))
	require.NoError(t, st.Pop(1))
	require.Equal(t, []int{1, 2}, stackInts(t, st))
}

func TestDump(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	require.NoError(t, st.PushInteger(1))
	require.NoError(t, st.PushString("a"))
	require.NoError(t, st.PushBoolean(true))
	require.NoError(t, st.NewTable(2, 0))

	slots := st.Dump()
	require.Len(t, slots, 4)
	require.Equal(t, []Kind{KindInteger, KindString, KindBoolean, KindTable},
		[]Kind{slots[0].Kind, slots[1].Kind, slots[2].Kind, slots[3].Kind})
	require.Equal(t, `[2] string "a"`, slots[1].String())
	require.Equal(t, "[1] integer 1", slots[0].String())
	require.Contains(t, slots[3].Repr, "len=0")
	require.Equal(t, 4, st.Top())
	require.Equal(t, 0, st.Runtime().LiveReferences())

	dump := st.DumpString()
	require.Contains(t, dump, "[3] boolean true\n")
}
