package luastack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableFields(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	require.NoError(t, st.NewTable(2, 2))

	require.NoError(t, st.PushString("svc"))
	require.NoError(t, st.SetField(-2, "name"))
	require.NoError(t, st.PushInteger(10))
	require.NoError(t, st.SetIndex(-2, 1))
	require.NoError(t, st.PushInteger(20))
	require.NoError(t, st.SetIndex(-2, 2))
	require.Equal(t, 1, st.Top())

	name, err := FieldAs[string](st, 1, "name")
	require.NoError(t, err)
	require.Equal(t, "svc", name)

	require.NoError(t, st.GetIndex(1, 2))
	second, err := PopAs[int](st)
	require.NoError(t, err)
	require.Equal(t, 20, second)

	n, err := st.RawLen(1)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = FieldAs[int](st, 1, "name")
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Equal(t, 1, st.Top())

	require.NoError(t, st.GetField(1, "missing"))
	kind, err := st.TypeOf(-1)
	require.NoError(t, err)
	require.Equal(t, KindNil, kind)
}

func TestTableAccessRejectsNonTables(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	require.NoError(t, st.PushInteger(1))
	require.ErrorIs(t, st.GetField(1, "x"), ErrTypeMismatch)
	require.ErrorIs(t, st.GetIndex(1, 1), ErrTypeMismatch)
	require.NoError(t, st.PushInteger(2))
	require.ErrorIs(t, st.SetField(1, "x"), ErrTypeMismatch)
	require.Equal(t, 2, st.Top())

	_, err := st.RawLen(1)
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.ErrorIs(t, st.GetField(5, "x"), ErrInvalidIndex)
}

func TestRawAccessSkipsMetamethods(t *testing.T) {
	st := newTestRuntime(t, Options{InstallStdlib: true, Libraries: []string{LibBase}}).Stack()
	require.NoError(t, st.LoadString(`
		return setmetatable({1}, {
			__index = function() return "meta" end,
			__newindex = function(t, k, v) rawset(t, k, v * 10) end,
		})
	`, "meta"))
	require.NoError(t, st.Call(context.Background(), 0, 1))

	require.NoError(t, st.GetIndex(1, 2))
	s, err := PopAs[string](st)
	require.NoError(t, err)
	require.Equal(t, "meta", s)
	require.NoError(t, st.RawGetIndex(1, 2))
	kind, err := st.TypeOf(-1)
	require.NoError(t, err)
	require.Equal(t, KindNil, kind)
	require.NoError(t, st.Pop(1))

	require.NoError(t, st.PushInteger(7))
	require.NoError(t, st.RawSetIndex(1, 2))
	require.NoError(t, st.PushInteger(7))
	require.NoError(t, st.SetIndex(1, 3))
	require.NoError(t, st.RawGetIndex(1, 2))
	require.NoError(t, st.RawGetIndex(1, 3))
	raw, err := PeekAs[int](st, 2)
	require.NoError(t, err)
	require.Equal(t, 7, raw)
	viaMeta, err := PeekAs[int](st, 3)
	require.NoError(t, err)
	require.Equal(t, 70, viaMeta)
	require.NoError(t, st.SetTop(1))

	require.NoError(t, st.PushString("k"))
	require.NoError(t, st.PushInteger(5))
	require.NoError(t, st.RawSet(1))
	require.Equal(t, 1, st.Top())
	require.NoError(t, st.PushString("k"))
	require.NoError(t, st.RawGet(1))
	v, err := PopAs[int](st)
	require.NoError(t, err)
	require.Equal(t, 5, v)

	require.NoError(t, st.PushString("other"))
	require.NoError(t, st.RawGet(1))
	kind, err = st.TypeOf(-1)
	require.NoError(t, err)
	require.Equal(t, KindNil, kind)
	require.NoError(t, st.SetTop(1))

	require.NoError(t, st.PushNil())
	require.NoError(t, st.PushInteger(1))
	require.ErrorIs(t, st.RawSet(1), ErrTypeMismatch)
	require.Equal(t, 3, st.Top())
	require.ErrorIs(t, st.RawGetIndex(2, 1), ErrTypeMismatch)
}

func TestStringRawLen(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	require.NoError(t, st.PushString("a\x00c"))
	n, err := st.RawLen(-1)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestTableMetamethodError(t *testing.T) {
	st := newTestRuntime(t, Options{InstallStdlib: true}).Stack()
	require.NoError(t, st.LoadString(`return setmetatable({}, {
		__index = function(_, k) error("no field " .. k) end,
		__newindex = function(_, k) error("read only " .. k) end,
	})`, "meta"))
	require.NoError(t, st.Call(context.Background(), 0, 1))

	err := st.GetField(1, "x")
	require.ErrorIs(t, err, ErrRuntime)
	require.Contains(t, err.Error(), "no field x")
	require.Equal(t, 1, st.Top())

	require.NoError(t, st.PushInteger(3))
	err = st.SetField(1, "y")
	require.ErrorIs(t, err, ErrRuntime)
	require.Contains(t, err.Error(), "read only y")
	require.Equal(t, 2, st.Top())
}

func TestTableNext(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	require.NoError(t, st.LoadString("return {a = 1, b = 2, c = 3}", "tbl"))
	require.NoError(t, st.Call(context.Background(), 0, 1))

	sum := 0
	keys := map[string]bool{}
	require.NoError(t, st.PushNil())
	for {
		more, err := st.Next(1)
		require.NoError(t, err)
		if !more {
			break
		}
		v, err := PopAs[int](st)
		require.NoError(t, err)
		k, err := PeekAs[string](st, -1)
		require.NoError(t, err)
		keys[k] = true
		sum += v
	}
	require.Equal(t, 6, sum)
	require.Len(t, keys, 3)
	require.Equal(t, 1, st.Top())

	_, err := st.Next(1)
	require.ErrorIs(t, err, ErrStackUnderflow)
}

func TestGlobals(t *testing.T) {
	rt := newTestRuntime(t, Options{})
	st := rt.Stack()

	require.NoError(t, st.SetGlobalValue("config", map[string]any{
		"name": "svc",
		"port": 8080,
	}))
	require.NoError(t, st.PushInteger(3))
	require.NoError(t, st.SetGlobal("count"))
	require.Equal(t, 0, st.Top())

	count, err := GlobalAs[int](st, "count")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	cfg, err := GlobalAs[Table](st, "config")
	require.NoError(t, err)
	port, err := TableFieldAs[int](st, cfg, "port")
	require.NoError(t, err)
	require.Equal(t, 8080, port)
	name, err := TableFieldAs[string](st, cfg, "name")
	require.NoError(t, err)
	require.Equal(t, "svc", name)
	require.Equal(t, 0, st.Top())

	_, err = GlobalAs[string](st, "missing")
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Equal(t, 0, st.Top())

	require.ErrorIs(t, st.SetGlobal("empty"), ErrStackUnderflow)
	require.NoError(t, rt.ReleaseValue(cfg))
	_, err = TableFieldAs[int](st, cfg, "port")
	require.ErrorIs(t, err, ErrUseAfterRelease)
}
