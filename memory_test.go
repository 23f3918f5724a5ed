package luastack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimitStopsHeapGrowth(t *testing.T) {
	rt := newTestRuntime(t, Options{InstallStdlib: true, MemoryLimit: 1 << 20})
	st := rt.Stack()
	require.NoError(t, st.LoadString(`
		local t = {}
		for i = 1, 2000000 do t[i] = i end
		return #t
	`, "grow"))

	err := st.Call(context.Background(), 0, 1)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.Contains(t, err.Error(), "limit is 1048576")
	require.Equal(t, 1, st.Top())
	require.Nil(t, rt.watch)

	// A call within the limit still runs.
	require.NoError(t, st.SetTop(0))
	require.NoError(t, st.LoadString("return 1 + 2", "small"))
	require.NoError(t, st.Call(context.Background(), 0, 1))
	require.Equal(t, []int{3}, stackInts(t, st))
}

func TestMemoryLimitGuardsLibraries(t *testing.T) {
	rt := newTestRuntime(t, Options{InstallStdlib: true, MemoryLimit: 1 << 20})
	st := rt.Stack()

	tests := []struct {
		name string
		code string
	}{
		{"string.rep", `return string.rep("x", 64 * 1024 * 1024)`},
		{"string method", `return ("ab"):rep(1024 * 1024)`},
		{"table.concat", `
			local parts = {}
			for i = 1, 100 do parts[i] = string.rep("y", 16 * 1024) end
			return table.concat(parts)
		`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, st.SetTop(0))
			require.NoError(t, st.LoadString(tt.code, "alloc"))
			err := st.Call(context.Background(), 0, 1)
			require.ErrorIs(t, err, ErrOutOfMemory)
			require.Contains(t, err.Error(), memoryErrorMessage)
			require.Equal(t, 1, st.Top())
		})
	}

	require.NoError(t, st.SetTop(0))
	require.NoError(t, st.LoadString(`return #string.rep("ab", 10) + #table.concat({"a", "b", 3}, ",")`, "fits"))
	require.NoError(t, st.Call(context.Background(), 0, 1))
	require.Equal(t, []int{25}, stackInts(t, st))
}

func TestUnlimitedRuntimeKeepsLibraries(t *testing.T) {
	st := newTestRuntime(t, Options{InstallStdlib: true}).Stack()
	require.NoError(t, st.LoadString(`return #string.rep("x", 4 * 1024 * 1024)`, "big"))
	require.NoError(t, st.Call(context.Background(), 0, 1))
	require.Equal(t, []int{4 * 1024 * 1024}, stackInts(t, st))
}

func TestMemoryLimitStopsCoroutine(t *testing.T) {
	rt := newTestRuntime(t, Options{InstallStdlib: true, MemoryLimit: 1 << 20})
	st := rt.Stack()
	require.NoError(t, st.LoadString(`
		return function()
			coroutine.yield(1)
			local t = {}
			for i = 1, 2000000 do t[i] = i end
			return #t
		end
	`, "gen"))
	require.NoError(t, st.Call(context.Background(), 0, 1))

	co, err := st.NewCoroutine()
	require.NoError(t, err)
	status, n, err := co.Resume(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, StatusYielded, status)
	require.NoError(t, st.Pop(n))

	_, _, err = co.Resume(context.Background(), 0)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.True(t, co.Done())
	require.Equal(t, 1, st.Top())
}
