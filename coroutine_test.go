package luastack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoroutineYieldResume(t *testing.T) {
	st := newTestRuntime(t, Options{InstallStdlib: true}).Stack()
	require.NoError(t, st.LoadString(`
		return function(a)
			local b = coroutine.yield(a + 1)
			return b * 2, "done"
		end
	`, "gen"))
	require.NoError(t, st.Call(context.Background(), 0, 1))

	co, err := st.NewCoroutine()
	require.NoError(t, err)
	require.Equal(t, 0, st.Top())
	require.False(t, co.Done())

	require.NoError(t, st.PushInteger(1))
	status, n, err := co.Resume(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusYielded, status)
	require.Equal(t, "yielded", status.String())
	require.Equal(t, 1, n)
	v, err := PopAs[int](st)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	require.NoError(t, st.PushInteger(10))
	status, n, err = co.Resume(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusReturned, status)
	require.Equal(t, 2, n)
	done, err := PopAs[string](st)
	require.NoError(t, err)
	require.Equal(t, "done", done)
	v, err = PopAs[int](st)
	require.NoError(t, err)
	require.Equal(t, 20, v)
	require.True(t, co.Done())

	_, _, err = co.Resume(context.Background(), 0)
	require.ErrorIs(t, err, ErrRuntime)
	require.Equal(t, 0, st.Top())
}

func TestCoroutineError(t *testing.T) {
	st := newTestRuntime(t, Options{InstallStdlib: true}).Stack()
	require.NoError(t, st.LoadString(`return function() error("broken") end`, "bad"))
	require.NoError(t, st.Call(context.Background(), 0, 1))
	co, err := st.NewCoroutine()
	require.NoError(t, err)

	_, _, err = co.Resume(context.Background(), 0)
	require.ErrorIs(t, err, ErrRuntime)
	require.Contains(t, err.Error(), "broken")
	require.True(t, co.Done())
	require.Equal(t, 1, st.Top())
}

func TestNewCoroutineRejects(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	_, err := st.NewCoroutine()
	require.ErrorIs(t, err, ErrStackUnderflow)

	require.NoError(t, st.PushInteger(1))
	_, err = st.NewCoroutine()
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Equal(t, 1, st.Top())
}

func TestCoroutineResumeUnderflow(t *testing.T) {
	st := newTestRuntime(t, Options{}).Stack()
	require.NoError(t, st.LoadString("return ...", "echo"))
	co, err := st.NewCoroutine()
	require.NoError(t, err)
	_, _, err = co.Resume(context.Background(), 2)
	require.ErrorIs(t, err, ErrStackUnderflow)
	require.False(t, co.Done())
}
