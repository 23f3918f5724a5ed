package luastack_test

import (
	"context"
	"errors"
	"testing"

	"github.com/deepnoodle-ai/luastack"
	"github.com/stretchr/testify/require"
)

func TestEvaluateExpression(t *testing.T) {
	rt, err := luastack.New(luastack.Options{InstallStdlib: true})
	require.NoError(t, err)
	defer rt.Close()

	st := rt.Stack()
	require.NoError(t, st.LoadString("return 1 + 2", "calc"))
	require.NoError(t, st.Call(context.Background(), 0, 1))

	sum, err := luastack.PopAs[int64](st)
	require.NoError(t, err)
	require.Equal(t, int64(3), sum)
	require.Equal(t, 0, st.Top())
}

func TestReadConfigTable(t *testing.T) {
	rt, err := luastack.New(luastack.Options{InstallStdlib: true})
	require.NoError(t, err)
	defer rt.Close()

	st := rt.Stack()
	require.NoError(t, st.LoadString(`config = {name = "svc", port = 8080}`, "config.lua"))
	require.NoError(t, st.Call(context.Background(), 0, 0))

	config, err := luastack.GlobalAs[luastack.Table](st, "config")
	require.NoError(t, err)
	defer rt.ReleaseValue(config)

	port, err := luastack.TableFieldAs[int](st, config, "port")
	require.NoError(t, err)
	require.Equal(t, 8080, port)

	_, err = luastack.TableFieldAs[bool](st, config, "name")
	require.ErrorIs(t, err, luastack.ErrTypeMismatch)
	require.Equal(t, 0, st.Top())
}

func TestSyntaxErrorThenRecover(t *testing.T) {
	rt, err := luastack.New(luastack.Options{})
	require.NoError(t, err)
	defer rt.Close()

	st := rt.Stack()
	err = st.LoadString("1 +", "input")
	var syntaxErr *luastack.Error
	require.True(t, errors.As(err, &syntaxErr))
	require.Equal(t, luastack.ErrorTypeSyntax, syntaxErr.Type)
	require.Equal(t, "input", syntaxErr.Location.Chunk)
	require.Equal(t, 0, st.Top())

	require.NoError(t, st.LoadString("return 'ok'", "input"))
	require.NoError(t, st.Call(context.Background(), 0, 1))
	out, err := luastack.PopAs[string](st)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}

func TestHostFunctionRoundTrip(t *testing.T) {
	rt, err := luastack.New(luastack.Options{InstallStdlib: true})
	require.NoError(t, err)
	defer rt.Close()

	st := rt.Stack()
	require.NoError(t, st.Register("greet", luastack.TypedFunction(
		func(ctx context.Context, name string) (string, error) {
			return "hello " + name, nil
		})))

	fn, err := rt.LoadFunction([]byte("local who = ... return greet(who)"), "greet.lua")
	require.NoError(t, err)
	defer rt.ReleaseValue(fn)

	results, err := st.CallRef(context.Background(), fn, luastack.String("lua"))
	require.NoError(t, err)
	require.Equal(t, []luastack.Value{luastack.String("hello lua")}, results)
}

func TestRuntimeErrorLeavesRuntimeUsable(t *testing.T) {
	rt, err := luastack.New(luastack.Options{InstallStdlib: true})
	require.NoError(t, err)

	st := rt.Stack()
	require.NoError(t, st.LoadString(`local t = nil; return t.field`, "nil_index"))
	err = st.Call(context.Background(), 0, 1)
	require.True(t, luastack.MatchesErrorType(err, luastack.ErrorTypeRuntime))
	require.Equal(t, 1, st.Top())
	require.NoError(t, st.SetTop(0))

	require.NoError(t, st.LoadString("return 2 * 21", "after"))
	require.NoError(t, st.Call(context.Background(), 0, 1))
	answer, err := luastack.PopAs[int](st)
	require.NoError(t, err)
	require.Equal(t, 42, answer)

	require.NoError(t, rt.Close())
	require.ErrorIs(t, rt.Close(), luastack.ErrHandleClosed)
}
