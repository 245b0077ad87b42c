package script_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/script"
)

func runStep(
	t *testing.T, fn engine.StepFunc, payload string,
) (json.RawMessage, error) {
	t.Helper()
	call := &engine.Call{
		InstanceID: "inst-1",
		Workflow:   "text",
		Step:       "TransformData",
		Index:      1,
		Attempt:    2,
	}
	return fn(context.Background(), call, json.RawMessage(payload))
}

func lua(src string) script.Source {
	return script.Source{Language: script.LangLua, Script: src}
}

func TestLuaStepMergesResult(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Upper", lua(`return { text = string.upper(payload.text) }`))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{"text":"hello","keep":true}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"HELLO","keep":true}`, string(out))
}

func TestLuaStepArrays(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Append", lua(`
		local outputs = payload.outputs or {}
		outputs[#outputs + 1] = string.lower(payload.text)
		return { outputs = outputs }
	`))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{"text":"ABC","outputs":["first"]}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"ABC","outputs":["first","abc"]}`, string(out))
}

func TestLuaStepSeesCall(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Call", lua(`
		return { id = call.instance_id, step = call.step, attempt = call.attempt }
	`))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":"inst-1","step":"TransformData","attempt":2}`, string(out))
}

func TestLuaStepNilResult(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Nothing", lua(`return nil`))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{"a":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestLuaStepNumbers(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Math", lua(`
		return { total = payload.quantity * payload.price, half = payload.quantity / 4 }
	`))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{"quantity":3,"price":10}`)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"quantity":3,"price":10,"total":30,"half":0.75}`, string(out))
}

func TestLuaStepNestedTable(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Nest", lua(`
		return { meta = { source = "lua", tags = { "a", "b" } } }
	`))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"meta":{"source":"lua","tags":["a","b"]}}`, string(out))
}

func TestLuaCompileError(t *testing.T) {
	env := script.NewLuaEnv()
	_, err := env.Step("Broken", lua(`return {`))
	assert.ErrorIs(t, err, script.ErrLuaLoad)
}

func TestLuaRuntimeError(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Fails", lua(`error("nope")`))
	require.NoError(t, err)

	_, err = runStep(t, fn, `{}`)
	assert.ErrorIs(t, err, script.ErrLuaExecution)
}

func TestLuaBadResult(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Scalar", lua(`return 42`))
	require.NoError(t, err)

	_, err = runStep(t, fn, `{}`)
	assert.ErrorIs(t, err, script.ErrLuaResult)
}

func TestLuaSandbox(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Escape", lua(`return { ok = os.time() }`))
	require.NoError(t, err)

	_, err = runStep(t, fn, `{}`)
	assert.ErrorIs(t, err, script.ErrLuaExecution)
}

func TestLuaInvalidPayload(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Any", lua(`return nil`))
	require.NoError(t, err)

	_, err = runStep(t, fn, `[1,2]`)
	assert.True(t, engine.IsValidation(err))
}

func TestLuaCompileCache(t *testing.T) {
	env := script.NewLuaEnv()
	a, err := env.Compile(`return nil`)
	require.NoError(t, err)
	b, err := env.Compile(`return nil`)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLuaConcurrent(t *testing.T) {
	env := script.NewLuaEnv()
	fn, err := env.Step("Upper", lua(`return { text = string.upper(payload.text) }`))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			out, err := runStep(t, fn, `{"text":"abc"}`)
			if assert.NoError(t, err) {
				assert.JSONEq(t, `{"text":"ABC"}`, string(out))
			}
		})
	}
	wg.Wait()
}
