package script_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/script"
)

func aleSrc(src string, args ...string) script.Source {
	return script.Source{Language: script.LangAle, Script: src, Args: args}
}

func TestAleStepMergesResult(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Collapse", aleSrc(`{:text (collapse text)}`, "text"))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{"text":"  a \t b\n c ","keep":true}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"a b c","keep":true}`, string(out))
}

func TestAleStepMissingArg(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Collapse", aleSrc(`{:text (collapse text)}`, "text"))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":""}`, string(out))
}

func TestAleStepNumbers(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Math",
		aleSrc(`{:total (* quantity price)}`, "price", "quantity"),
	)
	require.NoError(t, err)

	out, err := runStep(t, fn, `{"quantity":3,"price":10}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"quantity":3,"price":10,"total":30}`, string(out))
}

func TestAleStepNested(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Nest", aleSrc(`{:meta {:source "ale" :tags ["a" "b"]}}`))
	require.NoError(t, err)

	out, err := runStep(t, fn, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"meta":{"source":"ale","tags":["a","b"]}}`, string(out))
}

func TestAleCompileError(t *testing.T) {
	env := script.NewAleEnv()
	_, err := env.Step("Broken", aleSrc(`{:text`))
	assert.ErrorIs(t, err, script.ErrAleCompile)
}

func TestAleRuntimeError(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Fails", aleSrc(`{:text (collapse)}`))
	require.NoError(t, err)

	_, err = runStep(t, fn, `{}`)
	assert.ErrorIs(t, err, script.ErrAleCall)
}

func TestAleBadResult(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Scalar", aleSrc(`42`))
	require.NoError(t, err)

	_, err = runStep(t, fn, `{}`)
	assert.ErrorIs(t, err, script.ErrAleResult)
}

func TestAleInvalidPayload(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Any", aleSrc(`{:a 1}`))
	require.NoError(t, err)

	_, err = runStep(t, fn, `[1,2]`)
	assert.True(t, engine.IsValidation(err))
}

func TestAleConcurrent(t *testing.T) {
	env := script.NewAleEnv()
	fn, err := env.Step("Collapse", aleSrc(`{:text (collapse text)}`, "text"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			out, err := runStep(t, fn, `{"text":" x  y "}`)
			if assert.NoError(t, err) {
				assert.JSONEq(t, `{"text":"x y"}`, string(out))
			}
		})
	}
	wg.Wait()
}
