package main_test

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func runMain(t *testing.T, env ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", ".")
	cmd.Env = append(os.Environ(), env...)
	err := cmd.Run()
	assert.NotEqual(t, context.DeadlineExceeded, ctx.Err())
	return err
}

func TestMainExitsOnStoreError(t *testing.T) {
	err := runMain(t,
		"STORE_BACKEND=redis",
		"REDIS_ADDR=127.0.0.1:1",
	)
	assert.Error(t, err)
}

func TestMainExitsOnJournalError(t *testing.T) {
	err := runMain(t,
		"STORE_BACKEND=timebox",
		"REDIS_ADDR=127.0.0.1:1",
	)
	assert.Error(t, err)
}

func TestMainExitsOnInvalidConfig(t *testing.T) {
	err := runMain(t, "STORE_BACKEND=cassandra")
	assert.Error(t, err)
}
