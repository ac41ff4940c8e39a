package procctl

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleepCommand(t *testing.T) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", "ping", "-n", "2", "127.0.0.1"}
	}
	return "sleep", []string{"0.2"}
}

func TestLaunchAndWaitExitsCleanly(t *testing.T) {
	exe, args := sleepCommand(t)
	c := New()
	require.NoError(t, c.Launch(exe, args...))
	assert.NotZero(t, c.Pid())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Wait(ctx)
	assert.NoError(t, err)
}

func TestOnExitFiresAfterProcessExits(t *testing.T) {
	exe, args := sleepCommand(t)
	c := New()
	require.NoError(t, c.Launch(exe, args...))

	fired := make(chan error, 1)
	c.OnExit(func(c *Controller, err error) { fired <- err })

	select {
	case err := <-fired:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("exit callback never fired")
	}
}

func TestOnExitFiresImmediatelyIfAlreadyExited(t *testing.T) {
	exe, args := sleepCommand(t)
	c := New()
	require.NoError(t, c.Launch(exe, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))

	called := false
	c.OnExit(func(c *Controller, err error) { called = true })
	assert.True(t, called)
}

func TestLaunchTwiceIsError(t *testing.T) {
	exe, args := sleepCommand(t)
	c := New()
	require.NoError(t, c.Launch(exe, args...))
	assert.ErrorIs(t, c.Launch(exe, args...), ErrAlreadyLaunched)
}

func TestBuildArgsOrder(t *testing.T) {
	args := BuildArgs("guid-1234", "1.0.0", []string{"-foo", "bar"})
	assert.Equal(t, []string{"guid-1234", "1.0.0", "-foo", "bar"}, args)
}
