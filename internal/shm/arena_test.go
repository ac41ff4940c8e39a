package shm

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testName(t *testing.T) string {
	return fmt.Sprintf("bridge_test_%s_%d", t.Name(), os.Getpid())
}

func TestCreateOpenRoundTrip(t *testing.T) {
	name := testName(t)
	owner, err := Create(name, 4096, true)
	require.NoError(t, err)
	defer owner.CloseAndUnlink()

	assert.Equal(t, 4096, owner.Size())
	assert.True(t, owner.IsOwner())
	assert.Equal(t, os.Getpid(), owner.OwnerPid())

	copy(owner.Bytes(), []byte("hello bridge"))

	user, err := Open(name)
	require.NoError(t, err)
	defer user.Close()

	assert.False(t, user.IsOwner())
	assert.Equal(t, 4096, user.Size())
	assert.Equal(t, "hello bridge", string(user.Bytes()[:12]))
}

func TestCreateExclusiveCollision(t *testing.T) {
	name := testName(t)
	owner, err := Create(name, 1024, true)
	require.NoError(t, err)
	defer owner.CloseAndUnlink()

	_, err = Create(name, 1024, true)
	assert.Error(t, err)
}

func TestUnlinkThenOpenFails(t *testing.T) {
	name := testName(t)
	owner, err := Create(name, 1024, false)
	require.NoError(t, err)
	require.NoError(t, owner.Close())
	require.NoError(t, Unlink(name))

	_, err = Open(name)
	assert.Error(t, err)
}
