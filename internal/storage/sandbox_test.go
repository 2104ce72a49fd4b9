package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sandbox, err := NewSandbox(t.TempDir())
	require.NoError(t, err)
	return sandbox
}

func TestSandbox_ResolveRejectsEscapes(t *testing.T) {
	sandbox := newTestSandbox(t)

	escapes := []string{
		"../outside",
		"a/../../outside",
		"/etc/passwd",
	}
	for _, path := range escapes {
		t.Run(path, func(t *testing.T) {
			_, err := sandbox.ResolvePath(path)
			assert.Error(t, err)
		})
	}
}

func TestSandbox_WriteRead(t *testing.T) {
	sandbox := newTestSandbox(t)

	require.NoError(t, sandbox.WriteFile("sub/file.txt", []byte("hello")))

	data, err := sandbox.ReadFile("sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	exists, err := sandbox.Exists("sub/file.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSandbox_AtomicWrite(t *testing.T) {
	sandbox := newTestSandbox(t)

	require.NoError(t, sandbox.AtomicWrite("out.txt", []byte("v1")))
	require.NoError(t, sandbox.AtomicWrite("out.txt", []byte("v2")))

	data, err := sandbox.ReadFile("out.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(sandbox.BaseDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSandbox_RemoveAllProtectsBase(t *testing.T) {
	sandbox := newTestSandbox(t)
	assert.Error(t, sandbox.RemoveAll("."))
}

func TestSandbox_SubSandbox(t *testing.T) {
	sandbox := newTestSandbox(t)

	sub, err := sandbox.SubSandbox("nested")
	require.NoError(t, err)

	require.NoError(t, sub.WriteFile("f.txt", []byte("x")))
	data, err := sandbox.ReadFile("nested/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	// The sub-sandbox cannot reach its parent.
	_, err = sub.ResolvePath("../f.txt")
	assert.Error(t, err)
}
