package fdtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/hostfs"
)

func openTestFile(t *testing.T) *hostfs.File {
	t.Helper()
	fs, err := hostfs.NewMem()
	require.NoError(t, err)
	_, err = fs.Create("f.txt", 0)
	require.NoError(t, err)
	f, err := fs.Open("f.txt")
	require.NoError(t, err)
	return f
}

func TestInsertStartsAtFdFirst(t *testing.T) {
	tbl := New(16)
	fd, err := tbl.Insert(openTestFile(t))
	require.Zero(t, err)
	assert.Equal(t, defs.FD_FIRST, fd)
}

func TestInsertIsMonotonic(t *testing.T) {
	tbl := New(16)
	fd1, _ := tbl.Insert(openTestFile(t))
	fd2, _ := tbl.Insert(openTestFile(t))
	assert.Less(t, fd1, fd2)
}

func TestRemoveThenGetFails(t *testing.T) {
	tbl := New(16)
	fd, _ := tbl.Insert(openTestFile(t))

	require.Zero(t, tbl.Remove(fd))
	_, ok := tbl.Get(fd)
	assert.False(t, ok)
}

func TestRemoveUnknownFdIsEBADF(t *testing.T) {
	tbl := New(16)
	assert.Equal(t, defs.Err_t(-defs.EBADF), tbl.Remove(42))
}

func TestInsertFailsAtLimit(t *testing.T) {
	tbl := New(1)
	_, err := tbl.Insert(openTestFile(t))
	require.Zero(t, err)

	_, err = tbl.Insert(openTestFile(t))
	assert.Equal(t, defs.Err_t(-defs.ENOMEM), err)
}
