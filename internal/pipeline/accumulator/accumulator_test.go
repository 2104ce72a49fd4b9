package accumulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
)

// record is a small JSON-serializable test payload.
type record struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func records(n int) []record {
	out := make([]record, n)
	for i := range out {
		out[i] = record{ID: i, Name: "record"}
	}
	return out
}

func spillFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	return files
}

func TestInMemory_RoundTrip(t *testing.T) {
	acc, err := New[record](Options{Strategy: memory.StrategyInMemory, Dir: t.TempDir()})
	require.NoError(t, err)
	defer acc.Close()

	require.NoError(t, acc.Append(records(100)...))
	assert.Equal(t, 100, acc.Len())
	assert.False(t, acc.Spilled())

	snap, err := acc.IntoSnapshot("test")
	require.NoError(t, err)
	assert.Equal(t, 100, snap.Len())
	assert.Equal(t, record{ID: 0, Name: "record"}, snap.Items()[0])
	assert.Equal(t, record{ID: 99, Name: "record"}, snap.Items()[99])
}

func TestSpillOnly_RoundTripAndCleanup(t *testing.T) {
	dir := t.TempDir()
	acc, err := New[record](Options{
		Strategy:       memory.StrategySpillOnly,
		Dir:            dir,
		Name:           "test",
		RecordsPerFile: 10,
	})
	require.NoError(t, err)
	defer acc.Close()

	require.NoError(t, acc.Append(records(35)...))
	assert.True(t, acc.Spilled())
	assert.Equal(t, 35, acc.Len())
	// 35 records at 10/file = 4 files.
	assert.Len(t, spillFiles(t, dir), 4)
	assert.Equal(t, 4, acc.SpillEvents())

	snap, err := acc.IntoSnapshot("test")
	require.NoError(t, err)
	require.Equal(t, 35, snap.Len())

	// Insertion order survives the spill round trip.
	for i, item := range snap.Items() {
		assert.Equal(t, i, item.ID)
	}

	// No residual spill files after finalization.
	assert.Empty(t, spillFiles(t, dir))
}

func TestHybrid_SpillsPastThreshold(t *testing.T) {
	dir := t.TempDir()
	acc, err := New[record](Options{
		Strategy:           memory.StrategyHybrid,
		Dir:                dir,
		SpillThreshold:     100 * 10, // 10 records at 100 bytes each
		EstimatedItemBytes: 100,
		RecordsPerFile:     1000,
	})
	require.NoError(t, err)
	defer acc.Close()

	require.NoError(t, acc.Append(records(5)...))
	assert.False(t, acc.Spilled())

	require.NoError(t, acc.Append(records(10)...))
	assert.True(t, acc.Spilled())
	assert.Equal(t, 15, acc.Len())

	snap, err := acc.IntoSnapshot("test")
	require.NoError(t, err)
	assert.Equal(t, 15, snap.Len())
	assert.Empty(t, spillFiles(t, dir))
}

func TestSpillOnly_CompressedSpill(t *testing.T) {
	dir := t.TempDir()
	acc, err := New[record](Options{
		Strategy:       memory.StrategySpillOnly,
		Dir:            dir,
		Compress:       true,
		RecordsPerFile: 50,
	})
	require.NoError(t, err)
	defer acc.Close()

	require.NoError(t, acc.Append(records(120)...))

	files := spillFiles(t, dir)
	require.NotEmpty(t, files)
	assert.Contains(t, files[0], ".jsonl.br")

	snap, err := acc.IntoSnapshot("test")
	require.NoError(t, err)
	assert.Equal(t, 120, snap.Len())
}

func TestAppendAfterFinalizeFails(t *testing.T) {
	acc, err := New[record](Options{Strategy: memory.StrategyInMemory, Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = acc.IntoSnapshot("test")
	require.NoError(t, err)

	assert.ErrorIs(t, acc.Append(record{}), ErrTerminal)
	_, err = acc.IntoSnapshot("again")
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestSpillFailureIsTerminal(t *testing.T) {
	dir := t.TempDir()
	acc, err := New[record](Options{
		Strategy:       memory.StrategySpillOnly,
		Dir:            filepath.Join(dir, "missing", "nested"),
		RecordsPerFile: 10,
	})
	require.NoError(t, err)
	defer acc.Close()

	err = acc.Append(records(5)...)
	require.Error(t, err)

	var spillErr *SpillError
	require.ErrorAs(t, err, &spillErr)
	assert.NotEmpty(t, spillErr.Path)

	// Terminal: all further operations fail with the same error.
	assert.Error(t, acc.Append(record{}))
	_, err = acc.IntoSnapshot("test")
	assert.Error(t, err)
}

func TestCloseRemovesSpillFiles(t *testing.T) {
	dir := t.TempDir()
	acc, err := New[record](Options{
		Strategy:       memory.StrategySpillOnly,
		Dir:            dir,
		RecordsPerFile: 10,
	})
	require.NoError(t, err)

	require.NoError(t, acc.Append(records(25)...))
	assert.NotEmpty(t, spillFiles(t, dir))

	require.NoError(t, acc.Close())
	assert.Empty(t, spillFiles(t, dir))
}

func TestEmergencyRefusesInMemory(t *testing.T) {
	probe := &fakeProbe{rss: 999}
	governor := memory.NewGovernor(1000, memory.WithProbe(probe))
	governor.Refresh()
	require.Equal(t, memory.PressureEmergency, governor.Level())

	_, err := New[record](Options{
		Strategy: memory.StrategyInMemory,
		Dir:      t.TempDir(),
		Governor: governor,
	})
	assert.ErrorIs(t, err, ErrInMemoryRefused)

	// Spill-capable strategies are still permitted.
	acc, err := New[record](Options{
		Strategy: memory.StrategySpillOnly,
		Dir:      t.TempDir(),
		Governor: governor,
	})
	require.NoError(t, err)
	acc.Close()
}

// fakeProbe reports a fixed RSS.
type fakeProbe struct {
	rss uint64
}

func (p *fakeProbe) CurrentRSSBytes() (uint64, bool) {
	return p.rss, true
}
