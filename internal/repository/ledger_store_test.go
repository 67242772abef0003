package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/index-mirror/internal/domain"
	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
)

const header = "name,url,ext,progress,final_file\n"

func newStore(t *testing.T) (*LedgerStore, string) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "ledger.csv")
	store, err := NewLedgerStore(file)
	require.NoError(t, err)
	return store, file
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

func TestLedgerStore_LoadMissingCreatesHeader(t *testing.T) {
	store, file := newStore(t)

	records, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, header, string(data))
}

func TestLedgerStore_LoadEmptyFile(t *testing.T) {
	store, err := NewLedgerStore(writeFile(t, ""))
	require.NoError(t, err)

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestLedgerStore_CrashRecovery(t *testing.T) {
	file := writeFile(t, header+
		"a,http://x/a,jpg,done,/out/a.jpg\n"+
		"b,http://x/b,png,in_progress,/out/b.png\n"+
		"c,http://x/c,gif,missing,\n")

	store, err := NewLedgerStore(file)
	require.NoError(t, err)

	records, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, domain.StatusDone, records[0].Status)
	assert.Equal(t, "/out/a.jpg", records[0].FinalFile)
	assert.Equal(t, domain.StatusMissing, records[1].Status)
	assert.Empty(t, records[1].FinalFile)

	require.NoError(t, store.Save(context.Background()))

	reloaded, err := NewLedgerStore(file)
	require.NoError(t, err)
	again, err := reloaded.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, records, again)
}

func TestLedgerStore_RoundTrip(t *testing.T) {
	store, file := newStore(t)
	ctx := context.Background()
	outDir := t.TempDir()
	final := filepath.Join(outDir, "a.jpg")

	inserted, err := store.Upsert(ctx, domain.Descriptor{Name: "a", URL: "http://x/a", Ext: "jpg"})
	require.NoError(t, err)
	require.True(t, inserted)

	claimed, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, store.Finalize(ctx, claimed.URL, final))

	reloaded, err := NewLedgerStore(file)
	require.NoError(t, err)
	records, err := reloaded.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, []domain.Record{{
		Name:      "a",
		URL:       "http://x/a",
		Ext:       "jpg",
		Status:    domain.StatusDone,
		FinalFile: final,
	}}, records)
}

func TestLedgerStore_ClaimOrderAndExhaustion(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, n := range []string{"a", "b", "c"} {
		_, err := store.Upsert(ctx, domain.Descriptor{Name: n, URL: "http://x/" + n, Ext: "txt"})
		require.NoError(t, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		rec, err := store.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, want, rec.Name)
		assert.Equal(t, domain.StatusInProgress, rec.Status)
	}

	rec, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = store.Upsert(ctx, domain.Descriptor{Name: "d", URL: "http://x/d", Ext: "txt"})
	require.NoError(t, err)
	rec, err = store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "d", rec.Name)
}

func TestLedgerStore_ClaimReturnsCopy(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, domain.Descriptor{Name: "a", URL: "http://x/a", Ext: "txt"})
	require.NoError(t, err)

	rec, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	rec.Name = "mutated"

	records, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", records[0].Name)
}

func TestLedgerStore_ConcurrentClaimExclusivity(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	const total = 500

	for i := 0; i < total; i++ {
		_, err := store.Upsert(ctx, domain.Descriptor{
			Name: fmt.Sprintf("r%d", i),
			URL:  fmt.Sprintf("http://x/%d", i),
			Ext:  "bin",
		})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, err := store.ClaimNext(ctx)
				if err != nil || rec == nil {
					return
				}
				mu.Lock()
				seen[rec.URL]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for url, n := range seen {
		assert.Equal(t, 1, n, "record %s claimed %d times", url, n)
	}

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, counts.InProgress)
}

func TestLedgerStore_UpsertDuplicateKeepsFirst(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	first, err := store.Upsert(ctx, domain.Descriptor{Name: "cat", URL: "http://s/1.jpg", Ext: "jpg"})
	require.NoError(t, err)
	second, err := store.Upsert(ctx, domain.Descriptor{Name: "kitten", URL: "http://s/1.jpg", Ext: "jpeg"})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	records, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cat", records[0].Name)
	assert.Equal(t, "jpg", records[0].Ext)
}

func TestLedgerStore_FinalizePreconditions(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	outDir := t.TempDir()

	_, err := store.Upsert(ctx, domain.Descriptor{Name: "a", URL: "http://x/a", Ext: "txt"})
	require.NoError(t, err)

	err = store.Finalize(ctx, "http://x/a", filepath.Join(outDir, "a.txt"))
	assert.ErrorIs(t, err, errpkg.ErrNotClaimed)

	_, err = store.ClaimNext(ctx)
	require.NoError(t, err)

	err = store.Finalize(ctx, "http://x/a", "")
	assert.ErrorIs(t, err, errpkg.ErrEmptyFinalFile)

	err = store.Finalize(ctx, "http://x/a", filepath.Join(outDir, "gone", "a.txt"))
	assert.ErrorIs(t, err, errpkg.ErrOutputDirMissing)

	err = store.Finalize(ctx, "http://x/unknown", filepath.Join(outDir, "u.txt"))
	assert.ErrorIs(t, err, errpkg.ErrRecordNotFound)

	records, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, records[0].Status)

	require.NoError(t, store.Finalize(ctx, "http://x/a", filepath.Join(outDir, "a.txt")))
	err = store.Finalize(ctx, "http://x/a", filepath.Join(outDir, "a.txt"))
	assert.ErrorIs(t, err, errpkg.ErrNotClaimed)
}

func TestLedgerStore_FinalizePersistFailureKeepsClaim(t *testing.T) {
	dbDir := filepath.Join(t.TempDir(), "db")
	require.NoError(t, os.MkdirAll(dbDir, 0o755))
	store, err := NewLedgerStore(filepath.Join(dbDir, "ledger.csv"))
	require.NoError(t, err)

	ctx := context.Background()
	outDir := t.TempDir()

	_, err = store.Upsert(ctx, domain.Descriptor{Name: "a", URL: "http://x/a", Ext: "txt"})
	require.NoError(t, err)
	_, err = store.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dbDir))

	err = store.Finalize(ctx, "http://x/a", filepath.Join(outDir, "a.txt"))
	require.Error(t, err)

	records, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, records[0].Status)
	assert.Empty(t, records[0].FinalFile)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Counts{InProgress: 1, Total: 1}, counts)

	require.NoError(t, os.MkdirAll(dbDir, 0o755))
	require.NoError(t, store.Finalize(ctx, "http://x/a", filepath.Join(outDir, "a.txt")))
}

func TestLedgerStore_PersistNeverWritesInProgress(t *testing.T) {
	store, file := newStore(t)
	ctx := context.Background()
	outDir := t.TempDir()

	for _, n := range []string{"a", "b"} {
		_, err := store.Upsert(ctx, domain.Descriptor{Name: n, URL: "http://x/" + n, Ext: "txt"})
		require.NoError(t, err)
	}

	a, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	_, err = store.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Finalize(ctx, a.URL, filepath.Join(outDir, "a.txt")))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "in_progress")
	assert.Contains(t, string(data), "b,http://x/b,txt,missing,\n")
}

func TestLedgerStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown status", header + "a,http://x/a,jpg,pending,\n"},
		{"wrong header", "title,link\nfoo,bar\n"},
		{"short row", header + "a,http://x/a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLedgerStore(writeFile(t, tt.content))
			assert.ErrorIs(t, err, errpkg.ErrLedgerCorrupt)
		})
	}
}

func TestLedgerStore_LoadDropsDuplicateRows(t *testing.T) {
	file := writeFile(t, header+
		"a,http://x/a,jpg,done,/out/a.jpg\n"+
		"a2,http://x/a,jpg,missing,\n")

	store, err := NewLedgerStore(file)
	require.NoError(t, err)

	records, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Name)
}

func TestLedgerStore_CancelledContext(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ClaimNext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
