package idtree

import (
	"math/rand/v2"
	"path/filepath"
	"testing"
)

func openBench(b *testing.B) *Tree {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.idt")

	tree, err := Open(path, WithSyncMode(SyncBytes), WithSyncBytes(1024*1024))
	if err != nil {
		b.Fatalf("Failed to open tree: %v", err)
	}
	b.Cleanup(func() { tree.Close() })
	return tree
}

func BenchmarkInsert(b *testing.B) {
	tree := openBench(b)
	rng := rand.New(rand.NewPCG(1, 2))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tree.Insert(KeyFromUint64(rng.Uint64())); err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
	}
}

func BenchmarkInsertSequential(b *testing.B) {
	tree := openBench(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tree.Insert(KeyFromUint64(uint64(i))); err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
	}
}

func BenchmarkInsertMany(b *testing.B) {
	tree := openBench(b)
	rng := rand.New(rand.NewPCG(3, 4))

	// Batches of 100 keys
	batchSize := 100
	keys := make([]Key, batchSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range keys {
			keys[j] = KeyFromUint64(rng.Uint64())
		}
		if _, err := tree.InsertMany(keys); err != nil {
			b.Fatalf("InsertMany failed: %v", err)
		}
	}
}

func BenchmarkContains(b *testing.B) {
	tree := openBench(b)

	// Pre-populate with 10k keys
	numKeys := 10000
	batch := tree.NewBatch(1000)
	for i := 0; i < numKeys; i++ {
		if err := batch.Add(KeyFromUint64(uint64(i))); err != nil {
			b.Fatalf("Failed to populate tree: %v", err)
		}
	}
	if _, err := batch.Commit(); err != nil {
		b.Fatalf("Failed to populate tree: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := KeyFromUint64(uint64((i * 7) % numKeys))
		if _, err := tree.Contains(key); err != nil {
			b.Errorf("Contains failed: %v", err)
		}
	}
}

func BenchmarkIterate(b *testing.B) {
	tree := openBench(b)

	numKeys := 10000
	keys := make([]Key, numKeys)
	for i := range keys {
		keys[i] = KeyFromUint64(uint64(i))
	}
	if _, err := tree.InsertMany(keys); err != nil {
		b.Fatalf("Failed to populate tree: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		for _, err := range tree.All() {
			if err != nil {
				b.Fatalf("iteration failed: %v", err)
			}
			n++
		}
		if n != numKeys {
			b.Fatalf("expected %d keys, got %d", numKeys, n)
		}
	}
}
