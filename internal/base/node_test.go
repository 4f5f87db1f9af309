package base

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(vals ...uint64) []Key {
	out := make([]Key, len(vals))
	for i, v := range vals {
		out[i] = KeyFrom64(v)
	}
	return out
}

func TestLeafInsertScenario(t *testing.T) {
	t.Parallel()

	leaf := &LeafNode{}
	for _, v := range []uint64{5, 3, 8, 1} {
		require.Nil(t, leaf.Insert(KeyFrom64(v)))
	}

	assert.Equal(t, uint32(4), leaf.Count)
	assert.Equal(t, keys(1, 3, 5, 8), leaf.Keys[:4])
}

func TestLeafInsertStaysSorted(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	leaf := &LeafNode{}
	seen := map[uint64]bool{}

	for leaf.Count < LeafCapacity {
		v := rng.Uint64()
		if seen[v] {
			continue
		}
		seen[v] = true
		require.Nil(t, leaf.Insert(KeyFrom64(v)))

		used := leaf.Used()
		require.True(t, sort.SliceIsSorted(used, func(i, j int) bool {
			return used[i].Less(used[j])
		}), "leaf unsorted after %d inserts", leaf.Count)
	}
}

func TestLeafSplitAscending(t *testing.T) {
	t.Parallel()

	leaf := &LeafNode{}
	var split *LeafSplit
	splits := 0
	for i := uint64(1); i <= 256; i++ {
		if s := leaf.Insert(KeyFrom64(i)); s != nil {
			split = s
			splits++
		}
	}

	require.Equal(t, 1, splits)
	require.NotNil(t, split)
	assert.Equal(t, uint32(128), leaf.Count)
	assert.Equal(t, uint32(128), split.Right.Count)
	assert.Equal(t, leaf.Keys[leaf.Count-1], split.Separator)
	assert.Equal(t, KeyFrom64(128), split.Separator)
	assert.Equal(t, KeyFrom64(129), split.Right.Keys[0])
	assert.Equal(t, KeyFrom64(256), split.Right.Keys[127])
}

func TestLeafSplitInsertsIntoLeftHalf(t *testing.T) {
	t.Parallel()

	leaf := &LeafNode{}
	for i := uint64(0); i < LeafCapacity; i++ {
		leaf.Insert(KeyFrom64(i*2 + 10))
	}
	split := leaf.Insert(KeyFrom64(1))
	require.NotNil(t, split)

	assert.Equal(t, KeyFrom64(1), leaf.Keys[0])
	assert.Equal(t, uint32(128), leaf.Count)
	assert.Equal(t, uint32(128), split.Right.Count)
	assert.True(t, split.Separator.Less(split.Right.Keys[0]))
}

func TestLeafEncodeDecode(t *testing.T) {
	t.Parallel()

	leaf := &LeafNode{}
	for _, v := range []uint64{9, 2, 4} {
		leaf.Insert(KeyFrom64(v))
	}
	// Stale tail slots must not leak into the encoding.
	leaf.Keys[10] = KeyFrom64(99)

	got, err := DecodeLeaf(NodePage(leaf))
	require.NoError(t, err)
	assert.Equal(t, keys(2, 4, 9), got.Used())
	assert.Equal(t, Key{}, got.Keys[10])

	node, err := DecodeNode(NodePage(leaf))
	require.NoError(t, err)
	assert.IsType(t, &LeafNode{}, node)
	assert.Equal(t, 3, node.NumKeys())
}

func TestDecodeRejectsCorruptPages(t *testing.T) {
	t.Parallel()

	p := &Page{}
	p.Data[0] = 7
	_, err := DecodeNode(p)
	assert.ErrorIs(t, err, ErrUnknownTag)

	p = &Page{}
	p.Data[0] = LeafNodeTag
	p.writeU32(4, LeafCapacity+1)
	_, err = DecodeLeaf(p)
	assert.ErrorIs(t, err, ErrCorruptPage)

	p = &Page{}
	p.Data[0] = InternalNodeTag
	p.writeU32(4, 1)
	_, err = DecodeInternal(p)
	assert.ErrorIs(t, err, ErrCorruptPage, "null children")

	_, err = DecodeInternal(NodePage(&LeafNode{}))
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestInternalInsertInPlace(t *testing.T) {
	t.Parallel()

	n := NewRoot(KeyFrom64(10), 1, 2)
	require.Nil(t, n.Insert(KeyFrom64(20), 3))
	require.Nil(t, n.Insert(KeyFrom64(5), 4))

	assert.Equal(t, keys(5, 10, 20), n.UsedKeys())
	assert.Equal(t, []PageOffset{1, 4, 2, 3}, n.UsedChildren())

	got, err := DecodeInternal(NodePage(n))
	require.NoError(t, err)
	assert.Equal(t, n.UsedKeys(), got.UsedKeys())
	assert.Equal(t, n.UsedChildren(), got.UsedChildren())
}

func fullInternal() *InternalNode {
	n := &InternalNode{Count: InternalKeyCapacity}
	for i := 0; i < InternalKeyCapacity; i++ {
		n.Keys[i] = KeyFrom64(uint64(i+1) * 10)
	}
	for i := 0; i < InternalChildCapacity; i++ {
		n.Children[i] = PageOffset(i + 100)
	}
	return n
}

func TestInternalSplit(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		key  uint64
	}{
		{"append", 100000},
		{"front", 1},
		{"middle", 1015},
	} {
		t.Run(tc.name, func(t *testing.T) {
			n := fullInternal()
			before := map[PageOffset]bool{}
			for _, c := range n.UsedChildren() {
				before[c] = true
			}
			const newChild PageOffset = 9999

			split := n.Insert(KeyFrom64(tc.key), newChild)
			require.NotNil(t, split)

			assert.Equal(t, uint32(102), n.Count)
			assert.Equal(t, uint32(101), split.Right.Count)
			assert.Equal(t, n.Count-1, split.Right.Count)

			// The separator sits strictly between the halves.
			assert.True(t, n.Keys[n.Count-1].Less(split.Separator))
			assert.True(t, split.Separator.Less(split.Right.Keys[0]))

			// 204 keys in total: 102 + 1 + 101.
			all := append(append(append([]Key{}, n.UsedKeys()...), split.Separator), split.Right.UsedKeys()...)
			require.Len(t, all, InternalKeyCapacity+1)
			assert.True(t, sort.SliceIsSorted(all, func(i, j int) bool { return all[i].Less(all[j]) }))

			// Every child offset survives exactly once.
			children := append(append([]PageOffset{}, n.UsedChildren()...), split.Right.UsedChildren()...)
			require.Len(t, children, InternalChildCapacity+1)
			seen := map[PageOffset]int{}
			for _, c := range children {
				seen[c]++
			}
			assert.Equal(t, 1, seen[newChild])
			for c := range before {
				assert.Equal(t, 1, seen[c], "child %d", c)
			}
		})
	}
}

func TestInternalSplitChildPlacement(t *testing.T) {
	t.Parallel()

	n := fullInternal()
	// Key 15 lands between 10 and 20; its child goes right of it.
	split := n.Insert(KeyFrom64(15), 9999)
	require.NotNil(t, split)

	assert.Equal(t, KeyFrom64(15), n.Keys[1])
	assert.Equal(t, PageOffset(101), n.Children[1])
	assert.Equal(t, PageOffset(9999), n.Children[2])
	assert.Equal(t, PageOffset(102), n.Children[3])
}
