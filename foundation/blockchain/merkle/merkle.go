// Package merkle provides a merkle tree over hashable values. The root of a
// tree built from a batch of transactions is the digest mixed into the PoH
// chain for that batch.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrEmpty is returned when a tree is requested for no values.
var ErrEmpty = errors.New("cannot construct tree with no content")

// ErrNotFound is returned when a value is not a leaf of the tree.
var ErrNotFound = errors.New("unable to find data in tree")

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. Levels are stored bottom up,
// levels[0] holds the leaf hashes and the last level holds the root. A level
// with an odd number of nodes pairs its last node with itself.
type Tree[T Hashable[T]] struct {
	MerkleRoot   []byte
	values       []T
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree from the specified values.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	if len(values) == 0 {
		return nil, ErrEmpty
	}

	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	leafs := make([][]byte, len(values))
	for i, value := range values {
		h, err := value.Hash()
		if err != nil {
			return nil, err
		}
		leafs[i] = h
	}

	t.values = append([]T(nil), values...)
	t.levels = [][][]byte{leafs}

	for level := leafs; len(level) > 1; {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := i + 1
			if right == len(level) {
				right = i
			}
			next = append(next, t.join(level[i], level[right]))
		}

		t.levels = append(t.levels, next)
		level = next
	}

	// A single value is paired with itself so the root is never a bare leaf.
	if len(leafs) == 1 {
		root := t.join(leafs[0], leafs[0])
		t.levels = append(t.levels, [][]byte{root})
	}

	t.MerkleRoot = t.levels[len(t.levels)-1][0]

	return &t, nil
}

// Proof returns the sibling hashes from the leaf to the root for the
// specified value and, for each, whether the sibling is concatenated first.
func (t *Tree[T]) Proof(data T) ([][]byte, []bool, error) {
	idx := -1
	for i, v := range t.values {
		if v.Equals(data) {
			idx = i
			break
		}
	}

	if idx == -1 {
		return nil, nil, ErrNotFound
	}

	var proof [][]byte
	var siblingFirst []bool

	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}

		proof = append(proof, level[sibling])
		siblingFirst = append(siblingFirst, sibling < idx)
		idx /= 2
	}

	return proof, siblingFirst, nil
}

// VerifyProof recomputes the root from a leaf hash and its proof.
func VerifyProof(root []byte, leaf []byte, proof [][]byte, siblingFirst []bool) bool {
	if len(proof) != len(siblingFirst) {
		return false
	}

	h := leaf
	for i, p := range proof {
		sh := sha256.New()
		if siblingFirst[i] {
			sh.Write(p)
			sh.Write(h)
		} else {
			sh.Write(h)
			sh.Write(p)
		}
		h = sh.Sum(nil)
	}

	return bytes.Equal(h, root)
}

// Values returns the values the tree was built from.
func (t *Tree[T]) Values() []T {
	return append([]T(nil), t.values...)
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// join hashes two child hashes into their parent.
func (t *Tree[T]) join(left []byte, right []byte) []byte {
	h := t.hashStrategy()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
