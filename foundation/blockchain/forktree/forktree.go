// Package forktree tracks the candidate chains of slots and the validator
// votes on them. It decides which slots are confirmed and finalized and which
// chain a leader should build on.
package forktree

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
)

// Set of errors returned by the fork tree.
var (
	ErrUnknownSlot          = errors.New("unknown slot")
	ErrDuplicateSlot        = errors.New("slot already exists")
	ErrSlotDead             = errors.New("slot is dead")
	ErrSlotNotClosed        = errors.New("slot is not closed")
	ErrFinalized            = errors.New("slot is finalized")
	ErrUnknownVoter         = errors.New("voter is not a validator")
	ErrInvalidVoteSignature = errors.New("vote signature does not match voter")
	ErrVoteHashMismatch     = errors.New("vote hash does not match slot")
	ErrStaleVote            = errors.New("stale vote")
)

// Status is the lifecycle state of a slot.
type Status uint8

// Set of slot statuses.
const (
	Building Status = iota + 1
	Closed
	Confirmed
	Finalized
	Dead
)

var statusNames = map[Status]string{
	Building:  "building",
	Closed:    "closed",
	Confirmed: "confirmed",
	Finalized: "finalized",
	Dead:      "dead",
}

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	if name, exists := statusNames[s]; exists {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Update reports a slot that changed status.
type Update struct {
	Slot   uint64 `json:"slot"`
	Status Status `json:"status"`
}

// Config represents the consensus parameters of the tree.
type Config struct {
	Validators       *validator.Set
	FinalityDepth    uint64
	SupermajorityNum uint64
	SupermajorityDen uint64
}

// =============================================================================

type node struct {
	slot     uint64
	parent   *node
	children []*node
	status   Status
	hash     database.Hash
	seq      uint64
	weight   uint64
}

// Tree is the fork tree rooted at the latest finalized slot.
type Tree struct {
	mu            sync.RWMutex
	validators    *validator.Set
	finalityDepth uint64
	quorum        uint64
	nodes         map[uint64]*node
	root          *node
	votes         map[database.AccountID]database.SignedVote
	seq           uint64
}

// New constructs a tree whose root is the finalized slot with the specified
// last hash.
func New(cfg Config, rootSlot uint64, rootHash database.Hash) (*Tree, error) {
	if cfg.Validators == nil {
		return nil, errors.New("validator set required")
	}

	if cfg.SupermajorityDen == 0 || cfg.SupermajorityNum >= cfg.SupermajorityDen {
		return nil, fmt.Errorf("invalid supermajority %d/%d", cfg.SupermajorityNum, cfg.SupermajorityDen)
	}

	root := node{
		slot:   rootSlot,
		status: Finalized,
		hash:   rootHash,
	}

	t := Tree{
		validators:    cfg.Validators,
		finalityDepth: cfg.FinalityDepth,
		quorum:        cfg.Validators.Quorum(cfg.SupermajorityNum, cfg.SupermajorityDen),
		nodes:         map[uint64]*node{rootSlot: &root},
		root:          &root,
		votes:         make(map[database.AccountID]database.SignedVote),
		seq:           1,
	}

	return &t, nil
}

// Insert adds a slot being built or replayed on top of its parent.
func (t *Tree) Insert(slot uint64, parent uint64) ([]Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[slot]; exists {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrDuplicateSlot)
	}

	p, exists := t.nodes[parent]
	if !exists {
		return nil, fmt.Errorf("parent %d: %w", parent, ErrUnknownSlot)
	}

	if p.status == Dead {
		return nil, fmt.Errorf("parent %d: %w", parent, ErrSlotDead)
	}

	if slot <= parent {
		return nil, fmt.Errorf("slot %d is not after parent %d", slot, parent)
	}

	n := node{
		slot:   slot,
		parent: p,
		status: Building,
		seq:    t.seq,
	}
	t.seq++

	p.children = append(p.children, &n)
	t.nodes[slot] = &n

	return []Update{{Slot: slot, Status: Building}}, nil
}

// Close marks a building slot as complete with the hash of its last entry.
func (t *Tree) Close(slot uint64, hash database.Hash) ([]Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.find(slot)
	if err != nil {
		return nil, err
	}

	switch n.status {
	case Building:
	case Dead:
		return nil, fmt.Errorf("slot %d: %w", slot, ErrSlotDead)
	default:
		return nil, fmt.Errorf("slot %d is %s, not building", slot, n.status)
	}

	n.hash = hash
	n.status = Closed

	return []Update{{Slot: slot, Status: Closed}}, nil
}

// MarkDead abandons the slot and every slot built on it.
func (t *Tree) MarkDead(slot uint64) ([]Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.find(slot)
	if err != nil {
		return nil, err
	}

	switch n.status {
	case Finalized:
		return nil, fmt.Errorf("slot %d: %w", slot, ErrFinalized)
	case Confirmed:
		return nil, fmt.Errorf("slot %d is confirmed", slot)
	}

	var updates []Update
	walk(n, func(d *node) {
		if d.status != Dead {
			d.status = Dead
			updates = append(updates, Update{Slot: d.slot, Status: Dead})
		}
	})

	sortUpdates(updates)
	return updates, nil
}

// AddVote records the vote and promotes slots that reached confirmation or
// finality. Only the latest vote of each validator counts. A repeated vote is
// ignored and a vote for an earlier slot than the validator's current vote is
// rejected as stale.
func (t *Tree) AddVote(vote database.SignedVote) ([]Update, error) {
	voter, err := database.ToAccountID(string(vote.Voter))
	if err != nil || !t.validators.Contains(voter) {
		return nil, fmt.Errorf("%s: %w", vote.Voter, ErrUnknownVoter)
	}

	from, err := vote.FromAccount()
	if err != nil || from != voter {
		return nil, fmt.Errorf("%s: %w", vote.Voter, ErrInvalidVoteSignature)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if vote.Slot < t.root.slot {
		return nil, fmt.Errorf("slot %d below root %d: %w", vote.Slot, t.root.slot, ErrStaleVote)
	}

	n, err := t.find(vote.Slot)
	if err != nil {
		return nil, err
	}

	switch n.status {
	case Dead:
		return nil, fmt.Errorf("slot %d: %w", vote.Slot, ErrSlotDead)
	case Building:
		return nil, fmt.Errorf("slot %d: %w", vote.Slot, ErrSlotNotClosed)
	}

	if n.hash != vote.Hash {
		return nil, fmt.Errorf("slot %d: %w", vote.Slot, ErrVoteHashMismatch)
	}

	if prev, exists := t.votes[voter]; exists {
		switch {
		case prev.Slot == vote.Slot:
			return nil, nil
		case prev.Slot > vote.Slot:
			return nil, fmt.Errorf("voter %s already voted for slot %d: %w", voter, prev.Slot, ErrStaleVote)
		}
	}

	vote.Voter = voter
	t.votes[voter] = vote

	return t.promote(), nil
}

// =============================================================================

// BestTip returns the slot a new slot should be built on. Starting at the
// root it follows the child with the heaviest subtree, the earliest created
// child winning ties. Building and dead slots are never chosen.
func (t *Tree) BestTip() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for {
		var best *node
		for _, c := range n.children {
			if c.status == Dead || c.status == Building {
				continue
			}
			if best == nil || c.weight > best.weight || (c.weight == best.weight && c.seq < best.seq) {
				best = c
			}
		}

		if best == nil {
			return n.slot
		}
		n = best
	}
}

// Root returns the finalized slot the tree is rooted at and its hash.
func (t *Tree) Root() (uint64, database.Hash) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.root.slot, t.root.hash
}

// Status returns the status of a slot in the tree.
func (t *Tree) Status(slot uint64) (Status, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, err := t.find(slot)
	if err != nil {
		return 0, err
	}
	return n.status, nil
}

// Hash returns the last entry hash of a closed slot.
func (t *Tree) Hash(slot uint64) (database.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, err := t.find(slot)
	if err != nil {
		return database.Hash{}, err
	}
	return n.hash, nil
}

// Parent returns the parent slot. The root has no parent in the tree.
func (t *Tree) Parent(slot uint64) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, err := t.find(slot)
	if err != nil {
		return 0, err
	}

	if n.parent == nil {
		return 0, fmt.Errorf("slot %d is the root: %w", slot, ErrUnknownSlot)
	}
	return n.parent.slot, nil
}

// Weight returns the stake of the latest votes for the slot or any slot built
// on it.
func (t *Tree) Weight(slot uint64) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n, exists := t.nodes[slot]; exists {
		return n.weight
	}
	return 0
}

// Quorum returns the stake needed to confirm a slot.
func (t *Tree) Quorum() uint64 {
	return t.quorum
}

// Chain returns the slots from the root to the specified slot.
func (t *Tree) Chain(slot uint64) ([]uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, err := t.find(slot)
	if err != nil {
		return nil, err
	}

	var chain []uint64
	for ; n != nil; n = n.parent {
		chain = append(chain, n.slot)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return chain, nil
}

// Slots returns every slot in the tree in index order.
func (t *Tree) Slots() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]uint64, 0, len(t.nodes))
	for slot := range t.nodes {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// Votes returns the latest vote of every validator.
func (t *Tree) Votes() []database.SignedVote {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]database.SignedVote, 0, len(t.votes))
	for _, v := range t.votes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Voter < out[j].Voter })

	return out
}

// =============================================================================

// find returns the node for the slot. The caller must hold a lock.
func (t *Tree) find(slot uint64) (*node, error) {
	n, exists := t.nodes[slot]
	if !exists {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrUnknownSlot)
	}
	return n, nil
}

// promote recomputes the weights and applies confirmation and finality. The
// caller must hold the write lock.
func (t *Tree) promote() []Update {
	for _, n := range t.nodes {
		n.weight = 0
	}

	for voter, vote := range t.votes {
		stake := t.validators.Stake(voter)
		for n := t.nodes[vote.Slot]; n != nil; n = n.parent {
			n.weight += stake
		}
	}

	var updates []Update
	for _, n := range t.sorted() {
		if n.status != Closed || n.weight < t.quorum {
			continue
		}

		for a := n; a != nil && a.status == Closed; a = a.parent {
			a.status = Confirmed
			updates = append(updates, Update{Slot: a.slot, Status: Confirmed})
		}
	}

	var deepest *node
	for _, n := range t.sorted() {
		if n.status == Confirmed && confirmedDepth(n) >= t.finalityDepth {
			deepest = n
		}
	}

	if deepest != nil {
		updates = append(updates, t.finalize(deepest)...)
	}

	sortUpdates(updates)
	return updates
}

// finalize makes the slot the new root. Its ancestors up to the old root are
// finalized with it and every slot not built on it dies. Nodes and votes below
// the new root are dropped.
func (t *Tree) finalize(n *node) []Update {
	var updates []Update

	chain := make(map[*node]bool)
	for a := n; a != nil && a != t.root; a = a.parent {
		a.status = Finalized
		chain[a] = true
		updates = append(updates, Update{Slot: a.slot, Status: Finalized})
	}

	for slot, d := range t.nodes {
		if d == n || descends(d, n) {
			continue
		}

		if !chain[d] && d != t.root && d.status != Dead {
			d.status = Dead
			updates = append(updates, Update{Slot: d.slot, Status: Dead})
		}
		delete(t.nodes, slot)
	}

	n.parent = nil
	t.root = n

	for voter, vote := range t.votes {
		if vote.Slot < n.slot {
			delete(t.votes, voter)
		}
	}

	return updates
}

// sorted returns the nodes in slot order so promotion is deterministic.
func (t *Tree) sorted() []*node {
	out := make([]*node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].slot < out[j].slot })
	return out
}

// confirmedDepth returns the length of the longest chain of confirmed slots
// built on n.
func confirmedDepth(n *node) uint64 {
	var depth uint64
	for _, c := range n.children {
		if c.status != Confirmed {
			continue
		}
		if d := 1 + confirmedDepth(c); d > depth {
			depth = d
		}
	}
	return depth
}

// descends reports whether d is built on n.
func descends(d *node, n *node) bool {
	for a := d.parent; a != nil; a = a.parent {
		if a == n {
			return true
		}
	}
	return false
}

// walk calls fn for n and every node built on it.
func walk(n *node, fn func(*node)) {
	fn(n)
	for _, c := range n.children {
		walk(c, fn)
	}
}

func sortUpdates(updates []Update) {
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Slot < updates[j].Slot
	})
}
