package poh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"go.uber.org/ratelimit"
)

// Recorder wraps a Hasher so the tick goroutine and the goroutine producing
// entries can share the chain.
type Recorder struct {
	mu     sync.Mutex
	hasher Hasher
	ticks  atomic.Uint64
}

// NewRecorder constructs a recorder continuing from the specified hash.
func NewRecorder(start database.Hash) *Recorder {
	return &Recorder{
		hasher: Hasher{hash: start},
	}
}

// Reset restarts the chain from the specified hash. This happens at the start
// of every slot the node leads, using the parent slot's last hash.
func (r *Recorder) Reset(start database.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hasher = Hasher{hash: start}
	r.ticks.Store(0)
}

// Hash returns the current head of the chain.
func (r *Recorder) Hash() database.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hasher.hash
}

// Ticks returns the number of ticks performed since the last reset.
func (r *Recorder) Ticks() uint64 {
	return r.ticks.Load()
}

// Tick advances the chain by the specified number of hashes.
func (r *Recorder) Tick(hashes uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range hashes {
		r.hasher.Tick()
	}
	r.ticks.Add(1)
}

// Record mixes the digest of the transactions into the chain and returns the
// entry that carries them. With no transactions a tick entry is produced.
func (r *Recorder) Record(txs []database.SignedTx) (database.Entry, error) {
	if len(txs) == 0 {
		return r.TickEntry(), nil
	}

	digest, err := BatchDigest(txs)
	if err != nil {
		return database.Entry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n, hash := r.hasher.Record(digest)

	entry := database.Entry{
		NumHashes:    n,
		Hash:         hash,
		Transactions: txs,
	}

	return entry, nil
}

// TickEntry closes the current entry without transactions.
func (r *Recorder) TickEntry() database.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, hash := r.hasher.TickEntry()

	return database.Entry{
		NumHashes: n,
		Hash:      hash,
	}
}

// Run advances the chain by hashesPerTick hashes once every tickDuration until
// the context is cancelled. It is meant to run on its own goroutine so
// transaction execution never delays the clock.
func (r *Recorder) Run(ctx context.Context, tickDuration time.Duration, hashesPerTick uint64, onTick func(ticks uint64)) {
	rl := ratelimit.New(1, ratelimit.Per(tickDuration), ratelimit.WithoutSlack)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rl.Take()
		r.Tick(hashesPerTick)

		if onTick != nil {
			onTick(r.ticks.Load())
		}
	}
}
