// Package nonce manages the single outbound transaction counter the
// submitter allocates from. It is a single 64-bit atomic, not a mutex: the
// opportunity loop only ever needs get-and-increment, read, rollback, and a
// periodic resync against the chain (spec §3, §4.8 step 8).
package nonce

import "sync/atomic"

// Manager is a lock-free nonce counter.
type Manager struct {
	next uint64
}

// New builds a Manager starting at the given chain-read nonce.
func New(start uint64) *Manager {
	return &Manager{next: start}
}

// GetAndIncrement returns the current value and advances the counter,
// mirroring eth_getTransactionCount's "next nonce to use" semantics without
// a round-trip per submission.
func (m *Manager) GetAndIncrement() uint64 {
	return atomic.AddUint64(&m.next, 1) - 1
}

// Current reads the counter without mutating it.
func (m *Manager) Current() uint64 {
	return atomic.LoadUint64(&m.next)
}

// Rollback decrements the counter by one, used when a submission built from
// a just-allocated nonce fails before broadcast (§4.8.2, §7). It is only
// safe to call once per failed GetAndIncrement; concurrent rollbacks racing
// unrelated increments are not ordered against each other beyond the atomic
// decrement itself, matching the loop's single-submitter-at-a-time usage.
func (m *Manager) Rollback() {
	atomic.AddUint64(&m.next, ^uint64(0))
}

// ForceSet resynchronizes the counter from an authoritative chain read,
// recovering from drift caused by lost transactions or an external signer
// (§4.8 step 8, §7 "nonce drift").
func (m *Manager) ForceSet(chainNonce uint64) {
	atomic.StoreUint64(&m.next, chainNonce)
}
