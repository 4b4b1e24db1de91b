package devserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/telemetry"
)

// Snapshot is one immutable view of the rules, swapped atomically on reload.
// The ETag is a content hash, so identical rules produce identical tags
// across restarts.
type Snapshot struct {
	ETag         string                      `json:"etag"`
	Environments map[string]evaluation.Flags `json:"environments"`
	UpdatedAt    time.Time                   `json:"updatedAt"`
}

// Holder publishes the current snapshot to concurrent readers.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder seeded with the given snapshot.
func NewHolder(snap *Snapshot) *Holder {
	h := &Holder{}
	h.Update(snap)
	return h
}

// Load returns the current snapshot. Never nil after NewHolder.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Update swaps in a new snapshot.
func (h *Holder) Update(snap *Snapshot) {
	h.current.Store(snap)
	telemetry.SnapshotEnvironments.Set(float64(len(snap.Environments)))
}

// Build converts parsed rules into a snapshot. encoding/json sorts map keys,
// so the hash is stable regardless of yaml ordering.
func Build(rules *Rules) *Snapshot {
	envs := make(map[string]evaluation.Flags, len(rules.Environments))
	for envKey, env := range rules.Environments {
		flags := make(evaluation.Flags, len(env.Flags))
		for k, v := range env.Flags {
			flags[k] = v
		}
		envs[envKey] = flags
	}

	blob, _ := json.Marshal(envs)
	sum := sha256.Sum256(blob)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`

	return &Snapshot{ETag: etag, Environments: envs, UpdatedAt: time.Now().UTC()}
}
