// Package chain implements the per-company hash chain over audit entries.
//
// record_hash = hex(SHA-256(canonical(entry) || prev_hash)), where prev_hash is
// the record hash of the previous entry in the same company chain or
// GenesisHash for the first one. canonical is a fixed-order JSON document in
// which the free-form snapshots are re-encoded with sorted keys, so the hash
// survives storage engines that reorder object keys.
package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"parity/internal/audit/models"
	id "parity/pkg/domain"
)

// Version is bumped whenever the canonical layout changes.
const Version = "1"

// GenesisHash is the prev_hash of the first entry in every company chain.
var GenesisHash = strings.Repeat("0", sha256.Size*2)

type canonicalEntry struct {
	Version        string          `json:"v"`
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	Sequence       int64           `json:"sequence"`
	UserID         string          `json:"user_id"`
	UserEmail      string          `json:"user_email"`
	UserRole       string          `json:"user_role"`
	Action         string          `json:"action"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	EntityName     string          `json:"entity_name"`
	OldValues      json.RawMessage `json:"old_values"`
	NewValues      json.RawMessage `json:"new_values"`
	Metadata       json.RawMessage `json:"metadata"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      string          `json:"created_at"`
}

// Canonical returns the deterministic serialization of e that feeds the hash.
// PrevHash and RecordHash are not part of it.
func Canonical(e models.Entry) ([]byte, error) {
	oldValues, err := normalize(e.OldValues)
	if err != nil {
		return nil, fmt.Errorf("old_values: %w", err)
	}
	newValues, err := normalize(e.NewValues)
	if err != nil {
		return nil, fmt.Errorf("new_values: %w", err)
	}
	metadata, err := normalize(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return json.Marshal(canonicalEntry{
		Version:        Version,
		ID:             e.ID.String(),
		CompanyID:      e.CompanyID.String(),
		Sequence:       e.Sequence,
		UserID:         e.Actor.UserID.String(),
		UserEmail:      e.Actor.Email,
		UserRole:       e.Actor.Role,
		Action:         string(e.Action),
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		EntityName:     e.EntityName,
		OldValues:      oldValues,
		NewValues:      newValues,
		Metadata:       metadata,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// normalize re-encodes raw JSON with sorted object keys and untouched number
// literals. Empty input becomes null.
func normalize(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode: trailing data")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

// Hash computes the record hash of e chained onto prevHash.
func Hash(e models.Entry, prevHash string) (string, error) {
	canonical, err := Canonical(e)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seal links e onto prevHash and stores the resulting record hash on it.
func Seal(e *models.Entry, prevHash string) error {
	e.PrevHash = prevHash
	hash, err := Hash(*e, prevHash)
	if err != nil {
		return err
	}
	e.RecordHash = hash
	return nil
}

// Reasons an entry fails verification.
const (
	ReasonSequenceGap      = "sequence_gap"
	ReasonPrevHashMismatch = "prev_hash_mismatch"
	ReasonHashMismatch     = "hash_mismatch"
	ReasonUnhashable       = "unhashable"
	ReasonCompanyMismatch  = "company_mismatch"
)

// Broken describes one entry that failed verification.
type Broken struct {
	Sequence int64      `json:"sequence"`
	EntryID  id.EntryID `json:"entry_id"`
	Reasons  []string   `json:"reasons"`
}

// Report is the outcome of verifying one company chain.
type Report struct {
	CompanyID id.CompanyID `json:"company_id"`
	Checked   int          `json:"checked"`
	Valid     bool         `json:"valid"`
	HeadHash  string       `json:"head_hash"`
	Broken    []Broken     `json:"broken,omitempty"`
}

// BrokenSequences lists the sequence numbers of every broken entry in order.
func (r Report) BrokenSequences() []int64 {
	out := make([]int64, 0, len(r.Broken))
	for _, b := range r.Broken {
		out = append(out, b.Sequence)
	}
	return out
}

// BrokenSet indexes the broken entries by sequence.
func (r Report) BrokenSet() map[int64]struct{} {
	out := make(map[int64]struct{}, len(r.Broken))
	for _, b := range r.Broken {
		out[b.Sequence] = struct{}{}
	}
	return out
}

// Verify recomputes the chain for companyID from genesis. entries must be the
// complete chain; order does not matter. The recomputed hash of each entry,
// not its stored one, is fed forward, so tampering with entry k reports k and
// every entry after it.
func Verify(companyID id.CompanyID, entries []models.Entry) Report {
	arena := make([]models.Entry, len(entries))
	copy(arena, entries)
	sort.SliceStable(arena, func(i, j int) bool { return arena[i].Sequence < arena[j].Sequence })

	report := Report{CompanyID: companyID, Checked: len(arena), HeadHash: GenesisHash}
	expectedPrev := GenesisHash
	expectedSeq := int64(1)
	for _, e := range arena {
		var reasons []string
		if e.CompanyID != companyID {
			reasons = append(reasons, ReasonCompanyMismatch)
		}
		if e.Sequence != expectedSeq {
			reasons = append(reasons, ReasonSequenceGap)
			expectedSeq = e.Sequence
		}
		if e.PrevHash != expectedPrev {
			reasons = append(reasons, ReasonPrevHashMismatch)
		}
		recomputed, err := Hash(e, expectedPrev)
		switch {
		case err != nil:
			reasons = append(reasons, ReasonUnhashable)
			// nothing after an unreadable entry can be trusted
			recomputed = ""
		case recomputed != e.RecordHash:
			reasons = append(reasons, ReasonHashMismatch)
		}
		if len(reasons) > 0 {
			report.Broken = append(report.Broken, Broken{Sequence: e.Sequence, EntryID: e.ID, Reasons: reasons})
		}
		expectedPrev = recomputed
		expectedSeq++
	}
	report.HeadHash = expectedPrev
	report.Valid = len(report.Broken) == 0
	return report
}
