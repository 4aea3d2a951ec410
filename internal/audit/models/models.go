package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

// Action is the kind of compliance-relevant activity an entry records.
type Action string

const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionView        Action = "view"
	ActionExport      Action = "export"
	ActionLogin       Action = "login"
	ActionLogout      Action = "logout"
	ActionRequestInfo Action = "request_info"
)

// IsValid reports whether a is one of the recorded actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionView, ActionExport,
		ActionLogin, ActionLogout, ActionRequestInfo:
		return true
	}
	return false
}

// ParseAction validates an action name from a filter or draft.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported audit action %q", s)
	}
	return a, nil
}

// Actor is the identity stamped on an entry at write time.
type Actor struct {
	UserID id.UserID `json:"user_id"`
	Email  string    `json:"user_email"`
	Role   string    `json:"user_role"`
}

// Draft is the caller-supplied part of an entry. The recorder assigns the
// id, sequence, timestamp and hashes.
type Draft struct {
	CompanyID  id.CompanyID
	Actor      Actor
	Action     Action
	EntityType string
	EntityID   string
	EntityName string
	OldValues  json.RawMessage
	NewValues  json.RawMessage
	Metadata   json.RawMessage
}

// Validate checks the fields every entry needs.
func (d Draft) Validate() error {
	if d.CompanyID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "company_id is required")
	}
	if d.Actor.UserID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor user_id is required")
	}
	if !d.Action.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported audit action %q", d.Action)
	}
	if strings.TrimSpace(d.EntityType) == "" {
		return dErrors.New(dErrors.CodeValidation, "entity_type is required")
	}
	for name, raw := range map[string]json.RawMessage{
		"old_values": d.OldValues,
		"new_values": d.NewValues,
		"metadata":   d.Metadata,
	} {
		if len(raw) > 0 && !json.Valid(raw) {
			return dErrors.Newf(dErrors.CodeValidation, "%s must be valid JSON", name)
		}
	}
	return nil
}

// Entry is an immutable, hash-chained audit record.
type Entry struct {
	ID             id.EntryID      `json:"id"`
	CompanyID      id.CompanyID    `json:"company_id"`
	Sequence       int64           `json:"sequence"`
	Actor          Actor           `json:"actor"`
	Action         Action          `json:"action"`
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id,omitempty"`
	EntityName     string          `json:"entity_name,omitempty"`
	OldValues      json.RawMessage `json:"old_values,omitempty"`
	NewValues      json.RawMessage `json:"new_values,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
	PrevHash       string          `json:"prev_hash"`
	RecordHash     string          `json:"record_hash"`
}

// SameAction reports whether d describes the same logical action as e. Used to
// tell a safe replay from a reused idempotency key.
func (e Entry) SameAction(d Draft) bool {
	return e.CompanyID == d.CompanyID &&
		e.Actor.UserID == d.Actor.UserID &&
		e.Action == d.Action &&
		e.EntityType == d.EntityType &&
		e.EntityID == d.EntityID
}

// Clone returns a deep copy so stores never hand out shared byte slices.
func (e Entry) Clone() Entry {
	e.OldValues = bytes.Clone(e.OldValues)
	e.NewValues = bytes.Clone(e.NewValues)
	e.Metadata = bytes.Clone(e.Metadata)
	return e
}

// Head is the latest committed position of a company chain. A zero Head means
// the chain is empty.
type Head struct {
	Sequence int64
	Hash     string
}

// Filter narrows a query or export. Zero values match everything.
type Filter struct {
	Actions    []Action
	EntityType string
	UserEmail  string    // case-insensitive substring
	From       time.Time // inclusive
	To         time.Time // exclusive
}

// Validate rejects an inverted time range.
func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return dErrors.New(dErrors.CodeValidation, "from must be before to")
	}
	return nil
}

// Matches applies the filter to a single entry.
func (f Filter) Matches(e Entry) bool {
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.EntityType != "" && f.EntityType != e.EntityType {
		return false
	}
	if f.UserEmail != "" && !strings.Contains(strings.ToLower(e.Actor.Email), strings.ToLower(f.UserEmail)) {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page is offset/limit pagination.
type Page struct {
	Offset int
	Limit  int
}

// Normalize applies the default limit and rejects out-of-range values.
func (p Page) Normalize() (Page, error) {
	if p.Offset < 0 {
		return p, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
	}
	if p.Limit < 0 {
		return p, dErrors.New(dErrors.CodeValidation, "limit must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p, nil
}

// Less orders entries newest first, ties broken by id descending.
func Less(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

// Values marshals a snapshot for OldValues/NewValues/Metadata. A nil input
// yields a nil message.
func Values(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode audit values")
	}
	return b, nil
}
