// Package meta keeps cosmetic titles and notes for ledger records.
// Nothing here is authoritative: entries may be missing or stale and callers must render without them.
package meta

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindGoal      Kind = "goal"
	KindChallenge Kind = "challenge"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindGoal, KindChallenge:
		return k, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", s)
	}
}

// Entry is the display metadata of one record.
type Entry struct {
	Title     string    `json:"title,omitempty" bson:"title,omitempty"`
	Notes     string    `json:"notes,omitempty" bson:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

func (e Entry) IsZero() bool {
	return e.Title == "" && e.Notes == ""
}

// Merge overlays the non-empty fields of patch onto e.
func (e Entry) Merge(patch Entry) Entry {
	if patch.Title != "" {
		e.Title = patch.Title
	}
	if patch.Notes != "" {
		e.Notes = patch.Notes
	}
	return e
}

// Scope names the namespace of one ledger deployment, e.g. goalpledge.meta:8453:0xabc...
func Scope(network, contract string) string {
	return fmt.Sprintf("goalpledge.meta:%s:%s", network, strings.ToLower(contract))
}

func recordKey(kind Kind, id uint64) string {
	return string(kind) + ":" + strconv.FormatUint(id, 10)
}

// Backend persists entries. Get reports ok=false for a missing entry.
type Backend interface {
	Get(ctx context.Context, scope, key string) (Entry, bool, error)
	Put(ctx context.Context, scope, key string, e Entry) error
}
