// Package entries describes the hotel records that sit under change control and
// applies field-level partial updates to them.
package entries

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hotelcms/hotelcms/internal/platform/httpx"
)

// EntryType names the kind of record under change control.
type EntryType string

// Entry types accepted by the change-approval workflow.
const (
	TypeHotel          EntryType = "hotel"
	TypeRoom           EntryType = "room"
	TypeEvent          EntryType = "event"
	TypeRoomOperations EntryType = "room_operations"
	TypeRoomSpace      EntryType = "room_space"
	TypeEventSpace     EntryType = "event_space"
	TypeFoodBeverage   EntryType = "food_beverage"
)

var (
	// ErrUnknownType is returned for entry types outside the closed set.
	ErrUnknownType = fmt.Errorf("entries: unknown entry type: %w", httpx.ErrValidation)
	// ErrInvalidID is returned when an entry id is missing or not positive.
	ErrInvalidID = fmt.Errorf("entries: entry id required: %w", httpx.ErrValidation)
	// ErrInvalidValue is returned when a field value does not match its kind.
	ErrInvalidValue = fmt.Errorf("entries: invalid field value: %w", httpx.ErrValidation)
	// ErrCorruptDiff is returned when a stored diff cannot be parsed as a record.
	ErrCorruptDiff = errors.New("entries: stored diff is not a readable record")
	// ErrNotFound indicates the live record does not exist.
	ErrNotFound = fmt.Errorf("entries: entry not found: %w", httpx.ErrNotFound)
)

// Valid reports whether t belongs to the closed set of entry types.
func (t EntryType) Valid() bool {
	_, ok := registry[t]
	return ok
}

func (t EntryType) String() string {
	return string(t)
}

// ParseEntryType normalises and validates raw.
func ParseEntryType(raw string) (EntryType, error) {
	t := EntryType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
	return t, nil
}

// Types lists every entry type in stable order.
func Types() []EntryType {
	types := make([]EntryType, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Entry identifies one record under change control.
type Entry struct {
	Type EntryType `json:"entry_type"`
	ID   int64     `json:"entry_id"`
}

// Validate checks the type is known and the id is set.
func (e Entry) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	if e.ID <= 0 {
		return ErrInvalidID
	}
	return nil
}

func (e Entry) String() string {
	return string(e.Type) + ":" + strconv.FormatInt(e.ID, 10)
}

// ParseEntry builds an Entry from path parameters.
func ParseEntry(rawType, rawID string) (Entry, error) {
	t, err := ParseEntryType(rawType)
	if err != nil {
		return Entry{}, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id <= 0 {
		return Entry{}, ErrInvalidID
	}
	return Entry{Type: t, ID: id}, nil
}
