package entries

import (
	"context"
	"strings"
)

// ExistencePolicy decides which entry types are checked against the live
// tables before an assignment or pending change is recorded.
type ExistencePolicy struct {
	checked map[EntryType]struct{}
}

// NewExistencePolicy checks the given types. Unknown types are ignored.
func NewExistencePolicy(types ...EntryType) ExistencePolicy {
	checked := make(map[EntryType]struct{}, len(types))
	for _, t := range types {
		if t.Valid() {
			checked[t] = struct{}{}
		}
	}
	return ExistencePolicy{checked: checked}
}

// ParseExistencePolicy reads a comma separated list such as "hotel,room".
// The literal "all" checks every type and "none" or "" checks nothing.
func ParseExistencePolicy(raw string) (ExistencePolicy, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "none":
		return NewExistencePolicy(), nil
	case "all":
		return NewExistencePolicy(Types()...), nil
	}
	var types []EntryType
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseEntryType(part)
		if err != nil {
			return ExistencePolicy{}, err
		}
		types = append(types, t)
	}
	return NewExistencePolicy(types...), nil
}

// Requires reports whether t is existence-checked.
func (p ExistencePolicy) Requires(t EntryType) bool {
	_, ok := p.checked[t]
	return ok
}

// Checker enforces an ExistencePolicy against the live tables.
type Checker struct {
	q      Querier
	policy ExistencePolicy
}

// NewChecker constructs a Checker.
func NewChecker(q Querier, policy ExistencePolicy) *Checker {
	return &Checker{q: q, policy: policy}
}

// Ensure returns ErrNotFound when entry is policy-checked and missing.
func (c *Checker) Ensure(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if c == nil || !c.policy.Requires(entry.Type) {
		return nil
	}
	ok, err := Exists(ctx, c.q, entry)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
