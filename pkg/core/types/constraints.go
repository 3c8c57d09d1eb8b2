package types

import (
	"sort"
	"strings"
)

// ItemConstraints tracks what the user does not have and what they are
// using instead. Both collections only ever grow within a session: once an
// item is banned it is never suggested again, and a confirmed substitute
// is permanent.
type ItemConstraints struct {
	unavailable map[string]struct{}
	substitutes map[string]string // banned item -> confirmed substitute
	notes       []string          // free-text constraints folded into requests
}

// NewItemConstraints returns an empty constraint set.
func NewItemConstraints() *ItemConstraints {
	return &ItemConstraints{
		unavailable: make(map[string]struct{}),
		substitutes: make(map[string]string),
	}
}

func normalizeItem(item string) string {
	return strings.ToLower(strings.TrimSpace(item))
}

// MarkUnavailable permanently bans an item.
func (c *ItemConstraints) MarkUnavailable(item string) {
	key := normalizeItem(item)
	if key == "" {
		return
	}
	c.unavailable[key] = struct{}{}
}

// ConfirmSubstitute records that substitute replaces item, and bans item.
func (c *ItemConstraints) ConfirmSubstitute(item, substitute string) {
	key := normalizeItem(item)
	if key == "" {
		return
	}
	c.unavailable[key] = struct{}{}
	if sub := strings.TrimSpace(substitute); sub != "" {
		c.substitutes[key] = sub
	}
}

// IsUnavailable reports whether item is on the permanent ban list.
func (c *ItemConstraints) IsUnavailable(item string) bool {
	_, ok := c.unavailable[normalizeItem(item)]
	return ok
}

// SubstituteFor returns the confirmed substitute for item, if any.
func (c *ItemConstraints) SubstituteFor(item string) (string, bool) {
	sub, ok := c.substitutes[normalizeItem(item)]
	return sub, ok
}

// AddNote appends a free-text constraint (e.g. "user is working outdoors").
func (c *ItemConstraints) AddNote(note string) {
	if note = strings.TrimSpace(note); note != "" {
		c.notes = append(c.notes, note)
	}
}

// Banned returns the ban list, sorted for stable request payloads.
func (c *ItemConstraints) Banned() []string {
	out := make([]string, 0, len(c.unavailable))
	for item := range c.unavailable {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// Substitutes returns a copy of the confirmed-substitutes map.
func (c *ItemConstraints) Substitutes() map[string]string {
	out := make(map[string]string, len(c.substitutes))
	for k, v := range c.substitutes {
		out[k] = v
	}
	return out
}

// Text renders the constraints as one free-text clause for AI requests.
// Returns "" when there are no constraints.
func (c *ItemConstraints) Text() string {
	var parts []string
	if banned := c.Banned(); len(banned) > 0 {
		parts = append(parts, "The user does not have and cannot obtain: "+strings.Join(banned, ", ")+".")
	}
	if len(c.substitutes) > 0 {
		keys := make([]string, 0, len(c.substitutes))
		for k := range c.substitutes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var subs []string
		for _, k := range keys {
			subs = append(subs, c.substitutes[k]+" instead of "+k)
		}
		parts = append(parts, "Confirmed substitutions: "+strings.Join(subs, "; ")+".")
	}
	parts = append(parts, c.notes...)
	return strings.Join(parts, " ")
}
