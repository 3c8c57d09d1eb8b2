package types

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestItemConstraintsBasics(t *testing.T) {
	c := NewItemConstraints()
	c.MarkUnavailable("  Basin Wrench ")
	if !c.IsUnavailable("basin wrench") {
		t.Fatal("normalized lookup failed")
	}
	c.ConfirmSubstitute("Plumber's Tape", "electrical tape")
	if !c.IsUnavailable("plumber's tape") {
		t.Fatal("confirming a substitute must ban the original")
	}
	if sub, ok := c.SubstituteFor("PLUMBER'S TAPE"); !ok || sub != "electrical tape" {
		t.Fatalf("substitute = %q, %v", sub, ok)
	}

	c.MarkUnavailable("   ")
	if len(c.Banned()) != 2 {
		t.Fatalf("banned = %v", c.Banned())
	}

	text := c.Text()
	if !strings.Contains(text, "basin wrench") || !strings.Contains(text, "electrical tape instead of plumber's tape") {
		t.Fatalf("text = %q", text)
	}
}

// Once an item is banned it stays banned, and once a substitute is
// confirmed the item always resolves to one, no matter what happens to
// the set afterwards.
func TestItemConstraintsBanIsPermanent(t *testing.T) {
	item := rapid.SampledFrom([]string{
		"basin wrench", "Basin Wrench", " pipe cutter ", "plumber's tape",
		"torx driver", "spudger", "bucket", "",
	})
	sub := rapid.SampledFrom([]string{"channel-lock pliers", "electrical tape", "vice grips", ""})

	rapid.Check(t, func(t *rapid.T) {
		c := NewItemConstraints()
		everBanned := make(map[string]struct{})
		everSubbed := make(map[string]struct{})

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			name := item.Draw(t, "item")
			key := strings.ToLower(strings.TrimSpace(name))
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				c.MarkUnavailable(name)
				if key != "" {
					everBanned[key] = struct{}{}
				}
			case 1:
				s := sub.Draw(t, "sub")
				c.ConfirmSubstitute(name, s)
				if key != "" {
					everBanned[key] = struct{}{}
					if s != "" {
						everSubbed[key] = struct{}{}
					}
				}
			case 2:
				c.AddNote("note " + name)
			}

			for banned := range everBanned {
				if !c.IsUnavailable(banned) {
					t.Fatalf("ban on %q did not survive", banned)
				}
			}
			for subbed := range everSubbed {
				if got, ok := c.SubstituteFor(subbed); !ok || got == "" {
					t.Fatalf("substitute for %q vanished", subbed)
				}
			}
			if got := c.Banned(); len(got) != len(everBanned) {
				t.Fatalf("banned list = %v, want %d entries", got, len(everBanned))
			}
		}
	})
}
