package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireSession_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxSessions: 1})
	now := time.Now()

	first := l.AcquireSession("p1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireSession("p1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}

	first.Permit.Release()
	third := l.AcquireSession("p1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquireSession_PrincipalsAreIndependent(t *testing.T) {
	l := New(Config{MaxSessions: 1})
	now := time.Now()

	if d := l.AcquireSession("p1", now); !d.Allowed {
		t.Fatalf("p1 should be allowed")
	}
	if d := l.AcquireSession("p2", now); !d.Allowed {
		t.Fatalf("p2 should be allowed")
	}
}

func TestAllowFrame_TokenBucketRefills(t *testing.T) {
	l := New(Config{FrameRPS: 1, FrameBurst: 2})
	now := time.Now()

	if d := l.AllowFrame("p1", now); !d.Allowed {
		t.Fatalf("first frame should pass")
	}
	if d := l.AllowFrame("p1", now); !d.Allowed {
		t.Fatalf("second frame should pass within burst")
	}

	denied := l.AllowFrame("p1", now)
	if denied.Allowed {
		t.Fatalf("third frame should be denied")
	}
	if denied.RetryAfter < 1 {
		t.Fatalf("retry-after should be at least 1, got %d", denied.RetryAfter)
	}

	later := now.Add(1500 * time.Millisecond)
	if d := l.AllowFrame("p1", later); !d.Allowed {
		t.Fatalf("frame should pass after refill")
	}
}

func TestAllowFrame_ZeroConfigDisablesBucket(t *testing.T) {
	l := New(Config{})
	now := time.Now()

	for i := 0; i < 50; i++ {
		if d := l.AllowFrame("p1", now); !d.Allowed {
			t.Fatalf("frame %d should pass with limits disabled", i)
		}
	}
}

func TestGetOrCreate_BoundsEntries(t *testing.T) {
	l := New(Config{MaxEntries: 2, EntryTTL: time.Minute})
	now := time.Now()

	l.AllowFrame("p1", now)
	l.AllowFrame("p2", now)
	l.AllowFrame("p3", now.Add(2*time.Minute))

	l.mu.Lock()
	n := len(l.m)
	l.mu.Unlock()
	if n > 2 {
		t.Fatalf("map should stay bounded, got %d entries", n)
	}
}

func TestPrincipalKeyFromAPIKey(t *testing.T) {
	a := PrincipalKeyFromAPIKey("secret-1")
	b := PrincipalKeyFromAPIKey("secret-1")
	c := PrincipalKeyFromAPIKey("secret-2")

	if a != b {
		t.Fatalf("same key should map to same principal")
	}
	if a == c {
		t.Fatalf("distinct keys should map to distinct principals")
	}
	if len(a) != 2+32 || a[:2] != "k_" {
		t.Fatalf("unexpected principal key format: %q", a)
	}
}
