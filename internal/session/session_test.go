package session

import (
	"testing"
	"time"
)

func testStore() *Store {
	s := NewStore(Config{AbsoluteTTL: time.Hour, IdleTTL: 10 * time.Minute, CSRFTTL: time.Minute})
	return s
}

func TestCreate_RequiresMatchingCSRFToken(t *testing.T) {
	s := testStore()
	defer s.Close()

	token := s.IssueCSRF("https://example.test")
	sess, err := s.Create(token, "https://example.test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Token == "" {
		t.Fatalf("expected a non-empty session token")
	}
}

func TestCreate_RejectsUnknownCSRFToken(t *testing.T) {
	s := testStore()
	defer s.Close()

	if _, err := s.Create("not-a-real-token", "https://example.test"); err != ErrCSRFMismatch {
		t.Fatalf("err=%v, want ErrCSRFMismatch", err)
	}
}

func TestCreate_RejectsOriginMismatch(t *testing.T) {
	s := testStore()
	defer s.Close()

	token := s.IssueCSRF("https://example.test")
	if _, err := s.Create(token, "https://evil.test"); err != ErrCSRFMismatch {
		t.Fatalf("err=%v, want ErrCSRFMismatch", err)
	}
}

func TestCSRFToken_IsSingleUse(t *testing.T) {
	s := testStore()
	defer s.Close()

	token := s.IssueCSRF("https://example.test")
	if _, err := s.Create(token, "https://example.test"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := s.Create(token, "https://example.test"); err != ErrCSRFMismatch {
		t.Fatalf("second Create err=%v, want ErrCSRFMismatch (token must not be reusable)", err)
	}
}

func TestLookup_SlidesLastActivity(t *testing.T) {
	s := testStore()
	defer s.Close()

	token := s.IssueCSRF("https://example.test")
	sess, _ := s.Create(token, "https://example.test")

	frozen := sess.LastActivityAt
	s.now = func() time.Time { return frozen.Add(time.Minute) }

	looked, ok := s.Lookup(sess.Token)
	if !ok {
		t.Fatalf("Lookup: expected session to be found")
	}
	if !looked.LastActivityAt.After(frozen) {
		t.Fatalf("LastActivityAt did not slide forward on Lookup")
	}
}

func TestLookup_IdleTimeoutExpiresSession(t *testing.T) {
	s := testStore()
	defer s.Close()

	token := s.IssueCSRF("https://example.test")
	sess, _ := s.Create(token, "https://example.test")

	s.now = func() time.Time { return sess.LastActivityAt.Add(11 * time.Minute) }

	if _, ok := s.Lookup(sess.Token); ok {
		t.Fatalf("expected session to be expired by idle timeout")
	}
}

func TestLookup_AbsoluteTimeoutExpiresSessionEvenIfTouched(t *testing.T) {
	s := testStore()
	defer s.Close()

	token := s.IssueCSRF("https://example.test")
	sess, _ := s.Create(token, "https://example.test")

	// Well past AbsoluteTTL (1h), even though idle-wise this looks fresh.
	past := sess.CreatedAt.Add(2 * time.Hour)
	s.now = func() time.Time { return past }

	if _, ok := s.Lookup(sess.Token); ok {
		t.Fatalf("expected session to be expired by absolute TTL")
	}
}

func TestExpire_SweepsExpiredSessionsAndChallenges(t *testing.T) {
	s := testStore()
	defer s.Close()

	token := s.IssueCSRF("https://example.test")
	sess, _ := s.Create(token, "https://example.test")
	pending := s.IssueCSRF("https://example.test")

	s.now = func() time.Time { return sess.CreatedAt.Add(2 * time.Hour) }
	s.Expire()

	if _, ok := s.Lookup(sess.Token); ok {
		t.Fatalf("expected session to have been swept by Expire")
	}
	s.mu.Lock()
	_, stillPending := s.csrf[pending]
	s.mu.Unlock()
	if stillPending {
		t.Fatalf("expected expired CSRF challenge to have been swept by Expire")
	}
}
