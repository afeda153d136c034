package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadClearSession(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	st, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if _, err := st.LoadSession(ctx); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError before save, got %v", err)
	}

	sess := SavedSession{
		SessionID: "abc12345",
		RelayURL:  "http://127.0.0.1:8780",
		JoinURL:   "http://127.0.0.1:8780/join/abc12345",
		ExpiresAt: time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339),
	}
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := st.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded.SessionID != sess.SessionID {
		t.Fatalf("expected session id %s, got %s", sess.SessionID, loaded.SessionID)
	}
	if loaded.JoinURL != sess.JoinURL {
		t.Fatalf("expected join url %s, got %s", sess.JoinURL, loaded.JoinURL)
	}
	if loaded.CreatedAt == "" {
		t.Fatal("expected created_at to be filled in")
	}

	if err := st.ClearSession(ctx); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if _, err := st.LoadSession(ctx); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError after clear, got %v", err)
	}

	// Clearing again must stay silent.
	if err := st.ClearSession(ctx); err != nil {
		t.Fatalf("second clear session: %v", err)
	}
}

func TestSaveSessionReplacesPrevious(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	st, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.SaveSession(ctx, SavedSession{SessionID: "11111111"}); err != nil {
		t.Fatalf("save first session: %v", err)
	}
	if err := st.SaveSession(ctx, SavedSession{SessionID: "22222222"}); err != nil {
		t.Fatalf("save second session: %v", err)
	}

	loaded, err := st.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded.SessionID != "22222222" {
		t.Fatalf("expected latest session, got %s", loaded.SessionID)
	}
}

func TestSaveSessionRejectsEmptyID(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")

	st, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.SaveSession(context.Background(), SavedSession{SessionID: "  "}); err == nil {
		t.Fatal("expected empty session id to be rejected")
	}
}

func TestSavedSessionPersistsAcrossStoreReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store1, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sess := SavedSession{
		SessionID: "deadbeef",
		RelayURL:  "http://10.0.0.5:8780",
		JoinURL:   "http://10.0.0.5:8780/join/deadbeef",
	}
	if err := store1.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("close store before reopen: %v", err)
	}

	store2, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { store2.Close() })

	loaded, err := store2.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load session after reopen: %v", err)
	}
	if loaded.SessionID != "deadbeef" {
		t.Fatalf("expected deadbeef, got %s", loaded.SessionID)
	}
	if loaded.RelayURL != "http://10.0.0.5:8780" {
		t.Fatalf("expected relay url to persist, got %s", loaded.RelayURL)
	}
}

func TestPruneExpiredSessions(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	// Expired record: pruned.
	if err := st.SaveSession(ctx, SavedSession{
		SessionID: "abc12345",
		ExpiresAt: now.Add(-time.Minute).Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("save expired session: %v", err)
	}
	removed, err := st.PruneExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned row, got %d", removed)
	}
	if _, err := st.LoadSession(ctx); !IsNotFound(err) {
		t.Fatalf("expected session gone after prune, got %v", err)
	}

	// Live record: kept.
	if err := st.SaveSession(ctx, SavedSession{
		SessionID: "def67890",
		ExpiresAt: now.Add(time.Hour).Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("save live session: %v", err)
	}
	removed, err = st.PruneExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("prune live: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected no pruned rows, got %d", removed)
	}

	// Record without expiry: kept.
	if err := st.SaveSession(ctx, SavedSession{SessionID: "00000000"}); err != nil {
		t.Fatalf("save session without expiry: %v", err)
	}
	removed, err = st.PruneExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("prune no-expiry: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected record without expiry to be kept, got %d pruned", removed)
	}
}
