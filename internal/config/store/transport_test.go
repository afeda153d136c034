package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestTransportConfigDefaults(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")

	st, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg, err := st.GetTransportConfig(context.Background())
	if err != nil {
		t.Fatalf("get transport config: %v", err)
	}
	if cfg.Binding != "loopback" {
		t.Fatalf("expected default binding loopback, got %s", cfg.Binding)
	}
	if cfg.Port != 0 {
		t.Fatalf("expected unset port, got %d", cfg.Port)
	}
}

func TestTransportConfigPersistsAcrossStoreReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store1, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := TransportConfig{
		Port:           8780,
		Binding:        "lan",
		AdvertisedURL:  "http://10.0.0.5:8780",
		AllowedOrigins: []string{"http://localhost:3000"},
	}
	if err := store1.SaveTransportConfig(ctx, cfg); err != nil {
		t.Fatalf("save transport config: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("close store before reopen: %v", err)
	}

	store2, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { store2.Close() })

	loaded, err := store2.GetTransportConfig(ctx)
	if err != nil {
		t.Fatalf("get transport config: %v", err)
	}
	if loaded.Port != 8780 {
		t.Fatalf("expected port 8780, got %d", loaded.Port)
	}
	if loaded.Binding != "lan" {
		t.Fatalf("expected binding lan, got %s", loaded.Binding)
	}
	if loaded.AdvertisedURL != "http://10.0.0.5:8780" {
		t.Fatalf("expected advertised url to persist, got %s", loaded.AdvertisedURL)
	}
	if len(loaded.AllowedOrigins) != 1 || loaded.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("expected allowed_origins [http://localhost:3000], got %v", loaded.AllowedOrigins)
	}
}
