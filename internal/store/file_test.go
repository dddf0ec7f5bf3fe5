package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "games.txt")
	st := NewFileSessionStore(path, nil)

	loaded, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	if loaded.Len() != 0 {
		t.Fatalf("expected empty store")
	}

	sessions := NewSessions(
		Session{Username: "alice", History: []string{"e4", "e5"}},
		Session{Username: "bob", History: []string{"d4"}},
	)
	if err := st.Save(ctx, sessions); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(raw) != "alice,e4 e5 \nbob,d4 \n" {
		t.Fatalf("unexpected file contents %q", raw)
	}

	again, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(again.All(), sessions.All()) {
		t.Fatalf("round trip mismatch: %+v vs %+v", again.All(), sessions.All())
	}
}

func TestFileSessionStoreSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "games.txt")
	if err := os.WriteFile(path, []byte("old,e4 \nstale,d4 \n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st := NewFileSessionStore(path, nil)
	if err := st.Save(ctx, NewSessions(Session{Username: "new", History: []string{"c4"}})); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "new,c4 \n" {
		t.Fatalf("expected full rewrite, got %q", raw)
	}
}

func TestFileSessionStoreLoadError(t *testing.T) {
	dir := t.TempDir()
	st := NewFileSessionStore(dir, nil)
	if _, err := st.Load(context.Background()); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore reading a directory, got %v", err)
	}
}

func TestFileCursor(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "last_seen_id.txt")
	cur := NewFileCursor(path, 100)

	id, err := cur.Read(ctx)
	if err != nil || id != 100 {
		t.Fatalf("expected seed 100, got %d (%v)", id, err)
	}
	if err := cur.Write(ctx, 1234567890123); err != nil {
		t.Fatalf("write: %v", err)
	}
	id, err = cur.Read(ctx)
	if err != nil || id != 1234567890123 {
		t.Fatalf("expected written id, got %d (%v)", id, err)
	}

	if err := os.WriteFile(path, []byte(" 42\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if id, _ := cur.Read(ctx); id != 42 {
		t.Fatalf("expected whitespace to be trimmed, got %d", id)
	}

	if err := os.WriteFile(path, []byte("not-a-number"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := cur.Read(ctx); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore for garbage cursor, got %v", err)
	}
}
