package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrcoleman/dam/internal/config"
	"github.com/jrcoleman/dam/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), 32)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDispatch_PutGet(t *testing.T) {
	st := openTestStore(t)
	appCfg := config.Default()

	file := filepath.Join(t.TempDir(), "hello.go")
	if err := os.WriteFile(file, []byte("package main"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := dispatch("put", []string{"hello", file}, st, appCfg); err != nil {
		t.Fatalf("put: %v", err)
	}

	snip, found, err := st.GetByName("hello")
	if err != nil || !found {
		t.Fatalf("GetByName = (found=%v, %v)", found, err)
	}
	if string(snip.Content) != "package main" {
		t.Fatalf("content = %q", snip.Content)
	}
}

func TestDispatch_TagAndByTag(t *testing.T) {
	st := openTestStore(t)
	appCfg := config.Default()

	file := filepath.Join(t.TempDir(), "a.py")
	os.WriteFile(file, []byte("print(1)"), 0o644)
	if err := dispatch("put", []string{"a", file}, st, appCfg); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := dispatch("tag", []string{"a", "util"}, st, appCfg); err != nil {
		t.Fatalf("tag: %v", err)
	}

	snips, err := st.ByTag("util")
	if err != nil || len(snips) != 1 || snips[0].Name != "a" {
		t.Fatalf("ByTag(util) = %+v, %v", snips, err)
	}

	if err := dispatch("untag", []string{"a", "util"}, st, appCfg); err != nil {
		t.Fatalf("untag: %v", err)
	}
	snips, err = st.ByTag("util")
	if err != nil || len(snips) != 0 {
		t.Fatalf("ByTag(util) after untag = %+v, %v", snips, err)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	st := openTestStore(t)
	appCfg := config.Default()
	if err := dispatch("bogus", nil, st, appCfg); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestDispatch_CheckpointRunsWithoutError(t *testing.T) {
	st := openTestStore(t)
	appCfg := config.Default()
	if err := dispatch("checkpoint", nil, st, appCfg); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
}
