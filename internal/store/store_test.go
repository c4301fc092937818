package store

import (
	"sort"
	"testing"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	snip := NewSnippet("hello", "go", []byte("package main"), []string{"demo"})
	if err := st.Put(snip); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := st.Get(snip.ID)
	if err != nil || !found {
		t.Fatalf("Get = (found=%v, %v)", found, err)
	}
	if got.Name != "hello" || string(got.Content) != "package main" {
		t.Fatalf("got %+v", got)
	}

	byName, found, err := st.GetByName("hello")
	if err != nil || !found || byName.ID != snip.ID {
		t.Fatalf("GetByName = (%+v, %v, %v)", byName, found, err)
	}
}

func TestStore_PutOverwriteUpdatesNameIndex(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	snip := NewSnippet("v1", "go", []byte("a"), nil)
	if err := st.Put(snip); err != nil {
		t.Fatalf("Put: %v", err)
	}

	snip.Name = "v2"
	snip.Content = []byte("b")
	if err := st.Put(snip); err != nil {
		t.Fatalf("Put (rename): %v", err)
	}

	if _, found, err := st.GetByName("v1"); err != nil || found {
		t.Fatalf("old name should no longer resolve: found=%v err=%v", found, err)
	}
	byName, found, err := st.GetByName("v2")
	if err != nil || !found || string(byName.Content) != "b" {
		t.Fatalf("GetByName(v2) = (%+v, %v, %v)", byName, found, err)
	}
	if st.Count() != 1 {
		t.Fatalf("Count = %d, want 1 (overwrite, not a new row)", st.Count())
	}
}

func TestStore_TagUntagByTag(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	a := NewSnippet("a", "go", []byte("a"), nil)
	b := NewSnippet("b", "python", []byte("b"), nil)
	st.Put(a)
	st.Put(b)

	if err := st.Tag(a.ID, "util"); err != nil {
		t.Fatalf("Tag a: %v", err)
	}
	if err := st.Tag(b.ID, "util"); err != nil {
		t.Fatalf("Tag b: %v", err)
	}
	if err := st.Tag(a.ID, "favorite"); err != nil {
		t.Fatalf("Tag a favorite: %v", err)
	}

	got, err := st.ByTag("util")
	if err != nil {
		t.Fatalf("ByTag: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ByTag(util) returned %d snippets, want 2", len(got))
	}
	names := []string{got[0].Name, got[1].Name}
	sort.Strings(names)
	if names[0] != "a" || names[1] != "b" {
		t.Fatalf("ByTag(util) names = %v", names)
	}

	if err := st.Untag(a.ID, "util"); err != nil {
		t.Fatalf("Untag: %v", err)
	}
	got, err = st.ByTag("util")
	if err != nil {
		t.Fatalf("ByTag after untag: %v", err)
	}
	if len(got) != 1 || got[0].Name != "b" {
		t.Fatalf("ByTag(util) after untag = %+v, want [b]", got)
	}

	favs, err := st.ByTag("favorite")
	if err != nil || len(favs) != 1 || favs[0].Name != "a" {
		t.Fatalf("ByTag(favorite) = %+v, %v", favs, err)
	}
}

func TestStore_DeleteRemovesAllIndexEntries(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	snip := NewSnippet("gone", "go", []byte("x"), nil)
	st.Put(snip)
	st.Tag(snip.ID, "temp")

	removed, err := st.Delete(snip.ID)
	if err != nil || !removed {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", removed, err)
	}

	if _, found, _ := st.Get(snip.ID); found {
		t.Fatalf("snippet still present after delete")
	}
	if _, found, _ := st.GetByName("gone"); found {
		t.Fatalf("name index entry still present after delete")
	}
	tagged, err := st.ByTag("temp")
	if err != nil || len(tagged) != 0 {
		t.Fatalf("ByTag(temp) after delete = %+v, %v", tagged, err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snip := NewSnippet("persisted", "rust", []byte("fn main() {}"), []string{"sys"})
	if err := st.Put(snip); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Tag(snip.ID, "sys"); err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(dir, 64)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, found, err := st2.Get(snip.ID)
	if err != nil || !found || string(got.Content) != "fn main() {}" {
		t.Fatalf("Get after reopen = (%+v, %v, %v)", got, found, err)
	}
	if st2.Count() != 1 {
		t.Fatalf("Count after reopen = %d, want 1", st2.Count())
	}
}
