package engine

import "testing"

func TestPage_HeaderRoundTrip(t *testing.T) {
	p := NewPage(7)
	p.SetParentPageID(3)
	p.SetPageLSN(42)
	p.SetNumKeys(5)
	p.SetNodeKind(NodeLeaf)

	if p.ID() != 7 {
		t.Fatalf("ID = %d, want 7", p.ID())
	}
	if p.ParentPageID() != 3 {
		t.Fatalf("ParentPageID = %d, want 3", p.ParentPageID())
	}
	if p.PageLSN() != 42 {
		t.Fatalf("PageLSN = %d, want 42", p.PageLSN())
	}
	if p.NumKeys() != 5 {
		t.Fatalf("NumKeys = %d, want 5", p.NumKeys())
	}
	if p.NodeKind() != NodeLeaf {
		t.Fatalf("NodeKind = %v, want leaf", p.NodeKind())
	}
}

func TestPage_ChecksumDetectsCorruption(t *testing.T) {
	p := NewPage(1)
	copy(p.Data(), []byte("hello world"))
	p.RecomputeChecksum()

	if !p.VerifyChecksum() {
		t.Fatalf("checksum should verify immediately after RecomputeChecksum")
	}

	p.Data()[0] ^= 0xFF
	if p.VerifyChecksum() {
		t.Fatalf("checksum should fail to verify after corrupting the data region")
	}
}

func TestPage_WrapRoundTrip(t *testing.T) {
	p := NewPage(9)
	p.SetNodeKind(NodeInternal)
	p.SetNumKeys(2)
	copy(p.Data(), []byte("payload"))

	p2 := WrapPage(p.Bytes())
	if p2.ID() != 9 || p2.NodeKind() != NodeInternal || p2.NumKeys() != 2 {
		t.Fatalf("wrapped page header mismatch: %+v", p2)
	}
	if string(p2.Data()[:7]) != "payload" {
		t.Fatalf("wrapped page data mismatch: %q", p2.Data()[:7])
	}
}
