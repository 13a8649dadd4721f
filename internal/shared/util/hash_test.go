package util

import "testing"

func TestHashString(t *testing.T) {
	id := "candidate:12345"
	got := HashString(id)
	if got != HashString(id) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestKeySegment(t *testing.T) {
	for in, want := range map[string]string{
		" cover/letter ": "cover_letter",
		"VPR.he.md":      "VPR.he.md",
		`a\b c`:          "a_b_c",
		"מכתב-מקדים.md":  "________-__________.md",
	} {
		got, err := KeySegment(in)
		if err != nil {
			t.Fatalf("KeySegment(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("KeySegment(%q) = %q, want %q", in, got, want)
		}
	}
	for _, in := range []string{"", " ", ".", "../etc", "a..b"} {
		if _, err := KeySegment(in); err != ErrInvalidKeySegment {
			t.Fatalf("KeySegment(%q): expected ErrInvalidKeySegment, got %v", in, err)
		}
	}
}
