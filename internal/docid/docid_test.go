package docid

import (
	"strings"
	"testing"
)

func TestNewFormat(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(id, Prefix) {
		t.Errorf("id %q missing prefix %q", id, Prefix)
	}
	if len(id) != len(Prefix)+randomLen {
		t.Errorf("id %q has length %d, want %d", id, len(id), len(Prefix)+randomLen)
	}
	for _, c := range id[len(Prefix):] {
		if !strings.ContainsRune(alphabet, c) {
			t.Errorf("id %q contains unexpected char %q", id, c)
		}
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := New()
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
