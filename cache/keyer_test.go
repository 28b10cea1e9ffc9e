package cache

import (
	"strings"
	"testing"
)

func TestKeyer_DeterministicForMaps(t *testing.T) {
	keyer := NewDefaultKeyer()

	key1, err := keyer.Key("users", map[string]any{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key("users", map[string]any{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key1 != key2 {
		t.Errorf("keys differ for equal maps: %s vs %s", key1, key2)
	}
}

func TestKeyer_NestedMapsAndStructs(t *testing.T) {
	keyer := NewDefaultKeyer()

	type query struct {
		Region string `json:"region"`
		Limit  int    `json:"limit"`
	}

	key1, err := keyer.Key("search", map[string]any{"q": query{Region: "eu", Limit: 10}})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key("search", map[string]any{"q": map[string]any{"limit": 10, "region": "eu"}})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key1 != key2 {
		t.Errorf("struct and equivalent map should hash equally: %s vs %s", key1, key2)
	}
}

func TestKeyer_ArrayOrderPreserved(t *testing.T) {
	keyer := NewDefaultKeyer()

	key1, _ := keyer.Key("items", []any{1, 2, 3})
	key2, _ := keyer.Key("items", []any{3, 2, 1})
	if key1 == key2 {
		t.Errorf("keys should differ for different array order: %s", key1)
	}
}

func TestKeyer_NamespaceSeparatesKeys(t *testing.T) {
	keyer := NewDefaultKeyer()

	key1, _ := keyer.Key("a", map[string]any{"q": "x"})
	key2, _ := keyer.Key("b", map[string]any{"q": "x"})
	if key1 == key2 {
		t.Errorf("keys should differ across namespaces: %s", key1)
	}
}

func TestKeyer_KeyFormat(t *testing.T) {
	keyer := NewDefaultKeyer()

	key, err := keyer.Key("profile", map[string]any{"id": 7})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if !strings.HasPrefix(key, "profile:") {
		t.Fatalf("key %q lacks namespace prefix", key)
	}
	hash := strings.TrimPrefix(key, "profile:")
	if len(hash) != 16 {
		t.Errorf("hash length = %d, want 16", len(hash))
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("hash %q is not lowercase hex", hash)
		}
	}
}

func TestKeyer_NilVersusEmpty(t *testing.T) {
	keyer := NewDefaultKeyer()

	keyNil, err := keyer.Key("t", nil)
	if err != nil {
		t.Fatalf("Key(nil) error = %v", err)
	}
	keyEmpty, err := keyer.Key("t", map[string]any{})
	if err != nil {
		t.Fatalf("Key(empty) error = %v", err)
	}
	if keyNil == keyEmpty {
		t.Error("nil and empty map should produce different keys")
	}
}

func TestKeyer_InvalidNamespace(t *testing.T) {
	if _, err := NewDefaultKeyer().Key(" ", nil); err == nil {
		t.Fatal("expected error for blank namespace")
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr error
	}{
		{"user:1", nil},
		{"", ErrInvalidKey},
		{"   ", ErrInvalidKey},
		{"a\nb", ErrInvalidKey},
		{strings.Repeat("k", MaxKeyLength+1), ErrKeyTooLong},
	}
	for _, tt := range tests {
		if err := ValidateKey(tt.key); err != tt.wantErr {
			t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.wantErr)
		}
	}
}
