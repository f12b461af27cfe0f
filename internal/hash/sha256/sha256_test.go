// Package sha256 includes tests for the cache key digest.
package sha256

import "testing"

// TestKeyDeterministic ensures repeated digests of the same key match.
func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	got := Key("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := Key("hello world"); again != got {
		t.Fatalf("expected deterministic digest, got %s vs %s", got, again)
	}
}

// TestKeyDistinct checks different keys produce different names.
func TestKeyDistinct(t *testing.T) {
	t.Parallel()

	if Key("https://a.example/x") == Key("https://a.example/y") {
		t.Fatal("expected distinct digests for distinct keys")
	}
}
