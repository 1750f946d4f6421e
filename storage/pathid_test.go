package storage

import "testing"

// TestLocalIdentifier covers the mapping rules: scheme kept,
// "://" collapsed, drive letters lower-cased, backslashes normalized,
// repeated leading slashes collapsed, empty input rejected, and
// unscheme'd input defaulting to "file".
func TestLocalIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"s3://bucket/key", "s3/bucket/key"},
		{"file:///var/data", "file/var/data"},
		{"/local/path", "file/local/path"},
		{`C:\Users\x`, "file/c/Users/x"},
		{`file:///C:/Users/x`, "file/c/Users/x"},
		{"gcs://////many-slashes/key", "gcs/many-slashes/key"},
	}
	for _, c := range cases {
		got, err := LocalIdentifier(c.in)
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("%q: got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLocalIdentifierEmptyFails(t *testing.T) {
	if _, err := LocalIdentifier(""); err != ErrEmptyLocation {
		t.Fatalf("expected ErrEmptyLocation, got %v", err)
	}
}

// TestLocalIdentifierIdempotent checks that repeated calls with the
// same input always produce the same output.
func TestLocalIdentifierIdempotent(t *testing.T) {
	for i := 0; i < 5; i++ {
		got, err := LocalIdentifier("s3://bucket/key")
		if err != nil || got != "s3/bucket/key" {
			t.Fatalf("call %d: got %q, %v", i, got, err)
		}
	}
}
