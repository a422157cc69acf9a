package chaincore

import (
	"strings"
	"testing"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	data, err := CanonicalJSON(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mid":   3,
	})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	got := string(data)
	wantOrder := []string{"alpha", "mid", "zebra"}
	lastIdx := -1
	for _, key := range wantOrder {
		idx := strings.Index(got, key)
		if idx == -1 {
			t.Fatalf("key %q missing from %s", key, got)
		}
		if idx < lastIdx {
			t.Fatalf("key %q out of order in %s", key, got)
		}
		lastIdx = idx
	}
}

func TestCanonicalJSONNoWhitespace(t *testing.T) {
	data, err := CanonicalJSON(map[string]any{"a": 1, "b": "x"})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if strings.ContainsAny(string(data), " \n\t") {
		t.Fatalf("canonical JSON contains whitespace: %q", data)
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	fields := map[string]any{"sender": "abc", "amount": 1.5, "fee": nil}
	a, err := CanonicalJSON(fields)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	b, err := CanonicalJSON(fields)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("encoding not deterministic: %q vs %q", a, b)
	}
}
