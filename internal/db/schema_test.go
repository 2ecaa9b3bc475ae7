package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_Sites(t *testing.T) {
	idx, err := NewIndex("bookmarkd:sites:__default__:idx").
		Prefix("bookmarkd:sites:__default__:").
		Text("title").
		Tag("url").
		VectorHNSW("__vector", "vector", 1536, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(idx.Fields) != 3 {
		t.Fatalf("fields count = %d, want 3", len(idx.Fields))
	}
	v := idx.Fields[2]
	if v.Alias != "vector" || v.VectorAlgo != VectorHNSW || v.VectorDim != 1536 {
		t.Errorf("unexpected vector field: %+v", v)
	}

	s := idx.String()
	for _, want := range []string{"ON HASH", "PREFIX bookmarkd:sites:__default__:", "__vector AS vector VECTOR HNSW"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestIndexBuilder_Invalid(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").Text("title")},
		{"bad chars", NewIndex("sites idx").Text("title")},
		{"no fields", NewIndex("idx")},
		{"dup alias", NewIndex("idx").Text("vector").VectorHNSW("__vector", "vector", 4, DistanceCosine, 0, 0)},
		{"zero dim", NewIndex("idx").VectorHNSW("__vector", "vector", 0, DistanceCosine, 0, 0)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := map[string]bool{
		"sites":                       true,
		"bookmarkd:sites:__default__": true,
		"a-b_c:1":                     true,
		"":                            false,
		"with space":                  false,
		"emoji🙂":                      false,
	}
	for in, want := range tests {
		if got := IsValidIdentifier(in); got != want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", in, got, want)
		}
	}
}
