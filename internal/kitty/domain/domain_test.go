package domain

import (
	"strings"
	"testing"
)

func TestDeriveGender(t *testing.T) {
	cases := []struct {
		dna  []byte
		want Gender
	}{
		{dna: nil, want: GenderMale},
		{dna: []byte{}, want: GenderMale},
		{dna: []byte{0x01}, want: GenderFemale},
		{dna: []byte{0x01, 0x02}, want: GenderMale},
		{dna: []byte{0x01, 0x02, 0x03}, want: GenderFemale},
	}
	for _, tc := range cases {
		if got := DeriveGender(tc.dna); got != tc.want {
			t.Fatalf("expected %s for %d bytes, got %s", tc.want, len(tc.dna), got)
		}
	}
}

func TestDeriveGenderIgnoresContent(t *testing.T) {
	a := DeriveGender([]byte{0x00, 0x00, 0x00})
	b := DeriveGender([]byte{0xff, 0x10, 0x7a})
	if a != b {
		t.Fatalf("expected same gender for equal lengths, got %s and %s", a, b)
	}
}

func TestParsePrincipal(t *testing.T) {
	got, err := ParsePrincipal("  alice ")
	if err != nil {
		t.Fatalf("parse principal: %v", err)
	}
	if got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}

	for _, raw := range []string{"", "   ", strings.Repeat("x", 129)} {
		if _, err := ParsePrincipal(raw); err != ErrInvalidPrincipal {
			t.Fatalf("expected ErrInvalidPrincipal for %q, got %v", raw, err)
		}
	}
}

func TestParseKittyID(t *testing.T) {
	id, err := ParseKittyID("17")
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if id != 17 {
		t.Fatalf("expected 17, got %d", id)
	}

	for _, raw := range []string{"", "0", "-1", "abc", "4294967296"} {
		if _, err := ParseKittyID(raw); err != ErrInvalidKittyID {
			t.Fatalf("expected ErrInvalidKittyID for %q, got %v", raw, err)
		}
	}
}

func TestCloneDoesNotShareDna(t *testing.T) {
	original := Kitty{ID: 1, Dna: []byte{1, 2, 3}}
	clone := original.Clone()
	clone.Dna[0] = 9
	if original.Dna[0] != 1 {
		t.Fatalf("expected original dna untouched, got %v", original.Dna)
	}
}

func TestCloneAllNeverNil(t *testing.T) {
	if out := CloneAll(nil); out == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}
