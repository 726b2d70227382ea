package waid

import (
	"testing"
)

const cc = "55"

func TestNormalize_KnownFormats(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		kind Kind
	}{
		{"bare local 11 digits", "81999887766", "5581999887766", KindPhone},
		{"bare local 10 digits", "8199887766", "558199887766", KindPhone},
		{"already qualified", "5581999887766", "5581999887766", KindPhone},
		{"legacy c.us suffix", "5581999887766@c.us", "5581999887766", KindPhone},
		{"legacy whatsapp.net suffix", "5581999887766@s.whatsapp.net", "5581999887766", KindPhone},
		{"formatted phone", "+55 (81) 99988-7766", "5581999887766", KindPhone},
		{"lid preserved", "204837516273645@lid", "204837516273645@lid", KindLID},
		{"long digits disguised lid", "20483751627364", "20483751627364@lid", KindLID},
		{"group with suffix", "5581999887766-1612345678@g.us", "5581999887766-1612345678@g.us", KindGroup},
		{"group separated bare", "5581999887766-1612345678", "5581999887766-1612345678@g.us", KindGroup},
		{"group unbroken digits", "5581999887761612345678@g.us", "558199988776-1612345678@g.us", KindGroup},
		{"group legacy -group label", "5581999887766-1612345678-group@g.us", "5581999887766-1612345678@g.us", KindGroup},
		{"group 20+ digits no country code", "12036304123456789012", "1203630412-3456789012@g.us", KindGroup},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw, cc)
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tc.raw, err)
			}
			if got.Canonical != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got.Canonical, tc.want)
			}
			if got.Kind != tc.kind {
				t.Fatalf("Normalize(%q) kind = %q, want %q", tc.raw, got.Kind, tc.kind)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"81999887766",
		"204837516273645@lid",
		"5581999887761612345678@g.us",
		"5581999887766@c.us",
	}
	for _, raw := range inputs {
		first, err := Normalize(raw, cc)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", raw, err)
		}
		second, err := Normalize(first.Canonical, cc)
		if err != nil {
			t.Fatalf("re-Normalize(%q) error: %v", first.Canonical, err)
		}
		if second.Canonical != first.Canonical {
			t.Fatalf("re-normalizing %q changed %q -> %q", raw, first.Canonical, second.Canonical)
		}
	}
}

func TestNormalize_NoIdentity(t *testing.T) {
	for _, raw := range []string{"", "   ", "@c.us", "abc"} {
		if _, err := Normalize(raw, cc); err == nil {
			t.Fatalf("Normalize(%q) expected error, got none", raw)
		}
	}
}

func TestRepairGroupID_SeparatorInsertion(t *testing.T) {
	// 18-22 unbroken digits: last 10 become the timestamp segment.
	got := RepairGroupID("558199988776612345678")
	if got != "55819998877-6612345678" {
		t.Fatalf("RepairGroupID = %q", got)
	}
	// Already repaired ids pass through untouched.
	if again := RepairGroupID(got); again != got {
		t.Fatalf("RepairGroupID not idempotent: %q -> %q", got, again)
	}
}

func TestLooksLikeGroupID(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"5581999887766-1612345678", true},
		{"12036304123456789012", true},     // 20 digits, foreign prefix
		{"55123456789012345678901", false}, // starts with country code
		{"5581999887766", false},           // plain phone
		{"204837516273645", false},         // 15 digits: lid territory
	}
	for _, tc := range cases {
		if got := LooksLikeGroupID(tc.raw, cc); got != tc.want {
			t.Fatalf("LooksLikeGroupID(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestCandidateSenderIDs_OrderAndDedup(t *testing.T) {
	got := CandidateSenderIDs(cc,
		"81999887766",
		"204837516273645@lid",
		"5581999887766@c.us",
		"204837516273645@lid",
	)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(got), got)
	}
	if got[0].Kind != KindLID {
		t.Fatalf("expected LID first, got %v", got[0])
	}
	if got[1].Canonical != "5581999887766" {
		t.Fatalf("expected phone second, got %v", got[1])
	}
}
