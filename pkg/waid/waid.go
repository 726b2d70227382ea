// Package waid normalizes WhatsApp identifiers coming from provider
// webhook payloads: phone numbers, LID (opaque) identifiers and group ids,
// including the malformed variants some provider versions emit.
package waid

import (
	"errors"
	"regexp"
	"strings"
)

const (
	SuffixLID   = "@lid"
	SuffixGroup = "@g.us"

	suffixLegacyCUS = "@c.us"
	suffixLegacyNet = "@s.whatsapp.net"
	legacyGroupTag  = "-group"
)

// ErrNoIdentity is returned when a payload carries nothing resolvable.
// It is fatal for the delivery: no partial identity is ever assigned.
var ErrNoIdentity = errors.New("no resolvable identity in payload")

// Kind classifies a normalized address.
type Kind string

const (
	KindPhone Kind = "phone"
	KindLID   Kind = "lid"
	KindGroup Kind = "group"
)

// Address is a canonical identifier plus its classification.
type Address struct {
	Canonical string
	Kind      Kind
}

var (
	reDigits         = regexp.MustCompile(`\D`)
	reWhitespace     = regexp.MustCompile(`\s+`)
	reGroupShaped    = regexp.MustCompile(`^\d{12,13}-\d{10}$`)
	reSeparatedGroup = regexp.MustCompile(`^\d+-\d+$`)
)

func OnlyDigits(s string) string {
	return reDigits.ReplaceAllString(s, "")
}

func hasSuffix(id, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(id), suffix)
}

// StripLegacySuffix removes suffixes that carry no routing semantics
// (@c.us, @s.whatsapp.net) while preserving @lid and @g.us verbatim.
func StripLegacySuffix(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if hasSuffix(v, SuffixLID) || hasSuffix(v, SuffixGroup) {
		return v
	}
	if hasSuffix(v, suffixLegacyCUS) {
		return v[:len(v)-len(suffixLegacyCUS)]
	}
	if hasSuffix(v, suffixLegacyNet) {
		return v[:len(v)-len(suffixLegacyNet)]
	}
	return v
}

// LooksLikeGroupID reports whether a bare (suffix-less) value is group
// data disguised as a phone: either the canonical <creator>-<timestamp>
// shape, or a long digit run that cannot be a phone number.
func LooksLikeGroupID(v string, countryCode string) bool {
	v = strings.TrimSpace(v)
	if reGroupShaped.MatchString(v) {
		return true
	}
	digits := OnlyDigits(v)
	if digits != v {
		return false
	}
	if len(digits) >= 20 && len(digits) <= 25 && !strings.HasPrefix(digits, countryCode) {
		return true
	}
	return false
}

// RepairGroupID fixes malformed group ids: strips owner/device prefixes and
// the legacy "-group" label, and re-inserts the creator/timestamp separator
// when the provider emitted the id as one unbroken digit run. The trailing
// 10 digits are the timestamp segment.
func RepairGroupID(raw string) string {
	v := strings.TrimSpace(raw)
	v = strings.TrimSuffix(v, SuffixGroup)

	// Device-qualified owner prefix ("123:45...") keeps only the id part.
	if idx := strings.LastIndex(v, ":"); idx >= 0 {
		v = v[idx+1:]
	}
	v = reWhitespace.ReplaceAllString(v, "")
	v = strings.TrimSuffix(v, legacyGroupTag)

	if reSeparatedGroup.MatchString(v) {
		return v
	}

	digits := OnlyDigits(v)
	if digits == v && len(digits) >= 18 && len(digits) <= 22 {
		cut := len(digits) - 10
		return digits[:cut] + "-" + digits[cut:]
	}
	return v
}

// NormalizeGroup returns the canonical group address for a raw group id.
func NormalizeGroup(raw string) (Address, error) {
	repaired := RepairGroupID(raw)
	if repaired == "" {
		return Address{}, ErrNoIdentity
	}
	return Address{Canonical: repaired + SuffixGroup, Kind: KindGroup}, nil
}

// NormalizePhone canonicalizes a phone-shaped value: strips non-digits and
// qualifies bare local numbers (10-11 digits) with the country code.
// Re-normalizing an already qualified number is a no-op.
func NormalizePhone(raw string, countryCode string) string {
	digits := OnlyDigits(raw)
	if digits == "" {
		return ""
	}
	if len(digits) == 10 || len(digits) == 11 {
		return countryCode + digits
	}
	return digits
}

// Normalize classifies and canonicalizes a single raw identifier.
// Priority: explicit group suffix > disguised group > LID > phone.
// Values of 14+ digits not starting with the country code are disguised
// LIDs, not phones.
func Normalize(raw string, countryCode string) (Address, error) {
	v := StripLegacySuffix(raw)
	if v == "" {
		return Address{}, ErrNoIdentity
	}

	if hasSuffix(v, SuffixGroup) {
		return NormalizeGroup(v)
	}
	if hasSuffix(v, SuffixLID) {
		return Address{Canonical: v, Kind: KindLID}, nil
	}
	if LooksLikeGroupID(v, countryCode) {
		return NormalizeGroup(v)
	}

	digits := OnlyDigits(v)
	if digits == "" {
		return Address{}, ErrNoIdentity
	}
	if len(digits) >= 14 && !strings.HasPrefix(digits, countryCode) {
		return Address{Canonical: digits + SuffixLID, Kind: KindLID}, nil
	}
	return Address{Canonical: NormalizePhone(digits, countryCode), Kind: KindPhone}, nil
}

// GroupThreadKey derives the uniqueness key for a group conversation.
func GroupThreadKey(canonicalGroup string) string {
	return "group:" + canonicalGroup
}

// ContactThreadKey derives the uniqueness key for a direct conversation.
// The contact id, not the raw address, keys the thread so that a contact
// later acquiring a second address does not fork it.
func ContactThreadKey(contactID string) string {
	return "contact:" + contactID
}

// CandidateSenderIDs returns the deduplicated, canonical sender addresses
// of a payload, ordered LID-first: a LID is the most stable identifier,
// phone numbers can be reassigned.
func CandidateSenderIDs(countryCode string, raws ...string) []Address {
	seen := make(map[string]bool)
	var lids, phones, others []Address
	for _, raw := range raws {
		addr, err := Normalize(raw, countryCode)
		if err != nil || seen[addr.Canonical] {
			continue
		}
		seen[addr.Canonical] = true
		switch addr.Kind {
		case KindLID:
			lids = append(lids, addr)
		case KindPhone:
			phones = append(phones, addr)
		default:
			others = append(others, addr)
		}
	}
	out := make([]Address, 0, len(lids)+len(phones)+len(others))
	out = append(out, lids...)
	out = append(out, phones...)
	out = append(out, others...)
	return out
}
