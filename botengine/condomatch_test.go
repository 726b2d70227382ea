package botengine

import (
	"testing"

	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
)

func condoFixtures() []*domainChatStorage.Condominium {
	return []*domainChatStorage.Condominium{
		{ID: "c1", Name: "Residencial Solaris"},
		{ID: "c2", Name: "Edifício Mirante do Cabo"},
		{ID: "c3", Name: "Condomínio Atlântico Sul"},
	}
}

func TestResolveCondoNameExactish(t *testing.T) {
	cases := []struct {
		input  string
		wantID string
	}{
		{"Residencial Solaris", "c1"},
		{"solaris", "c1"},
		{"condominio solaris", "c1"},
		{"mirante do cabo", "c2"},
		{"Edificio Mirante", "c2"},
		{"atlantico sul", "c3"},
	}
	for _, tc := range cases {
		id, name, confidence := ResolveCondoName(tc.input, condoFixtures())
		if id != tc.wantID {
			t.Errorf("ResolveCondoName(%q) = %q (%q), want id %q", tc.input, id, name, tc.wantID)
			continue
		}
		if confidence < MinAcceptScore {
			t.Errorf("ResolveCondoName(%q) confidence %.2f below acceptance threshold", tc.input, confidence)
		}
	}
}

func TestResolveCondoNameUnresolvedKeepsRawText(t *testing.T) {
	id, name, confidence := ResolveCondoName("Vila das Palmeiras", condoFixtures())
	if id != "" {
		t.Errorf("unknown building should not resolve, got id %q", id)
	}
	if name != "Vila das Palmeiras" {
		t.Errorf("raw text should survive as the location, got %q", name)
	}
	if confidence != 0 {
		t.Errorf("unresolved match must carry zero confidence, got %.2f", confidence)
	}
}

func TestResolveCondoNameSoleWeakCandidate(t *testing.T) {
	// With exactly one scoring candidate the match is accepted even
	// below the threshold: there is nothing to confuse it with.
	candidates := []*domainChatStorage.Condominium{
		{ID: "c9", Name: "Residencial Jardim das Acácias Bloco Norte"},
	}
	id, _, _ := ResolveCondoName("jardim perto da praca", candidates)
	if id != "c9" {
		t.Errorf("sole candidate should win, got %q", id)
	}
}

func TestBestCondoMatchRanksBestFirst(t *testing.T) {
	matches := BestCondoMatch("mirante", condoFixtures())
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].ID != "c2" {
		t.Errorf("best match = %q, want c2", matches[0].ID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Error("matches must be sorted best first")
		}
	}
}

func TestCondoTokensStripGenericWords(t *testing.T) {
	tokens := condoTokens("Condomínio Residencial do Solaris")
	if len(tokens) != 1 || tokens[0] != "solaris" {
		t.Errorf("generic filler should be stripped, got %v", tokens)
	}
}
