package botengine

import (
	"sort"
	"strings"

	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
)

// MinAcceptScore is the fuzzy-match acceptance threshold. Deliberately
// permissive: a mediocre match beats re-asking the customer where they
// live. Tune with care when two similarly named buildings exist.
const MinAcceptScore = 0.55

// genericWords are building-name filler that carries no distinguishing
// signal and is stripped before scoring.
var genericWords = map[string]bool{
	"condominio":  true,
	"cond":        true,
	"edificio":    true,
	"ed":          true,
	"residencial": true,
	"res":         true,
	"predio":      true,
	"bloco":       true,
	"conjunto":    true,
	"torre":       true,
	"do":          true,
	"da":          true,
	"de":          true,
	"dos":         true,
	"das":         true,
}

type CondoMatch struct {
	ID    string
	Name  string
	Score float64
}

func condoTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(foldText(s)) {
		tok = strings.Trim(tok, ".,;:!?-")
		if tok == "" || genericWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func scoreCondo(inputTokens []string, inputFolded string, name string) float64 {
	nameTokens := condoTokens(name)
	if len(inputTokens) == 0 || len(nameTokens) == 0 {
		return 0
	}

	nameSet := make(map[string]bool, len(nameTokens))
	for _, t := range nameTokens {
		nameSet[t] = true
	}

	contained := 0
	for _, t := range inputTokens {
		if nameSet[t] {
			contained++
		}
	}
	score := float64(contained) / float64(len(inputTokens))

	// Substring containment either way is strong evidence.
	nameFolded := strings.Join(nameTokens, " ")
	inputJoined := strings.Join(inputTokens, " ")
	if strings.Contains(nameFolded, inputJoined) || strings.Contains(inputJoined, nameFolded) {
		score += 0.3
	} else if strings.Contains(foldText(name), inputFolded) || strings.Contains(inputFolded, foldText(name)) {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// BestCondoMatch scores the input against every known condominium and
// returns the ranked non-zero candidates, best first.
func BestCondoMatch(input string, candidates []*domainChatStorage.Condominium) []CondoMatch {
	inputTokens := condoTokens(input)
	inputFolded := foldText(input)

	var matches []CondoMatch
	for _, c := range candidates {
		if score := scoreCondo(inputTokens, inputFolded, c.Name); score > 0 {
			matches = append(matches, CondoMatch{ID: c.ID, Name: c.Name, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// ResolveCondoName applies the acceptance policy: take the best match
// when it clears the threshold or is the only candidate at all;
// otherwise keep the raw text as an unresolved free-text location. The
// second return is the confidence recorded on the conversation.
func ResolveCondoName(input string, candidates []*domainChatStorage.Condominium) (id, name string, confidence float64) {
	matches := BestCondoMatch(input, candidates)
	if len(matches) > 0 && (matches[0].Score >= MinAcceptScore || len(matches) == 1) {
		return matches[0].ID, matches[0].Name, matches[0].Score
	}
	return "", strings.TrimSpace(input), 0
}
