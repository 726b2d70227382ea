package botengine

import (
	"regexp"
	"strings"
)

// Keyword tables mirror the vocabulary the support desk actually sees.
// Matching is accent-insensitive so "NÃO FUNCIONA" and "NAO FUNCIONA"
// behave the same.

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// foldText lowercases and strips Portuguese diacritics.
func foldText(s string) string {
	return accentReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

var urgencyKeywords = []string{
	"urgente",
	"parado",
	"nao funciona",
	"travou",
	"sem acesso",
	"sem imagem",
	"quebrado",
}

// InferUrgency returns "critical" when the text carries an urgency
// keyword, otherwise "normal".
func InferUrgency(text string) string {
	folded := foldText(text)
	for _, kw := range urgencyKeywords {
		if strings.Contains(folded, kw) {
			return "critical"
		}
	}
	return "normal"
}

func IsUrgent(text string) bool {
	return InferUrgency(text) == "critical"
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Interfone", []string{"interfone", "porteiro eletronico"}},
	{"Sistema de CFTV", []string{"cftv", "camera", "dvr", "monitoramento"}},
	{"Motor de Portão de Veículos", []string{"portao", "motor", "garagem"}},
	{"Sistema de TV Coletiva", []string{"tv coletiva", "antena", "sinal de tv"}},
}

// InferCategory maps free text onto one of the known service categories,
// or "" when nothing matches.
func InferCategory(text string) string {
	folded := foldText(text)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(folded, kw) {
				return entry.category
			}
		}
	}
	return ""
}

var greetingTokens = map[string]bool{
	"oi":         true,
	"ola":        true,
	"bom dia":    true,
	"boa tarde":  true,
	"boa noite":  true,
	"ok":         true,
	"okay":       true,
	"blz":        true,
	"beleza":     true,
	"obrigado":   true,
	"obrigada":   true,
	"valeu":      true,
	"sim":        true,
	"nao":        true,
	"certo":      true,
	"entendi":    true,
	"tudo bem":   true,
	"boa":        true,
	"show":       true,
	"perfeito":   true,
	"combinado":  true,
	"de nada":    true,
	"por nada":   true,
	"ate logo":   true,
	"ate mais":   true,
	"tchau":      true,
	"bom dia!":   true,
	"boa tarde!": true,
	"boa noite!": true,
	"obrigado!":  true,
	"obrigada!":  true,
}

// IsWeakSummary rejects text that cannot stand as a ticket summary:
// too short or a bare greeting/acknowledgment.
func IsWeakSummary(text string) bool {
	folded := foldText(text)
	folded = strings.Trim(folded, ".!? ")
	if len([]rune(folded)) < 12 {
		return true
	}
	return greetingTokens[folded]
}

// IsAcknowledgment reports whether the message is a bare confirmation
// with no new information.
func IsAcknowledgment(text string) bool {
	folded := strings.Trim(foldText(text), ".!? ")
	return greetingTokens[folded]
}

func IsQuestion(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?")
}

var operationalKeywords = []string{
	"nao funciona", "parou", "parado", "quebrado", "quebrou", "travou",
	"travado", "defeito", "problema", "sem imagem", "sem sinal",
	"sem acesso", "nao abre", "nao fecha", "nao liga", "nao toca",
	"falha", "pane", "queimou", "disparando", "com barulho",
}

// ContainsOperationalIssue reports whether the text describes an
// actionable equipment problem.
func ContainsOperationalIssue(text string) bool {
	folded := foldText(text)
	for _, kw := range operationalKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

var (
	reApartmentLabeled = regexp.MustCompile(`(?i)\b(?:ap(?:t|to|artamento)?\.?|unidade|casa|sala|loja)\s*:?\s*(\d{1,5}\s?[a-zA-Z]?)\b`)
	reApartmentBare    = regexp.MustCompile(`^\s*(\d{2,5}\s?[a-zA-Z]?)\s*$`)
)

// ExtractApartment pulls a unit number out of free text. Bare numbers
// only count when bare=true (the caller is explicitly awaiting a unit).
func ExtractApartment(text string, bare bool) string {
	if m := reApartmentLabeled.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(strings.ReplaceAll(m[1], " ", ""))
	}
	if bare {
		if m := reApartmentBare.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(strings.ReplaceAll(m[1], " ", ""))
		}
	}
	return ""
}

var requesterNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)meu nome (?:e|é)\s+([\p{L}]+(?:\s+[\p{L}]+)?)`),
	regexp.MustCompile(`(?i)me chamo\s+([\p{L}]+(?:\s+[\p{L}]+)?)`),
	regexp.MustCompile(`(?i)aqui (?:e|é) (?:o|a)\s+([\p{L}]+(?:\s+[\p{L}]+)?)`),
	regexp.MustCompile(`(?i)^sou (?:o|a)\s+([\p{L}]+(?:\s+[\p{L}]+)?)`),
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		words[i] = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
	return strings.Join(words, " ")
}

// ExtractRequesterName finds a self-introduction in free text, or "".
func ExtractRequesterName(text string) string {
	for _, re := range requesterNamePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			name := strings.TrimSpace(m[1])
			if len([]rune(name)) >= 2 {
				return titleCase(name)
			}
		}
	}
	return ""
}
