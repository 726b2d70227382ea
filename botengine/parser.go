package botengine

import (
	"regexp"
	"strings"
)

// CommandIntent is the outcome of deterministic command parsing. No
// model call is involved: either the text matches a fixed trigger or it
// does not.
type CommandIntent struct {
	Matched         bool
	Trigger         string
	Schedule        bool // scheduling trigger vs. plain ticket trigger
	CondominiumName string
	Summary         string
	TargetPhone     string
	ForceNew        bool
	Priority        string
	Category        string
	NeedsMoreInfo   bool
	Question        string
}

var commandTriggers = []struct {
	trigger  string
	schedule bool
}{
	{"CRIAR AGENDAMENTO", true},
	{"AGENDAR:", true},
	{"AGENDA:", true},
	{"ABRIR CHAMADO", false},
	{"ABRIR PROTOCOLO", false},
	{"CHAMADO:", false},
}

var (
	reCondoLabel  = regexp.MustCompile(`(?i)\b(?:CONDOM[IÍ]NIO|COND)\s*:\s*([^\n\-;|]+)`)
	rePhoneLabel  = regexp.MustCompile(`(?i)\b(?:CLIENTE|TEL|FONE|WHATS)\s*:?\s*(\+?[\d\s().-]{8,20})`)
	reForceNew    = regexp.MustCompile(`(?i)\b(?:NOVO|ASSUNTO DIFERENTE)\b`)
	reDeNovo      = regexp.MustCompile(`(?i)\bde novo\b`)
	reTrailLabel  = regexp.MustCompile(`(?i)\s+(?:CLIENTE|TEL|FONE|WHATS)\s*:?.*$`)
	reLabelNoise  = regexp.MustCompile(`(?i)\b(?:CONDOM[IÍ]NIO|COND|CLIENTE|TEL|FONE|WHATS)\s*:\s*[^\n\-;|]+`)
	reDigitsClean = regexp.MustCompile(`\D`)
)

// ParseCommand matches a message against the fixed trigger set. Triggers
// are anchored at the start of the message, case-insensitive.
func ParseCommand(text string) CommandIntent {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	var intent CommandIntent
	for _, t := range commandTriggers {
		if strings.HasPrefix(upper, t.trigger) {
			intent.Matched = true
			intent.Trigger = t.trigger
			intent.Schedule = t.schedule
			break
		}
	}
	if !intent.Matched {
		return intent
	}

	rest := strings.TrimSpace(trimmed[len(intent.Trigger):])
	rest = strings.TrimLeft(rest, ":- ")

	// Labeled fields win over positional parsing.
	if m := reCondoLabel.FindStringSubmatch(rest); m != nil {
		// A second label on the same line ends the name.
		intent.CondominiumName = strings.TrimSpace(reTrailLabel.ReplaceAllString(m[1], ""))
	}
	if m := rePhoneLabel.FindStringSubmatch(rest); m != nil {
		digits := reDigitsClean.ReplaceAllString(m[1], "")
		if len(digits) >= 8 {
			intent.TargetPhone = digits
		}
	}
	// "de novo" means "again", not a request for a fresh ticket.
	intent.ForceNew = reForceNew.MatchString(reDeNovo.ReplaceAllString(rest, ""))

	// Whatever is left after removing labels is the summary candidate.
	summary := reLabelNoise.ReplaceAllString(rest, "")
	if intent.ForceNew {
		summary = reForceNew.ReplaceAllString(summary, "")
	}
	summary = strings.Trim(summary, " \t-;|")

	// "Location - summary" positional split when no label named the place.
	if intent.CondominiumName == "" {
		if idx := strings.Index(summary, " - "); idx > 0 {
			intent.CondominiumName = strings.TrimSpace(summary[:idx])
			summary = strings.TrimSpace(summary[idx+3:])
		}
	}
	intent.Summary = summary

	if intent.CondominiumName == "" {
		intent.NeedsMoreInfo = true
		intent.Question = "Para qual condomínio é esse atendimento?"
		return intent
	}
	if IsWeakSummary(intent.Summary) {
		intent.NeedsMoreInfo = true
		intent.Question = "Pode descrever rapidamente o problema a ser atendido?"
		return intent
	}

	intent.Priority = InferUrgency(intent.Summary)
	intent.Category = InferCategory(intent.Summary)
	return intent
}
