package botengine

import "testing"

func TestParseCommandNoTrigger(t *testing.T) {
	cases := []string{
		"oi, tudo bem?",
		"o interfone quebrou de novo",
		"quero abrir chamado",              // trigger not anchored at start
		"poderia ABRIR CHAMADO para mim?",  // mid-sentence
		"chamados: portão não abre",        // wrong trigger word
		"AGENDAMENTO criar para o Solaris", // inverted order
	}
	for _, text := range cases {
		if intent := ParseCommand(text); intent.Matched {
			t.Errorf("%q should not match any trigger, got %q", text, intent.Trigger)
		}
	}
}

func TestParseCommandTriggers(t *testing.T) {
	cases := []struct {
		text     string
		trigger  string
		schedule bool
	}{
		{"ABRIR CHAMADO Cond: Solaris - interfone mudo", "ABRIR CHAMADO", false},
		{"abrir protocolo CONDOMÍNIO: Mirante - portão travado", "ABRIR PROTOCOLO", false},
		{"CHAMADO: Solaris - câmera da garagem sem imagem", "CHAMADO:", false},
		{"CRIAR AGENDAMENTO Cond: Atlântico - manutenção preventiva", "CRIAR AGENDAMENTO", true},
		{"AGENDAR: Atlântico - troca do motor do portão", "AGENDAR:", true},
		{"agenda: Mirante - visita técnica no DVR", "AGENDA:", true},
	}
	for _, tc := range cases {
		intent := ParseCommand(tc.text)
		if !intent.Matched {
			t.Errorf("%q should match", tc.text)
			continue
		}
		if intent.Trigger != tc.trigger {
			t.Errorf("%q: trigger = %q, want %q", tc.text, intent.Trigger, tc.trigger)
		}
		if intent.Schedule != tc.schedule {
			t.Errorf("%q: schedule = %v, want %v", tc.text, intent.Schedule, tc.schedule)
		}
	}
}

func TestParseCommandLabeledFields(t *testing.T) {
	intent := ParseCommand("ABRIR CHAMADO CONDOMÍNIO: Residencial Solaris CLIENTE: (81) 99876-5432 interfone do apartamento não toca")
	if !intent.Matched {
		t.Fatal("command should match")
	}
	if intent.CondominiumName != "Residencial Solaris" {
		t.Errorf("condominium = %q, want Residencial Solaris", intent.CondominiumName)
	}
	if intent.TargetPhone != "81998765432" {
		t.Errorf("target phone = %q, want 81998765432", intent.TargetPhone)
	}
}

func TestParseCommandPositionalSplit(t *testing.T) {
	intent := ParseCommand("CHAMADO: Edifício Mirante - portão da garagem não abre desde ontem")
	if !intent.Matched {
		t.Fatal("command should match")
	}
	if intent.CondominiumName != "Edifício Mirante" {
		t.Errorf("condominium = %q, want Edifício Mirante", intent.CondominiumName)
	}
	if intent.Summary != "portão da garagem não abre desde ontem" {
		t.Errorf("summary = %q", intent.Summary)
	}
	if intent.NeedsMoreInfo {
		t.Error("complete command should not need more info")
	}
	if intent.Category != "Motor de Portão de Veículos" {
		t.Errorf("category = %q", intent.Category)
	}
	if intent.Priority != "normal" {
		t.Errorf("priority = %q, want normal", intent.Priority)
	}

	urgent := ParseCommand("CHAMADO: Mirante - portão travou e está parado, urgente")
	if urgent.Priority != "critical" {
		t.Errorf("urgency keyword should infer critical, got %q", urgent.Priority)
	}
}

func TestParseCommandMissingCondominiumAsks(t *testing.T) {
	intent := ParseCommand("ABRIR CHAMADO interfone parou de funcionar no bloco B")
	if !intent.Matched {
		t.Fatal("command should match")
	}
	if !intent.NeedsMoreInfo {
		t.Fatal("missing condominium must ask for more info")
	}
	if intent.Question != "Para qual condomínio é esse atendimento?" {
		t.Errorf("question = %q", intent.Question)
	}
}

func TestParseCommandWeakSummaryAsks(t *testing.T) {
	intent := ParseCommand("CHAMADO: Solaris - ok")
	if !intent.Matched {
		t.Fatal("command should match")
	}
	if !intent.NeedsMoreInfo {
		t.Fatal("weak summary must ask for more info")
	}
	if intent.Question != "Pode descrever rapidamente o problema a ser atendido?" {
		t.Errorf("question = %q", intent.Question)
	}
}

func TestParseCommandForceNew(t *testing.T) {
	intent := ParseCommand("CHAMADO: Solaris - NOVO problema no interfone da portaria principal")
	if !intent.Matched {
		t.Fatal("command should match")
	}
	if !intent.ForceNew {
		t.Error("NOVO marker should set ForceNew")
	}

	intent = ParseCommand("CHAMADO: Solaris - câmera do hall sem imagem de novo hoje cedo")
	if !intent.Matched {
		t.Fatal("command should match")
	}
	if intent.ForceNew {
		t.Error("'de novo' inside a sentence must not trip the NOVO marker")
	}
}
