package botengine

import "testing"

func TestInferUrgency(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"o portão TRAVOU agora de manhã", "critical"},
		{"estamos sem acesso à garagem", "critical"},
		{"câmera sem imagem desde ontem", "critical"},
		{"o interfone NÃO FUNCIONA", "critical"},
		{"interfone nao funciona", "critical"},
		{"gostaria de agendar uma visita", "normal"},
		{"o barulho do motor está estranho", "normal"},
	}
	for _, tc := range cases {
		if got := InferUrgency(tc.text); got != tc.want {
			t.Errorf("InferUrgency(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestInferCategory(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"o interfone do 302 está mudo", "Interfone"},
		{"a câmera da entrada caiu", "Sistema de CFTV"},
		{"DVR parou de gravar", "Sistema de CFTV"},
		{"o portão da garagem não fecha", "Motor de Portão de Veículos"},
		{"a antena coletiva está sem sinal de tv", "Sistema de TV Coletiva"},
		{"a lâmpada do hall queimou", ""},
	}
	for _, tc := range cases {
		if got := InferCategory(tc.text); got != tc.want {
			t.Errorf("InferCategory(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestIsWeakSummary(t *testing.T) {
	weak := []string{"oi", "bom dia", "ok", "obrigado!", "sim", "valeu", "blz"}
	for _, text := range weak {
		if !IsWeakSummary(text) {
			t.Errorf("%q should be weak", text)
		}
	}

	strong := []string{
		"o interfone do apartamento 302 está mudo",
		"portão da garagem travado desde cedo",
	}
	for _, text := range strong {
		if IsWeakSummary(text) {
			t.Errorf("%q should stand as a summary", text)
		}
	}
}

func TestExtractApartmentLabeled(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"o interfone do apto 302 não toca", "302"},
		{"Apartamento: 1201", "1201"},
		{"ap 45B sem sinal", "45B"},
		{"unidade 12 com defeito", "12"},
		{"casa 7 sem interfone", "7"},
		{"sala: 204 reclamando do portão", "204"},
		{"o interfone da portaria está mudo", ""},
	}
	for _, tc := range cases {
		if got := ExtractApartment(tc.text, false); got != tc.want {
			t.Errorf("ExtractApartment(%q, false) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestExtractApartmentBare(t *testing.T) {
	if got := ExtractApartment("302", true); got != "302" {
		t.Errorf("bare number while awaiting a unit should extract, got %q", got)
	}
	if got := ExtractApartment("302", false); got != "" {
		t.Errorf("bare number without a pending unit question must not extract, got %q", got)
	}
	if got := ExtractApartment("104 B", true); got != "104B" {
		t.Errorf("unit letter should join the number, got %q", got)
	}
}

func TestExtractRequesterName(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"meu nome é josé carlos", "José Carlos"},
		{"Me chamo Fernanda", "Fernanda"},
		{"aqui é o Paulo da portaria", "Paulo Da"},
		{"sou a Maria", "Maria"},
		{"o interfone quebrou", ""},
	}
	for _, tc := range cases {
		if got := ExtractRequesterName(tc.text); got != tc.want {
			t.Errorf("ExtractRequesterName(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestContainsOperationalIssue(t *testing.T) {
	if !ContainsOperationalIssue("o portão quebrou ontem à noite") {
		t.Error("quebrou should read as an operational issue")
	}
	if ContainsOperationalIssue("bom dia, tudo bem?") {
		t.Error("a greeting is not an operational issue")
	}
}

func TestIsQuestionAndAcknowledgment(t *testing.T) {
	if !IsQuestion("qual o número do apartamento?") {
		t.Error("trailing ? should read as a question")
	}
	if IsQuestion("o interfone quebrou.") {
		t.Error("statement misread as question")
	}
	if !IsAcknowledgment("ok") || !IsAcknowledgment("Obrigado!") {
		t.Error("bare confirmations should read as acknowledgments")
	}
	if IsAcknowledgment("ok, mas o portão continua travado") {
		t.Error("an acknowledgment with new information is not bare")
	}
}
