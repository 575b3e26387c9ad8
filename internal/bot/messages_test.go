package bot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/jobs"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "R$ 0,00"},
		{"200", "R$ 200,00"},
		{"1234.5", "R$ 1.234,50"},
		{"1000000", "R$ 1.000.000,00"},
		{"99.999", "R$ 100,00"},
		{"-12.3", "-R$ 12,30"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBRL(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatOutcomeExpense(t *testing.T) {
	o := &pipeline.Outcome{
		Kind:       pipeline.OutcomeExpense,
		Project:    "Obra Do Joao",
		Transcript: "comprei cimento por 1234,50 para a obra do joão",
		Record: &domain.Record{
			Kind:        domain.KindExpense,
			Date:        civil.Date{Year: 2024, Month: time.March, Day: 5},
			Description: "cimento_cp2",
			Category:    domain.CategoryMaterials,
			Amount:      decimal.RequireFromString("1234.50"),
		},
		Result: &domain.AppendResult{RowIndex: 3, SheetName: "Expenses", ResourceURL: "https://example.com/d/x"},
	}

	got := FormatOutcome(o)
	for _, want := range []string{
		"✅ *Gasto registrado com sucesso!*",
		"🏗️ *Obra:* Obra Do Joao",
		"📅 *Data:* 05/03/2024",
		`🏷️ *Descrição:* cimento\_cp2`,
		"📦 *Categoria:* Materiais",
		"💰 *Valor:* R$ 1.234,50",
		"📌 *Observações:* -",
		"📊 *Aba:* Expenses",
		"✔️ Adicionado na linha 3!",
		"🔗 Abrir planilha: https://example.com/d/x",
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "Funcionário")
}

func TestFormatOutcomePayment(t *testing.T) {
	o := &pipeline.Outcome{
		Kind:    pipeline.OutcomePayment,
		Project: "Obra Da Maria",
		Record: &domain.Record{
			Kind:       domain.KindPayment,
			Date:       civil.Date{Year: 2024, Month: time.December, Day: 31},
			WorkerName: "Carlos",
			Role:       domain.RoleMason,
			Amount:     decimal.NewFromInt(350),
			Notes:      "diária",
		},
		Result: &domain.AppendResult{RowIndex: 4, SheetName: "Payments"},
	}

	got := FormatOutcome(o)
	for _, want := range []string{
		"✅ *Pagamento registrado com sucesso!*",
		"👤 *Funcionário:* Carlos",
		"🔧 *Função:* Pedreiro",
		"💰 *Valor:* R$ 350,00",
		"📌 *Observações:* diária",
		"📊 *Aba:* Payments",
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "Categoria")
}

func TestFormatOutcomeFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transcription", domain.Wrap(domain.ErrTranscription, fmt.Errorf("whisper: 500")), "não consegui entender o áudio"},
		{"extraction", domain.Wrap(domain.ErrExtraction, fmt.Errorf("not json")), "não identifiquei o gasto ou pagamento"},
		{"resource", domain.Wrap(domain.ErrResourceCreation, fmt.Errorf("quota")), "planilha da obra"},
		{"append", domain.Wrap(domain.ErrAppend, fmt.Errorf("quota")), "não consegui salvar na planilha"},
		{"timeout wins", domain.Wrap(domain.ErrExtraction, context.DeadlineExceeded), "demorou demais"},
		{"unexpected", fmt.Errorf("%w: nil pointer", domain.ErrUnexpected), "erro inesperado"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatOutcome(&pipeline.Outcome{Err: tt.err, Kind: pipeline.OutcomeError})
			assert.Contains(t, got, "❌ *Erro ao processar:*")
			assert.Contains(t, got, tt.want)
			assert.Contains(t, got, "_Detalhe:_")
		})
	}
}

func TestFormatOutcomeFailureKeepsTranscript(t *testing.T) {
	got := FormatOutcome(&pipeline.Outcome{
		Err:        domain.Wrap(domain.ErrExtraction, fmt.Errorf("bad")),
		Transcript: "bom dia *pessoal*",
	})
	assert.Contains(t, got, `bom dia \*pessoal\*`)
}

func TestFormatOutcomeNil(t *testing.T) {
	assert.Contains(t, FormatOutcome(nil), "Erro inesperado")
}

func TestFormatStatus(t *testing.T) {
	got := formatStatus(3, "", map[jobs.JobStatus]int{
		jobs.JobStatusPending:  1,
		jobs.JobStatusRetrying: 1,
		jobs.JobStatusRunning:  2,
	})
	assert.Contains(t, got, "*Obras cadastradas:* 3")
	assert.Contains(t, got, "2 na fila, 2 em processamento, 0 registrados, 0 com erro")
	assert.NotContains(t, got, "Armazenamento")

	assert.NotContains(t, formatStatus(0, "xlsx", nil), "Áudios")
}
