package bot

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/jobs"
	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

const (
	startMessage = "🏗️ *Bem-vindo ao Controle de Gastos de Obra!*\n\n" +
		"🎤 *Como usar:*\n" +
		"Envie um áudio mencionando:\n" +
		"• Nome da obra\n" +
		"• O que comprou ou pagou\n" +
		"• Valor\n\n" +
		"*Exemplos:*\n" +
		"\"Comprei cimento por 200 reais para a obra do João\"\n" +
		"\"Paguei o pedreiro na obra da rua 10, 350 reais\"\n\n" +
		"Use /obras para ver suas planilhas\n" +
		"Use /ajuda para mais informações"

	helpMessage = "📚 *Como usar o bot:*\n\n" +
		"1️⃣ Grave um áudio de voz\n" +
		"2️⃣ Mencione o nome da obra\n" +
		"3️⃣ Descreva o gasto ou pagamento\n" +
		"4️⃣ Envie para mim\n\n" +
		"*Para PAGAMENTOS, use palavras como:*\n" +
		"• \"Paguei o pedreiro...\"\n" +
		"• \"Pagamento do funcionário...\"\n" +
		"• \"Salário do ajudante...\"\n" +
		"• \"Mão de obra...\"\n\n" +
		"*Para GASTOS, use:*\n" +
		"• \"Comprei...\"\n" +
		"• \"Gastei com...\"\n" +
		"• \"Materiais...\"\n\n" +
		"*Comandos:*\n" +
		"/start - Iniciar bot\n" +
		"/obras - Ver todas as obras\n" +
		"/ajuda - Ver esta mensagem\n" +
		"/status - Ver status do sistema"

	processingMessage = "⏳ Processando seu áudio..."
	textHintMessage   = "🎤 Envie um áudio descrevendo o gasto ou pagamento. Use /ajuda para ver exemplos."
	noProjectsMessage = "⚠️ Nenhuma obra cadastrada ainda.\n\nEnvie um áudio mencionando uma obra para começar!"
)

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// FormatBRL renders an amount as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	intPart, frac, _ := strings.Cut(d.Abs().StringFixed(2), ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "R$ " + b.String() + "," + frac
}

// FormatOutcome renders the reply for a finished run as Telegram Markdown.
func FormatOutcome(o *pipeline.Outcome) string {
	if o == nil {
		return "❌ *Erro inesperado.*"
	}
	if o.Failed() || o.Record == nil || o.Result == nil {
		return formatFailure(o)
	}

	rec := o.Record
	var b strings.Builder
	if rec.Kind == domain.KindPayment {
		b.WriteString("✅ *Pagamento registrado com sucesso!*\n\n")
	} else {
		b.WriteString("✅ *Gasto registrado com sucesso!*\n\n")
	}
	fmt.Fprintf(&b, "🏗️ *Obra:* %s\n", esc(o.Project))
	fmt.Fprintf(&b, "📝 *Transcrição:*\n%s\n\n", esc(o.Transcript))
	fmt.Fprintf(&b, "📅 *Data:* %s\n", ledger.FormatDate(rec.Date))
	if rec.Kind == domain.KindPayment {
		fmt.Fprintf(&b, "👤 *Funcionário:* %s\n", esc(rec.WorkerName))
		fmt.Fprintf(&b, "🔧 *Função:* %s\n", ledger.RoleLabel(rec.Role))
	} else {
		fmt.Fprintf(&b, "🏷️ *Descrição:* %s\n", esc(rec.Description))
		fmt.Fprintf(&b, "📦 *Categoria:* %s\n", ledger.CategoryLabel(rec.Category))
	}
	fmt.Fprintf(&b, "💰 *Valor:* %s\n", FormatBRL(rec.Amount))
	fmt.Fprintf(&b, "📌 *Observações:* %s\n\n", esc(orDash(rec.Notes)))
	fmt.Fprintf(&b, "📊 *Aba:* %s\n", esc(o.Result.SheetName))
	fmt.Fprintf(&b, "✔️ Adicionado na linha %d!\n\n", o.Result.RowIndex)
	fmt.Fprintf(&b, "🔗 Abrir planilha: %s", esc(o.Result.ResourceURL))
	return b.String()
}

func formatFailure(o *pipeline.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ *Erro ao processar:* %s", failureReason(o.Err))
	if o.Transcript != "" {
		fmt.Fprintf(&b, "\n\n📝 *Transcrição:*\n%s", esc(o.Transcript))
	}
	if o.Err != nil {
		fmt.Fprintf(&b, "\n\n_Detalhe:_ %s", esc(o.Err.Error()))
	}
	return b.String()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "o serviço demorou demais para responder. Tente novamente em instantes."
	case errors.Is(err, domain.ErrTranscription):
		return "não consegui entender o áudio. Tente gravar novamente."
	case errors.Is(err, domain.ErrExtraction):
		return "não identifiquei o gasto ou pagamento. Mencione a obra, o que foi comprado ou pago e o valor."
	case errors.Is(err, domain.ErrResourceCreation):
		return "não consegui criar ou abrir a planilha da obra."
	case errors.Is(err, domain.ErrAppend):
		return "não consegui salvar na planilha."
	case errors.Is(err, domain.ErrConfiguration):
		return "o bot não está configurado corretamente."
	default:
		return "erro inesperado."
	}
}

func formatProjects(projects []ledger.ProjectInfo) string {
	if len(projects) == 0 {
		return noProjectsMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏗️ *Obras Cadastradas (%d):*\n\n", len(projects))
	for i, p := range projects {
		fmt.Fprintf(&b, "%d. %s\n", i+1, esc(p.Name))
		fmt.Fprintf(&b, "   🔗 %s\n\n", esc(p.URL))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatus(projects int, storage string, counts map[jobs.JobStatus]int) string {
	var b strings.Builder
	b.WriteString("✅ Sistema funcionando\n\n")
	fmt.Fprintf(&b, "🏗️ *Obras cadastradas:* %d\n", projects)
	if storage != "" {
		fmt.Fprintf(&b, "📊 *Armazenamento:* %s\n", storage)
	}
	if counts != nil {
		fmt.Fprintf(&b, "⚙️ *Áudios:* %d na fila, %d em processamento, %d registrados, %d com erro\n",
			counts[jobs.JobStatusPending]+counts[jobs.JobStatusRetrying],
			counts[jobs.JobStatusRunning],
			counts[jobs.JobStatusCompleted],
			counts[jobs.JobStatusFailed])
	}
	return b.String()
}
