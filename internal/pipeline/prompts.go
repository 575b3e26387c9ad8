package pipeline

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/site-ledger/internal/domain"
)

// SystemInstruction is sent as the system turn of every extraction request.
const SystemInstruction = "You extract construction-site expenses and worker payments from short " +
	"transcribed voice notes, mostly in Brazilian Portuguese. Always answer with one valid JSON object and nothing else."

// BuildExtractionPrompt builds the user prompt asking the model for the record in text.
// today is embedded so the model can resolve relative dates.
func BuildExtractionPrompt(text string, today civil.Date) string {
	categories := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		categories[i] = string(c)
	}
	roles := make([]string, len(domain.Roles))
	for i, r := range domain.Roles {
		roles[i] = string(r)
	}

	var b strings.Builder
	b.WriteString("Analyze the following transcribed note about a construction site and extract it as JSON.\n\n")
	fmt.Fprintf(&b, "Text: %q\n\n", text)

	b.WriteString("Steps:\n")
	b.WriteString("1. Identify the PROJECT name (e.g. \"obra do João\", \"obra da rua 10\", \"obra do centro\"). Copy it as spoken.\n")
	b.WriteString("2. Decide whether the note is a WORKER PAYMENT or a general EXPENSE.\n\n")

	b.WriteString("Classification rule:\n")
	b.WriteString("- It is a payment when the text refers to paying a named person in a construction role.\n")
	b.WriteString("- Payment cues: \"paid\", \"payment\", \"salary\", \"labor\", \"paguei\", \"pagamento\", \"salário\", " +
		"\"mão de obra\", \"funcionário\".\n")
	b.WriteString("- A person name next to a role noun is a payment: \"mason Pedro\", \"pedreiro João\", \"ajudante Pedro\".\n")
	b.WriteString("- Role nouns: pedreiro (Mason), ajudante (Helper), servente (Laborer), eletricista (Electrician), " +
		"encanador (Plumber), mestre de obras (Other).\n")
	b.WriteString("- Everything else, such as \"bought cement\" or \"comprei cimento\", is an expense.\n\n")

	b.WriteString("For a payment answer:\n")
	b.WriteString("{\n")
	b.WriteString("  \"kind\": \"payment\",\n")
	b.WriteString("  \"project\": \"project name as spoken\",\n")
	b.WriteString("  \"date\": \"DD/MM/YYYY\",\n")
	b.WriteString("  \"worker_name\": \"name of the worker\",\n")
	fmt.Fprintf(&b, "  \"role\": \"one of %s\",\n", strings.Join(roles, ", "))
	b.WriteString("  \"amount\": number,\n")
	b.WriteString("  \"notes\": \"anything else worth keeping\"\n")
	b.WriteString("}\n\n")

	b.WriteString("For an expense answer:\n")
	b.WriteString("{\n")
	b.WriteString("  \"kind\": \"expense\",\n")
	b.WriteString("  \"project\": \"project name as spoken\",\n")
	b.WriteString("  \"date\": \"DD/MM/YYYY\",\n")
	b.WriteString("  \"description\": \"what was bought or paid for\",\n")
	fmt.Fprintf(&b, "  \"category\": \"one of %s\",\n", strings.Join(categories, ", "))
	b.WriteString("  \"amount\": number,\n")
	b.WriteString("  \"notes\": \"anything else worth keeping\"\n")
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "If no project can be identified, use \"project\": %q.\n", domain.DefaultProjectName)
	fmt.Fprintf(&b, "If no date is mentioned, use today. Today is %02d/%02d/%04d.\n", today.Day, int(today.Month), today.Year)
	b.WriteString("\"amount\" is a plain number in reais, without currency symbol.\n\n")

	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")

	return b.String()
}
