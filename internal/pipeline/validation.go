package pipeline

import (
	"strings"

	"github.com/dvloznov/site-ledger/internal/domain"
)

// Accepted spellings for categories and roles, keyed by normalizeLabel.
// Models answer with the English enum most of the time and with the pt-BR word otherwise.
var categoryAliases = map[string]domain.Category{
	"MATERIALS":   domain.CategoryMaterials,
	"MATERIAL":    domain.CategoryMaterials,
	"MATERIAIS":   domain.CategoryMaterials,
	"TOOLS":       domain.CategoryTools,
	"TOOL":        domain.CategoryTools,
	"FERRAMENTAS": domain.CategoryTools,
	"FERRAMENTA":  domain.CategoryTools,
	"TRANSPORT":   domain.CategoryTransport,
	"TRANSPORTE":  domain.CategoryTransport,
	"RENT":        domain.CategoryRent,
	"ALUGUEL":     domain.CategoryRent,
	"OTHER":       domain.CategoryOther,
	"OUTROS":      domain.CategoryOther,
}

var roleAliases = map[string]domain.Role{
	"MASON":       domain.RoleMason,
	"PEDREIRO":    domain.RoleMason,
	"HELPER":      domain.RoleHelper,
	"AJUDANTE":    domain.RoleHelper,
	"ELECTRICIAN": domain.RoleElectrician,
	"ELETRICISTA": domain.RoleElectrician,
	"PLUMBER":     domain.RolePlumber,
	"ENCANADOR":   domain.RolePlumber,
	"LABORER":     domain.RoleLaborer,
	"SERVENTE":    domain.RoleLaborer,
	"OTHER":       domain.RoleOther,
	"OUTRO":       domain.RoleOther,
}

var kindAliases = map[string]domain.Kind{
	"EXPENSE":   domain.KindExpense,
	"GASTO":     domain.KindExpense,
	"PAYMENT":   domain.KindPayment,
	"PAGAMENTO": domain.KindPayment,
}

// MapCategory maps a model-provided category to the enum. Unknown or empty values become Other.
func MapCategory(raw string) domain.Category {
	if c, ok := categoryAliases[normalizeLabel(raw)]; ok {
		return c
	}
	return domain.CategoryOther
}

// MapRole maps a model-provided role to the enum. Unknown or empty values become Other.
func MapRole(raw string) domain.Role {
	if r, ok := roleAliases[normalizeLabel(raw)]; ok {
		return r
	}
	return domain.RoleOther
}

func mapKind(raw string) (domain.Kind, bool) {
	k, ok := kindAliases[normalizeLabel(raw)]
	return k, ok
}

// normalizeLabel normalizes a label for comparison.
// Converts to uppercase and trims whitespace for case-insensitive comparison.
func normalizeLabel(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
