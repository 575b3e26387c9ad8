package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/site-ledger/internal/domain"
)

var dateLayouts = []string{"02/01/2006", "2006-01-02", "2/1/2006"}

// DecodeRecord validates raw model output and maps it to a Record.
// Every failure is an extraction error; nothing is guessed except the
// documented defaults (date = today, project = General, category/role = Other).
func DecodeRecord(raw string, today civil.Date) (*domain.Record, error) {
	rec, err := decodeRecord(raw, today)
	if err != nil {
		return nil, domain.Wrap(domain.ErrExtraction, fmt.Errorf("DecodeRecord: %w", err))
	}
	return rec, nil
}

func decodeRecord(raw string, today civil.Date) (*domain.Record, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, errors.New("empty model output")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w (raw response: %q)", err, truncate(raw, 200))
	}
	if obj == nil {
		return nil, errors.New("model output is null, want an object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}

	kindStr, err := getStringField(obj, "kind", true)
	if err != nil {
		return nil, err
	}
	kind, ok := mapKind(kindStr)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kindStr)
	}

	amount, err := getAmountField(obj, "amount")
	if err != nil {
		return nil, err
	}

	project, err := getOptionalStringField(obj, "project")
	if err != nil {
		return nil, err
	}
	dateStr, err := getOptionalStringField(obj, "date")
	if err != nil {
		return nil, err
	}
	notes, err := getOptionalStringField(obj, "notes")
	if err != nil {
		return nil, err
	}

	rec := &domain.Record{
		Kind:        kind,
		ProjectName: domain.DefaultProjectName,
		Date:        today,
		Amount:      amount,
	}
	if project != nil {
		rec.ProjectName = *project
	}
	if notes != nil {
		rec.Notes = *notes
	}
	if dateStr != nil {
		d, err := parseDate(*dateStr)
		if err != nil {
			return nil, err
		}
		rec.Date = d
	}

	switch kind {
	case domain.KindExpense:
		desc, err := getStringField(obj, "description", true)
		if err != nil {
			return nil, err
		}
		category, err := getOptionalStringField(obj, "category")
		if err != nil {
			return nil, err
		}
		rec.Description = strings.TrimSpace(desc)
		rec.Category = domain.CategoryOther
		if category != nil {
			rec.Category = MapCategory(*category)
		}
	case domain.KindPayment:
		worker, err := getStringField(obj, "worker_name", true)
		if err != nil {
			return nil, err
		}
		role, err := getOptionalStringField(obj, "role")
		if err != nil {
			return nil, err
		}
		rec.WorkerName = strings.TrimSpace(worker)
		rec.Role = domain.RoleOther
		if role != nil {
			rec.Role = MapRole(*role)
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseDate(s string) (civil.Date, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("invalid date %q", s)
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

// getAmountField reads a required non-negative amount. Numeric strings such as
// "R$ 1.234,56" or "350,00" are accepted.
func getAmountField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero, fmt.Errorf("missing required field %q", key)
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case string:
		d, err = parseAmountString(val)
	default:
		return decimal.Zero, fmt.Errorf("field %q has type %T, want number", key, v)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %v is not a number", key, v)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("field %q is negative: %s", key, d)
	}
	return d, nil
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		// pt-BR: '.' groups thousands and ',' is the decimal separator.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
