package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

var _ ledger.Registry = (*Registry)(nil)

// Registry implements ledger.Registry. The canonical name is the primary key,
// so one name maps to exactly one spreadsheet.
type Registry struct {
	db *DB
}

// NewRegistry creates a new Registry
func NewRegistry(db *DB) *Registry {
	return &Registry{db: db}
}

// Lookup returns the registered spreadsheet or ledger.ErrNotRegistered.
func (r *Registry) Lookup(ctx context.Context, canonicalName string) (*sheets.Spreadsheet, error) {
	query := `
		SELECT spreadsheet_id, title, url, sheets
		FROM projects
		WHERE canonical_name = ?
	`

	var (
		s        sheets.Spreadsheet
		rawSheet string
	)
	err := r.db.QueryRowContext(ctx, query, canonicalName).Scan(&s.ID, &s.Title, &s.URL, &rawSheet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up project: %w", err)
	}
	if err := json.Unmarshal([]byte(rawSheet), &s.Sheets); err != nil {
		return nil, fmt.Errorf("failed to decode sheets of %q: %w", canonicalName, err)
	}
	return &s, nil
}

// Register records the spreadsheet of a project. Registering the same pair twice
// is a no-op; a conflicting pair returns ErrAlreadyRegistered.
func (r *Registry) Register(ctx context.Context, canonicalName string, s *sheets.Spreadsheet) error {
	names := s.Sheets
	if names == nil {
		names = []string{}
	}
	rawSheets, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode sheets: %w", err)
	}

	query := `
		INSERT INTO projects (canonical_name, spreadsheet_id, title, url, sheets, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query, canonicalName, s.ID, s.Title, s.URL, string(rawSheets), time.Now().UTC())
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("failed to register project: %w", err)
	}

	existing, lookupErr := r.Lookup(ctx, canonicalName)
	if lookupErr == nil && existing.ID == s.ID {
		return r.updateSheets(ctx, canonicalName, string(rawSheets))
	}
	return fmt.Errorf("%w: %q -> %s", ErrAlreadyRegistered, canonicalName, s.ID)
}

func (r *Registry) updateSheets(ctx context.Context, canonicalName, rawSheets string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE projects SET sheets = ? WHERE canonical_name = ?`, rawSheets, canonicalName)
	if err != nil {
		return fmt.Errorf("failed to update project sheets: %w", err)
	}
	return nil
}

// Forget removes the entry of a project. Forgetting an unknown name is a no-op.
func (r *Registry) Forget(ctx context.Context, canonicalName string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE canonical_name = ?`, canonicalName); err != nil {
		return fmt.Errorf("failed to forget project: %w", err)
	}
	return nil
}

// List returns every registered project, oldest first.
func (r *Registry) List(ctx context.Context) ([]ledger.RegistryEntry, error) {
	query := `
		SELECT canonical_name, spreadsheet_id, title, url, sheets, created_at
		FROM projects
		ORDER BY created_at ASC, canonical_name ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var entries []ledger.RegistryEntry
	for rows.Next() {
		var (
			e        ledger.RegistryEntry
			rawSheet string
		)
		if err := rows.Scan(&e.CanonicalName, &e.Spreadsheet.ID, &e.Spreadsheet.Title, &e.Spreadsheet.URL, &rawSheet, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(rawSheet), &e.Spreadsheet.Sheets); err != nil {
			return nil, fmt.Errorf("failed to decode sheets of %q: %w", e.CanonicalName, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return entries, nil
}
