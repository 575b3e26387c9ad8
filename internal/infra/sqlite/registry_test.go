package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/sheets"
	"github.com/dvloznov/site-ledger/internal/sheets/sheetstest"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := NewTestDB(t)
	require.NoError(t, db.RunMigrations())

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='projects'").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewTestDB(t))

	_, err := reg.Lookup(ctx, "Obra Do Joao")
	require.ErrorIs(t, err, ledger.ErrNotRegistered)

	s := &sheets.Spreadsheet{ID: "s1", Title: "Project: Obra Do Joao", URL: "https://x/s1", Sheets: []string{"Expenses", "Payments", "Summary"}}
	require.NoError(t, reg.Register(ctx, "Obra Do Joao", s))

	got, err := reg.Lookup(ctx, "Obra Do Joao")
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestRegistryRejectsConflicts(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewTestDB(t))

	require.NoError(t, reg.Register(ctx, "Obra A", &sheets.Spreadsheet{ID: "s1", Title: "Project: Obra A"}))

	// same pair again: refreshes the sheet list
	require.NoError(t, reg.Register(ctx, "Obra A", &sheets.Spreadsheet{ID: "s1", Title: "Project: Obra A", Sheets: []string{"Expenses"}}))
	got, err := reg.Lookup(ctx, "Obra A")
	require.NoError(t, err)
	require.Equal(t, []string{"Expenses"}, got.Sheets)

	err = reg.Register(ctx, "Obra A", &sheets.Spreadsheet{ID: "s2", Title: "Project: Obra A"})
	require.True(t, errors.Is(err, ErrAlreadyRegistered), "got %v", err)

	err = reg.Register(ctx, "Obra B", &sheets.Spreadsheet{ID: "s1", Title: "Project: Obra B"})
	require.True(t, errors.Is(err, ErrAlreadyRegistered), "got %v", err)
}

func TestRegistryList(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewTestDB(t))

	entries, err := reg.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, reg.Register(ctx, "Obra A", &sheets.Spreadsheet{ID: "s1", Title: "Project: Obra A"}))
	require.NoError(t, reg.Register(ctx, "Obra B", &sheets.Spreadsheet{ID: "s2", Title: "Project: Obra B"}))

	entries, err = reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Obra A", entries[0].CanonicalName)
	require.Equal(t, "s2", entries[1].Spreadsheet.ID)
	require.False(t, entries[0].CreatedAt.IsZero())
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, NewRegistry(db).Register(ctx, "Obra A", &sheets.Spreadsheet{ID: "s1"}))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := NewRegistry(db).Lookup(ctx, "Obra A")
	require.NoError(t, err)
	require.Equal(t, "s1", got.ID)
}

func TestRegistryForget(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewTestDB(t))

	require.NoError(t, reg.Register(ctx, "Obra A", &sheets.Spreadsheet{ID: "s1", Title: "Project: Obra A"}))
	require.NoError(t, reg.Forget(ctx, "Obra A"))
	require.NoError(t, reg.Forget(ctx, "Obra A"))

	_, err := reg.Lookup(ctx, "Obra A")
	require.ErrorIs(t, err, ledger.ErrNotRegistered)

	// the name and the spreadsheet ID are both free again
	require.NoError(t, reg.Register(ctx, "Obra A", &sheets.Spreadsheet{ID: "s2", Title: "Project: Obra A"}))
	require.NoError(t, reg.Register(ctx, "Obra B", &sheets.Spreadsheet{ID: "s1", Title: "Project: Obra B"}))
}

func TestResolverReplacesDeletedSpreadsheet(t *testing.T) {
	ctx := context.Background()
	backend := sheetstest.New()
	reg := NewRegistry(NewTestDB(t))
	resolver := ledger.NewResolver(backend, reg)

	first, err := resolver.Resolve(ctx, "Obra Do Joao")
	require.NoError(t, err)
	require.NoError(t, backend.DeleteSpreadsheet(ctx, first.ID))

	second, err := resolver.Resolve(ctx, "Obra Do Joao")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 2, backend.Creates)

	registered, err := reg.Lookup(ctx, "Obra Do Joao")
	require.NoError(t, err)
	require.Equal(t, second.ID, registered.ID)
}

func TestResolverUsesRegistry(t *testing.T) {
	ctx := context.Background()
	backend := sheetstest.New()
	resolver := ledger.NewResolver(backend, NewRegistry(NewTestDB(t)))

	first, err := resolver.Resolve(ctx, "Obra Do Joao")
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, "Obra Do Joao")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, backend.Creates)
	require.Equal(t, 1, backend.Finds, "second resolve is served by the registry")

	rec := &domain.Record{
		Kind:        domain.KindExpense,
		Date:        civil.Date{Year: 2024, Month: 3, Day: 15},
		Description: "Cement",
		Category:    domain.CategoryMaterials,
		Amount:      decimal.NewFromInt(200),
	}
	res, err := ledger.NewAppender(backend).Append(ctx, second, rec)
	require.NoError(t, err)
	require.Equal(t, ledger.SheetExpenses, res.SheetName)
}
