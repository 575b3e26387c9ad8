package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// ErrNotRegistered is returned by a Registry that has no entry for a name.
var ErrNotRegistered = errors.New("project not registered")

// discardTimeout bounds the cleanup of a spreadsheet whose initialization failed.
const discardTimeout = 30 * time.Second

// RegistryEntry is one project known to the registry.
type RegistryEntry struct {
	CanonicalName string
	Spreadsheet   sheets.Spreadsheet
	CreatedAt     time.Time
}

// Registry remembers which spreadsheet backs each canonical project name.
type Registry interface {
	Lookup(ctx context.Context, canonicalName string) (*sheets.Spreadsheet, error)
	Register(ctx context.Context, canonicalName string, s *sheets.Spreadsheet) error
	Forget(ctx context.Context, canonicalName string) error
}

// Resolver finds or creates the spreadsheet of a project.
type Resolver struct {
	backend  sheets.Backend
	registry Registry
	locks    *keyLock
}

// NewResolver builds a resolver. registry may be nil.
func NewResolver(backend sheets.Backend, registry Registry) *Resolver {
	return &Resolver{
		backend:  backend,
		registry: registry,
		locks:    newKeyLock(),
	}
}

// Resolve returns the spreadsheet for canonicalName, creating and initializing it
// on first use. Concurrent calls for the same name in this process yield one spreadsheet.
func (r *Resolver) Resolve(ctx context.Context, canonicalName string) (*sheets.Spreadsheet, error) {
	if canonicalName == "" {
		canonicalName = domain.Normalize(domain.DefaultProjectName)
	}
	project := domain.Project{CanonicalName: canonicalName}
	log := logger.FromContext(ctx).With().Str("project", canonicalName).Logger()

	unlock := r.locks.Lock(canonicalName)
	defer unlock()

	if r.registry != nil {
		s, err := r.registry.Lookup(ctx, canonicalName)
		switch {
		case err == nil:
			current, err := r.backend.Open(ctx, s.ID)
			switch {
			case err == nil:
				repaired, err := r.repair(ctx, current, canonicalName)
				if err != nil {
					return nil, domain.Wrap(domain.ErrResourceCreation, fmt.Errorf("Resolve: repair %q: %w", current.Title, err))
				}
				if repaired {
					r.register(ctx, canonicalName, current)
				}
				log.Debug().Str("spreadsheet_id", current.ID).Msg("project resolved from registry")
				return current, nil
			case errors.Is(err, sheets.ErrNotFound):
				log.Warn().Str("spreadsheet_id", s.ID).Msg("registered spreadsheet no longer exists")
				r.forget(ctx, canonicalName)
			default:
				return nil, domain.Wrap(domain.ErrResourceCreation, fmt.Errorf("Resolve: open %s: %w", s.ID, err))
			}
		case errors.Is(err, ErrNotRegistered):
		default:
			log.Warn().Err(err).Msg("registry lookup failed, falling back to backend")
		}
	}

	s, err := r.backend.FindByTitle(ctx, project.Title())
	switch {
	case err == nil:
		if _, err := r.repair(ctx, s, canonicalName); err != nil {
			return nil, domain.Wrap(domain.ErrResourceCreation, fmt.Errorf("Resolve: repair %q: %w", s.Title, err))
		}
		r.register(ctx, canonicalName, s)
		log.Debug().Str("spreadsheet_id", s.ID).Msg("project spreadsheet found")
		return s, nil
	case errors.Is(err, sheets.ErrNotFound):
	default:
		return nil, domain.Wrap(domain.ErrResourceCreation, fmt.Errorf("Resolve: find %q: %w", project.Title(), err))
	}

	s, err = r.create(ctx, project)
	if err != nil {
		return nil, domain.Wrap(domain.ErrResourceCreation, err)
	}
	r.register(ctx, canonicalName, s)
	log.Info().
		Str("spreadsheet_id", s.ID).
		Str("url", s.URL).
		Msg("project spreadsheet created")
	return s, nil
}

func (r *Resolver) create(ctx context.Context, project domain.Project) (*sheets.Spreadsheet, error) {
	s, err := r.backend.CreateSpreadsheet(ctx, project.Title(), SheetSpecs())
	if err != nil {
		return nil, fmt.Errorf("create: create spreadsheet %q: %w", project.Title(), err)
	}
	for _, l := range layouts {
		if err := r.initSheet(ctx, s.ID, l, project.CanonicalName); err != nil {
			return nil, r.discard(ctx, s, fmt.Errorf("create: %w", err))
		}
	}
	return s, nil
}

// discard deletes a spreadsheet whose initialization failed, so that no later
// Resolve finds it without its banner and header rows.
func (r *Resolver) discard(ctx context.Context, s *sheets.Spreadsheet, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()
	if err := r.backend.DeleteSpreadsheet(ctx, s.ID); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).
			Str("spreadsheet_id", s.ID).
			Msg("failed to delete partially initialized spreadsheet")
		return fmt.Errorf("%w (delete %s: %v)", cause, s.ID, err)
	}
	return cause
}

// repair adds and initializes the sheets missing from an existing spreadsheet and
// reports whether it added any. Existing sheets are left untouched.
func (r *Resolver) repair(ctx context.Context, s *sheets.Spreadsheet, canonicalName string) (bool, error) {
	log := logger.FromContext(ctx)
	repaired := false
	for _, l := range layouts {
		if s.HasSheet(l.spec.Name) {
			continue
		}
		log.Warn().
			Str("spreadsheet_id", s.ID).
			Str("sheet", l.spec.Name).
			Msg("adding missing sheet")
		if err := r.backend.AddSheet(ctx, s.ID, l.spec); err != nil {
			return repaired, fmt.Errorf("add sheet %q: %w", l.spec.Name, err)
		}
		if err := r.initSheet(ctx, s.ID, l, canonicalName); err != nil {
			return repaired, err
		}
		s.Sheets = append(s.Sheets, l.spec.Name)
		repaired = true
	}
	return repaired, nil
}

func (r *Resolver) initSheet(ctx context.Context, id string, l sheetLayout, projectName string) error {
	name := l.spec.Name
	rows := [][]any{{l.bannerText(projectName)}}
	if l.header != nil {
		rows = append(rows, l.header)
	}
	if err := r.backend.WriteCells(ctx, id, name, "A1", rows); err != nil {
		return fmt.Errorf("sheet %q: write banner: %w", name, err)
	}
	for _, block := range l.body {
		if err := r.backend.WriteCells(ctx, id, name, block.anchor, block.rows); err != nil {
			return fmt.Errorf("sheet %q: write %s: %w", name, block.anchor, err)
		}
	}

	formats := []sheets.CellFormat{
		{Range: "A1:" + l.lastCol + "1", Bold: true, FontSize: 14, Background: bannerColor, Merge: true},
	}
	if l.header != nil {
		formats = append(formats, sheets.CellFormat{
			Range: "A2:" + l.lastCol + "2", Bold: true, FontColor: white, Background: bannerColor, Center: true,
		})
	}
	formats = append(formats, l.formats...)
	for _, f := range formats {
		if err := r.backend.FormatCells(ctx, id, name, f); err != nil {
			return fmt.Errorf("sheet %q: format %s: %w", name, f.Range, err)
		}
	}

	if err := r.backend.SetColumnWidths(ctx, id, name, l.widths); err != nil {
		return fmt.Errorf("sheet %q: column widths: %w", name, err)
	}
	return nil
}

func (r *Resolver) register(ctx context.Context, canonicalName string, s *sheets.Spreadsheet) {
	if r.registry == nil {
		return
	}
	if err := r.registry.Register(ctx, canonicalName, s); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("project", canonicalName).
			Msg("failed to register project spreadsheet")
	}
}

func (r *Resolver) forget(ctx context.Context, canonicalName string) {
	if err := r.registry.Forget(ctx, canonicalName); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("project", canonicalName).
			Msg("failed to forget stale project spreadsheet")
	}
}
