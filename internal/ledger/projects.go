package ledger

import (
	"context"
	"fmt"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// ProjectInfo is one project spreadsheet as shown to users.
type ProjectInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListProjects returns every project spreadsheet held by the backend, by title.
func ListProjects(ctx context.Context, backend sheets.Backend) ([]ProjectInfo, error) {
	all, err := backend.ListSpreadsheets(ctx, domain.ProjectTitlePrefix)
	if err != nil {
		return nil, fmt.Errorf("ListProjects: %w", err)
	}
	projects := make([]ProjectInfo, 0, len(all))
	for _, s := range all {
		name, ok := domain.ProjectNameFromTitle(s.Title)
		if !ok {
			continue
		}
		projects = append(projects, ProjectInfo{Name: name, URL: s.URL})
	}
	return projects, nil
}
