package gsheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/dvloznov/site-ledger/internal/sheets"
)

type recorded struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

type fakeGoogle struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r *http.Request, body []byte)
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: body})
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	f.handle(w, r, body)
}

func (f *fakeGoogle) find(pred func(recorded) bool) *recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.requests {
		if pred(f.requests[i]) {
			return &f.requests[i]
		}
	}
	return nil
}

func newTestBackend(t *testing.T, share []string, handle func(w http.ResponseWriter, r *http.Request, body []byte)) (*Backend, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{handle: handle}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	b, err := NewWithOptions(context.Background(), share,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return b, fake
}

const spreadsheetJSON = `{
  "spreadsheetId": "s1",
  "spreadsheetUrl": "https://docs.google.com/spreadsheets/d/s1",
  "properties": {"title": "Obra - Casa Azul"},
  "sheets": [
    {"properties": {"sheetId": 0, "title": "Expenses"}},
    {"properties": {"sheetId": 11, "title": "Payments"}},
    {"properties": {"sheetId": 22, "title": "Summary"}}
  ]
}`

func TestFindByTitle(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		switch {
		case r.URL.Path == "/files":
			_, _ = w.Write([]byte(`{"files":[{"id":"s0","name":"Obra - Casa Azul 2"},{"id":"s1","name":"Obra - Casa Azul"}]}`))
		case r.URL.Path == "/v4/spreadsheets/s1":
			_, _ = w.Write([]byte(spreadsheetJSON))
		default:
			http.NotFound(w, r)
		}
	})

	s, err := b.FindByTitle(context.Background(), "Obra - Casa Azul")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, "Obra - Casa Azul", s.Title)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/s1", s.URL)
	assert.Equal(t, []string{"Expenses", "Payments", "Summary"}, s.Sheets)

	list := fake.find(func(r recorded) bool { return r.Path == "/files" })
	require.NotNil(t, list)
	q := list.Query["q"][0]
	assert.Contains(t, q, "name = 'Obra - Casa Azul'")
	assert.Contains(t, q, "trashed = false")
	assert.Contains(t, q, spreadsheetMIME)
}

func TestFindByTitleNotFound(t *testing.T) {
	b, _ := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		_, _ = w.Write([]byte(`{"files":[]}`))
	})
	_, err := b.FindByTitle(context.Background(), "Obra - Nada")
	assert.True(t, errors.Is(err, sheets.ErrNotFound))
}

func TestFindByTitleAPIError(t *testing.T) {
	b, _ := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	})
	_, err := b.FindByTitle(context.Background(), "Obra - X")
	require.Error(t, err)
	assert.False(t, errors.Is(err, sheets.ErrNotFound))
}

func TestCreateSpreadsheetShares(t *testing.T) {
	b, fake := newTestBackend(t, []string{"owner@example.com"}, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets":
			_, _ = w.Write([]byte(spreadsheetJSON))
		case r.Method == http.MethodPost && r.URL.Path == "/files/s1/permissions":
			_, _ = w.Write([]byte(`{"id":"p1"}`))
		default:
			http.NotFound(w, r)
		}
	})

	tabs := []sheets.SheetSpec{{Name: "Expenses", Rows: 1000, Cols: 5}, {Name: "Payments", Rows: 1000, Cols: 5}, {Name: "Summary", Rows: 100, Cols: 5}}
	s, err := b.CreateSpreadsheet(context.Background(), "Obra - Casa Azul", tabs)
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, []string{"Expenses", "Payments", "Summary"}, s.Sheets)

	create := fake.find(func(r recorded) bool { return r.Path == "/v4/spreadsheets" })
	require.NotNil(t, create)
	var req sheetsapi.Spreadsheet
	require.NoError(t, json.Unmarshal(create.Body, &req))
	assert.Equal(t, "Obra - Casa Azul", req.Properties.Title)
	require.Len(t, req.Sheets, 3)
	assert.Equal(t, int64(1000), req.Sheets[0].Properties.GridProperties.RowCount)

	perm := fake.find(func(r recorded) bool { return r.Path == "/files/s1/permissions" })
	require.NotNil(t, perm)
	assert.Contains(t, string(perm.Body), "owner@example.com")
	assert.Equal(t, "false", perm.Query.Get("sendNotificationEmail"))

	// cached sheet IDs: formatting needs no extra Get
	id, err := b.sheetID(context.Background(), "s1", "Payments")
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
}

func TestCreateSpreadsheetShareFailureIsNotFatal(t *testing.T) {
	b, _ := newTestBackend(t, []string{"owner@example.com"}, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		if r.URL.Path == "/v4/spreadsheets" {
			_, _ = w.Write([]byte(spreadsheetJSON))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := b.CreateSpreadsheet(context.Background(), "Obra - Casa Azul", []sheets.SheetSpec{{Name: "Expenses"}})
	require.NoError(t, err)
}

func TestAppendRow(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		if strings.HasSuffix(r.URL.Path, ":append") {
			_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Expenses!A7:E7","updatedRows":1}}`))
			return
		}
		http.NotFound(w, r)
	})

	row, err := b.AppendRow(context.Background(), "s1", "Expenses", []any{"15/03/2024", "Cement", "Materiais", 200.0, "=1+1"})
	require.NoError(t, err)
	assert.Equal(t, 7, row)

	req := fake.find(func(r recorded) bool { return strings.HasSuffix(r.Path, ":append") })
	require.NotNil(t, req)
	assert.Equal(t, "/v4/spreadsheets/s1/values/'Expenses'!A1:append", req.Path)
	assert.Equal(t, "RAW", req.Query.Get("valueInputOption"))
	assert.Equal(t, "INSERT_ROWS", req.Query.Get("insertDataOption"))

	var body sheetsapi.ValueRange
	require.NoError(t, json.Unmarshal(req.Body, &body))
	require.Len(t, body.Values, 1)
	assert.Equal(t, []any{"15/03/2024", "Cement", "Materiais", 200.0, "=1+1"}, body.Values[0])
}

func TestOpen(t *testing.T) {
	b, _ := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		switch r.URL.Path {
		case "/files/s1":
			_, _ = w.Write([]byte(`{"id":"s1","trashed":false}`))
		case "/v4/spreadsheets/s1":
			_, _ = w.Write([]byte(spreadsheetJSON))
		case "/files/old":
			_, _ = w.Write([]byte(`{"id":"old","trashed":true}`))
		case "/files/gone":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found: gone."}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	ctx := context.Background()

	s, err := b.Open(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Expenses", "Payments", "Summary"}, s.Sheets)

	_, err = b.Open(ctx, "old")
	assert.ErrorIs(t, err, sheets.ErrNotFound)
	_, err = b.Open(ctx, "gone")
	assert.ErrorIs(t, err, sheets.ErrNotFound)

	_, err = b.Open(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, sheets.ErrNotFound)
}

func TestDeleteSpreadsheetTrashes(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets":
			_, _ = w.Write([]byte(spreadsheetJSON))
		case r.Method == http.MethodPatch && r.URL.Path == "/files/s1":
			_, _ = w.Write([]byte(`{"id":"s1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
		}
	})
	ctx := context.Background()

	_, err := b.CreateSpreadsheet(ctx, "Obra - Casa Azul", []sheets.SheetSpec{{Name: "Expenses"}})
	require.NoError(t, err)
	require.NoError(t, b.DeleteSpreadsheet(ctx, "s1"))

	req := fake.find(func(r recorded) bool { return r.Method == http.MethodPatch })
	require.NotNil(t, req)
	assert.JSONEq(t, `{"trashed":true}`, string(req.Body))

	b.mu.Lock()
	_, cached := b.sheetIDs["s1"]
	b.mu.Unlock()
	assert.False(t, cached)

	assert.ErrorIs(t, b.DeleteSpreadsheet(ctx, "missing"), sheets.ErrNotFound)
}

func TestWriteCells(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		_, _ = w.Write([]byte(`{}`))
	})
	err := b.WriteCells(context.Background(), "s1", "Summary", "A3", [][]any{{"Total Gastos:", "=SUM(Expenses!D:D)"}})
	require.NoError(t, err)

	req := fake.find(func(r recorded) bool { return r.Method == http.MethodPut })
	require.NotNil(t, req)
	assert.Equal(t, "/v4/spreadsheets/s1/values/'Summary'!A3", req.Path)
	assert.Equal(t, "USER_ENTERED", req.Query.Get("valueInputOption"))
	assert.Contains(t, string(req.Body), "=SUM(Expenses!D:D)")
}

func TestFormatCellsFetchesSheetID(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v4/spreadsheets/s1":
			_, _ = w.Write([]byte(spreadsheetJSON))
		case r.URL.Path == "/v4/spreadsheets/s1:batchUpdate":
			_, _ = w.Write([]byte(`{"spreadsheetId":"s1"}`))
		default:
			http.NotFound(w, r)
		}
	})

	err := b.FormatCells(context.Background(), "s1", "Summary", sheets.CellFormat{
		Range: "A1:B1", Bold: true, FontSize: 14, Merge: true,
		Background: &sheets.Color{Red: 0.2, Green: 0.38, Blue: 0.57},
	})
	require.NoError(t, err)

	req := fake.find(func(r recorded) bool { return strings.HasSuffix(r.Path, ":batchUpdate") })
	require.NotNil(t, req)
	var batch sheetsapi.BatchUpdateSpreadsheetRequest
	require.NoError(t, json.Unmarshal(req.Body, &batch))
	require.Len(t, batch.Requests, 2)
	merge := batch.Requests[0].MergeCells
	require.NotNil(t, merge)
	assert.Equal(t, int64(22), merge.Range.SheetId)
	assert.Equal(t, int64(0), merge.Range.StartRowIndex)
	assert.Equal(t, int64(1), merge.Range.EndRowIndex)
	assert.Equal(t, int64(2), merge.Range.EndColumnIndex)
	repeat := batch.Requests[1].RepeatCell
	require.NotNil(t, repeat)
	assert.True(t, repeat.Cell.UserEnteredFormat.TextFormat.Bold)
	assert.Equal(t, int64(14), repeat.Cell.UserEnteredFormat.TextFormat.FontSize)
	assert.Contains(t, repeat.Fields, "userEnteredFormat.backgroundColor")
}

func TestFormatCellsUnknownSheet(t *testing.T) {
	b, _ := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		_, _ = w.Write([]byte(spreadsheetJSON))
	})
	err := b.FormatCells(context.Background(), "s1", "Nope", sheets.CellFormat{Range: "A1", Bold: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Nope" not found`)
}

func TestSetColumnWidths(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(spreadsheetJSON))
			return
		}
		_, _ = w.Write([]byte(`{"spreadsheetId":"s1"}`))
	})
	require.NoError(t, b.SetColumnWidths(context.Background(), "s1", "Payments", []int{100, 200}))

	req := fake.find(func(r recorded) bool { return strings.HasSuffix(r.Path, ":batchUpdate") })
	require.NotNil(t, req)
	var batch sheetsapi.BatchUpdateSpreadsheetRequest
	require.NoError(t, json.Unmarshal(req.Body, &batch))
	require.Len(t, batch.Requests, 2)
	dim := batch.Requests[1].UpdateDimensionProperties
	assert.Equal(t, int64(11), dim.Range.SheetId)
	assert.Equal(t, int64(1), dim.Range.StartIndex)
	assert.Equal(t, int64(200), dim.Properties.PixelSize)
	assert.Equal(t, "COLUMNS", dim.Range.Dimension)
}

func TestAddSheetCachesID(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		_, _ = w.Write([]byte(`{"replies":[{"addSheet":{"properties":{"sheetId":99,"title":"Summary"}}}]}`))
	})
	require.NoError(t, b.AddSheet(context.Background(), "s1", sheets.SheetSpec{Name: "Summary", Rows: 100, Cols: 5}))

	id, err := b.sheetID(context.Background(), "s1", "Summary")
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
	assert.Len(t, fake.requests, 1)
}

func TestListSpreadsheetsFiltersPrefix(t *testing.T) {
	b, fake := newTestBackend(t, nil, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"nextPageToken":"p2","files":[{"id":"a","name":"Obra - Casa","webViewLink":"https://a"},{"id":"x","name":"Minha Obra - Velha"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"files":[{"id":"b","name":"Obra - Loja","webViewLink":"https://b"}]}`))
	})

	list, err := b.ListSpreadsheets(context.Background(), "Obra - ")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Obra - Casa", list[0].Title)
	assert.Equal(t, "https://a", list[0].URL)
	assert.Equal(t, "b", list[1].ID)
	assert.Len(t, fake.requests, 2)
}

func TestRowOf(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"Expenses!A7:E7", 7, false},
		{"'Obra X'!A12:E12", 12, false},
		{"B3", 3, false},
		{"Expenses!", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := rowOf(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `'Obra - D\'Ávila'`, quoteQuery("Obra - D'Ávila"))
	assert.Equal(t, `'a\\b'`, quoteQuery(`a\b`))
	assert.Equal(t, `'It''s'`, quoteSheet("It's"))
}

func TestFormatRequestsNumberOnly(t *testing.T) {
	reqs := formatRequests(&sheetsapi.GridRange{SheetId: 1}, sheets.CellFormat{Range: "D7", NumberPattern: "R$ #,##0.00"})
	require.Len(t, reqs, 1)
	rc := reqs[0].RepeatCell
	require.NotNil(t, rc)
	assert.Equal(t, "userEnteredFormat.numberFormat", rc.Fields)
	assert.Equal(t, "CURRENCY", rc.Cell.UserEnteredFormat.NumberFormat.Type)

	assert.Empty(t, formatRequests(&sheetsapi.GridRange{}, sheets.CellFormat{Range: "A1"}))
}
