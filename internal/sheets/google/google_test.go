package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-1", SheetName: "Transactions"}, log.Discard(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{}, log.Discard())
	if err == nil || err.Error() != "missing spreadsheet id" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x"}, log.Discard())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_InvalidCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x", CredentialsJSON: []byte("not-json")}, log.Discard())
	if err == nil {
		t.Fatal("expected error with invalid JSON")
	}
}

func TestClient_Append(t *testing.T) {
	var gotValues [][]any
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":append") {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		gotQuery = r.URL.RawQuery
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotValues = body.Values
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"updates":{"updatedRange":"Transactions!A5:G5","updatedRows":1}}`))
	})

	ref, err := c.Append(context.Background(), ports.Row{
		ID: "tx-1", UserID: "u1", Date: "2024-01-10 02:35:03", Type: "Income",
		Category: "Salary", Description: "Pay", Amount: decimal.New(100000, -2),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "Transactions!A5:G5" {
		t.Errorf("ref = %q", ref)
	}
	if len(gotValues) != 1 || len(gotValues[0]) != 7 || gotValues[0][6] != "1000.00" {
		t.Errorf("unexpected values: %v", gotValues)
	}
	if !strings.Contains(gotQuery, "valueInputOption=USER_ENTERED") {
		t.Errorf("missing valueInputOption in %q", gotQuery)
	}
}

func TestClient_AppendRejectsInvalidRow(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	if _, err := c.Append(context.Background(), ports.Row{}); err == nil {
		t.Fatal("expected validation error")
	}
	if called {
		t.Error("invalid rows must not reach the API")
	}
}

func TestClient_AppendAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})
	_, err := c.Append(context.Background(), ports.Row{ID: "a", UserID: "u", Type: "Income"})
	if err == nil || !strings.Contains(err.Error(), "append to Transactions!A:G") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_MirroredIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "unexpected", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"range":"Transactions!A1:A3","values":[["ID"],["tx-1"],["tx-2"]]}`))
	})
	ids, err := c.MirroredIDs(context.Background())
	if err != nil {
		t.Fatalf("MirroredIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v", ids)
	}
	if _, ok := ids["tx-2"]; !ok {
		t.Errorf("tx-2 missing from %v", ids)
	}
}
