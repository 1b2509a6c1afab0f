package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/filter"
)

const dateLayout = "2006-01-02"

// FilterQuery is the raw filter form as sent by the history and reports
// pages, kept to refill the inputs.
type FilterQuery struct {
	Search   string
	Type     string
	Category string
	Start    string
	End      string
}

// ParseFilterQuery reads search, type, category, start and end. Dates that
// do not parse as YYYY-MM-DD are dropped.
func ParseFilterQuery(query url.Values) FilterQuery {
	q := FilterQuery{
		Search:   sanitizeInput(query.Get("search")),
		Type:     strings.ToLower(sanitizeInput(query.Get("type"))),
		Category: stripControl(query.Get("category")),
		Start:    strings.TrimSpace(query.Get("start")),
		End:      strings.TrimSpace(query.Get("end")),
	}
	if q.Type == "" {
		q.Type = filter.All
	}
	if strings.TrimSpace(q.Category) == "" {
		q.Category = filter.All
	}
	if _, err := time.Parse(dateLayout, q.Start); err != nil {
		q.Start = ""
	}
	if _, err := time.Parse(dateLayout, q.End); err != nil {
		q.End = ""
	}
	return q
}

// Spec converts the query to a filter. The end date is widened to the last
// instant of that day.
func (q FilterQuery) Spec() filter.Spec {
	spec := filter.Spec{Search: q.Search, Type: q.Type, Category: q.Category}
	if t, err := time.Parse(dateLayout, q.Start); err == nil {
		spec.Start = t
	}
	if t, err := time.Parse(dateLayout, q.End); err == nil {
		spec.End = filter.EndOfDay(t)
	}
	return spec
}

// Encode renders the query back to a URL query string.
func (q FilterQuery) Encode() string {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" && val != filter.All {
			v.Set(k, val)
		}
	}
	set("search", q.Search)
	set("type", q.Type)
	set("category", q.Category)
	set("start", q.Start)
	set("end", q.End)
	return v.Encode()
}

// URL appends the encoded query to path.
func (q FilterQuery) URL(path string) string {
	if enc := q.Encode(); enc != "" {
		return path + "?" + enc
	}
	return path
}

const maxBodyBytes = 64 << 10

// formValues reads a POST body that is either form encoded or a flat JSON
// object and returns it as url.Values.
func formValues(r *http.Request) (url.Values, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return url.Values{}, nil
	}
	if raw[0] != '{' {
		return url.ParseQuery(string(raw))
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	vals := make(url.Values, len(obj))
	for k, v := range obj {
		vals.Set(k, scalarString(v))
	}
	return vals, nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseDraft reads the creation form. Values are trimmed and stripped of
// control characters; validation is left to core.
func ParseDraft(r *http.Request) (core.Draft, error) {
	vals, err := formValues(r)
	if err != nil {
		return core.Draft{}, err
	}
	field := func(k string) string { return strings.TrimSpace(sanitizeInput(vals.Get(k))) }
	return core.Draft{
		Type:        field("type"),
		Amount:      field("amount"),
		Category:    field("category"),
		Description: field("description"),
	}, nil
}

// parseForm parses r's form and returns a 400 reply when it is malformed.
func parseForm(r *http.Request) *Reply {
	if err := r.ParseForm(); err != nil {
		return Failure(http.StatusBadRequest, "Invalid request format")
	}
	return nil
}
