// Package http is the fintrack web surface: server-rendered pages, the
// JSON snapshot API, the live websocket feed and the offline shell.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"fintrack/internal/core"
)

// Client-side events carried in HX-Trigger. web/static/app.js listens for
// the last two.
const (
	eventTransactionCreated = "transaction:created"
	eventFormReset          = "form:reset"
	eventToast              = "show-notification"
)

type toastKind string

const (
	toastSuccess toastKind = "success"
	toastError   toastKind = "error"
)

// Reply collects what an htmx-aware handler answers with and writes it in
// one call. The zero status is 200.
type Reply struct {
	status int
	header http.Header
	events map[string]any
	body   string
}

func NewReply() *Reply {
	return &Reply{header: http.Header{}, events: map[string]any{}}
}

func (rp *Reply) Status(code int) *Reply {
	rp.status = code
	return rp
}

// Event queues a client-side event; detail is JSON encoded.
func (rp *Reply) Event(name string, detail any) *Reply {
	rp.events[name] = detail
	return rp
}

func (rp *Reply) TransactionCreated(t core.Transaction) *Reply {
	return rp.Event(eventTransactionCreated, map[string]string{"id": t.ID, "type": t.Type.String()})
}

func (rp *Reply) ResetForm() *Reply {
	return rp.Event(eventFormReset, struct{}{})
}

// Toast shows a transient message. Errors stay up longer.
func (rp *Reply) Toast(kind toastKind, message string) *Reply {
	ms := 3000
	if kind == toastError {
		ms = 5000
	}
	return rp.Event(eventToast, map[string]any{"type": string(kind), "message": message, "duration": ms})
}

// Navigate sends htmx to url via HX-Redirect; plain requests get a 303.
func (rp *Reply) Navigate(r *http.Request, url string) *Reply {
	if isHTMX(r) {
		rp.header.Set("HX-Redirect", url)
		return rp
	}
	rp.header.Set("Location", url)
	return rp.Status(http.StatusSeeOther)
}

func (rp *Reply) HTML(fragment string) *Reply {
	rp.header.Set("Content-Type", "text/html; charset=utf-8")
	rp.body = fragment
	return rp
}

func (rp *Reply) Send(w http.ResponseWriter) {
	for k, vs := range rp.header {
		w.Header()[k] = vs
	}
	if len(rp.events) > 0 {
		if raw, err := json.Marshal(rp.events); err == nil {
			w.Header().Set("HX-Trigger", string(raw))
		}
	}
	status := rp.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if rp.body != "" {
		_, _ = w.Write([]byte(rp.body))
	}
}

// Failure is an escaped error fragment with the given status.
func Failure(status int, message string) *Reply {
	return NewReply().Status(status).
		HTML(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
