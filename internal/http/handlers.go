package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"fintrack/internal/calc"
	"fintrack/internal/core"
	"fintrack/internal/filter"
	"fintrack/internal/log"
	"fintrack/internal/report"
)

const recentCount = 5

type dashboardPage struct {
	page
	Totals       core.Totals
	IncomeShare  int
	ExpenseShare int
	Recent       []core.Transaction
	HasRecords   bool
	LoadFailed   bool
}

type historyPage struct {
	page
	Action       string
	Query        FilterQuery
	Categories   []string
	Transactions []core.Transaction
	Totals       core.Totals
}

type reportsPage struct {
	page
	Action       string
	Query        FilterQuery
	Categories   []string
	Totals       core.Totals
	Count        int
	Period       string
	Filter       string
	DownloadURL  string
	Transactions []core.Transaction
}

type addPage struct {
	page
	Type        string
	Amount      string
	Category    string
	Description string
	Suggestions []string
}

type calculatorPage struct {
	page
	Expr   string
	Result string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	data := dashboardPage{page: s.newPage(r, "Dashboard", "dashboard")}

	records, err := s.records(r.Context(), user.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard load failed", log.FieldUserID, user.ID, log.FieldError, err)
		data.LoadFailed = true
		data.Error = "Could not load your transactions."
	}
	data.Totals = core.Aggregate(records)
	data.IncomeShare, data.ExpenseShare = data.Totals.Shares()
	data.Recent = filter.Recent(records, recentCount)
	data.HasRecords = len(records) > 0
	s.render(w, r, http.StatusOK, "dashboard.html", data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	q := ParseFilterQuery(r.URL.Query())
	data := historyPage{page: s.newPage(r, "History", "history"), Action: "/history", Query: q}

	records, err := s.records(r.Context(), user.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "History load failed", log.FieldUserID, user.ID, log.FieldError, err)
		data.Error = "Could not load your transactions."
	}
	data.Categories = filter.Categories(records)
	data.Transactions = filter.Apply(records, q.Spec())
	data.Totals = core.Aggregate(data.Transactions)
	s.render(w, r, http.StatusOK, "history.html", data)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	q := ParseFilterQuery(r.URL.Query())
	spec := q.Spec()
	data := reportsPage{
		page:   s.newPage(r, "Reports", "reports"),
		Action: "/reports",
		Query:  q,
		Period: report.Period(spec.Start, spec.End),
		Filter: report.Describe(spec),
	}

	records, err := s.records(r.Context(), user.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Reports load failed", log.FieldUserID, user.ID, log.FieldError, err)
		data.Error = "Could not load your transactions."
	}
	data.Categories = filter.Categories(records)
	data.Transactions = filter.Apply(records, spec)
	data.Totals = core.Aggregate(data.Transactions)
	data.Count = len(data.Transactions)
	if data.Count > 0 {
		data.DownloadURL = q.URL("/reports/pdf")
	}
	s.render(w, r, http.StatusOK, "reports.html", data)
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentReport)
	user := currentUser(r)

	records, err := s.records(ctx, user.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Report load failed", log.FieldUserID, user.ID, log.FieldError, err)
		Failure(http.StatusInternalServerError, "Could not load your transactions.").Send(w)
		return
	}

	now := s.now()
	rep, err := report.Build(records, ParseFilterQuery(r.URL.Query()).Spec(), s.cfg.CurrencySymbol, now)
	if errors.Is(err, report.ErrNothingToExport) {
		Failure(http.StatusConflict, "No transactions match these filters, so there is nothing to export.").Send(w)
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "Report build failed", log.FieldError, err)
		Failure(http.StatusInternalServerError, "Could not build the report.").Send(w)
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, rep); err != nil {
		logger.ErrorContext(ctx, "PDF render failed", log.FieldError, err)
		Failure(http.StatusInternalServerError, "Could not render the report.").Send(w)
		return
	}

	logger.InfoContext(ctx, "Report exported", log.FieldUserID, user.ID, log.FieldCount, len(rep.Rows))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(now)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) newAddPage(r *http.Request, typ string) addPage {
	t, err := core.ParseTransactionType(typ)
	if err != nil {
		t = core.Expense
	}
	return addPage{
		page:        s.newPage(r, "Add transaction", "add"),
		Type:        t.String(),
		Suggestions: core.SuggestedCategories(t),
	}
}

func (s *Server) handleAddPage(w http.ResponseWriter, r *http.Request) {
	data := s.newAddPage(r, r.URL.Query().Get("type"))
	if isHTMX(r) && r.URL.Query().Get("fragment") == "suggestions" {
		s.renderFragment(w, r, http.StatusOK, "add.html", "suggestions", data)
		return
	}
	s.render(w, r, http.StatusOK, "add.html", data)
}

// handleCreateTransaction runs the creation flow. A rejected draft is
// answered with 422 and the form refilled; nothing is stored.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	draft, err := ParseDraft(r)
	if err != nil {
		Failure(http.StatusBadRequest, "Invalid request format").Send(w)
		return
	}
	user := currentUser(r)

	t, err := s.deps.Transactions.Create(ctx, user.ID, draft)
	if err != nil {
		if isDraftError(err) {
			data := s.newAddPage(r, draft.Type)
			data.Amount, data.Category, data.Description = draft.Amount, draft.Category, draft.Description
			data.Error = draftMessage(err)
			s.renderFragment(w, r, http.StatusUnprocessableEntity, "add.html", "add-form", data)
			return
		}
		log.FromContext(ctx).ErrorContext(ctx, "Transaction create failed", log.FieldUserID, user.ID, log.FieldError, err)
		Failure(http.StatusInternalServerError, "Could not save the transaction. Please try again.").Send(w)
		return
	}

	data := s.newAddPage(r, t.Type.String())
	data.Notice = t.Type.Label() + " of " + report.FormatAmount(t.Amount.Cents, s.cfg.CurrencySymbol) + " added."
	resp := NewReply().
		TransactionCreated(t).
		ResetForm().
		Toast(toastSuccess, data.Notice)
	var buf bytes.Buffer
	if err := s.templates["add.html"].ExecuteTemplate(&buf, "add-form", data); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Fragment execution failed", "template", "add-form", log.FieldError, err)
	}
	resp.Status(http.StatusCreated).HTML(buf.String()).Send(w)
}

func isDraftError(err error) bool {
	for _, target := range []error{
		core.ErrMissingAmount, core.ErrMissingCategory, core.ErrMissingDescription,
		core.ErrInvalidAmount, core.ErrInvalidType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func draftMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrMissingAmount), errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrMissingDescription):
		return "Please fill in all fields."
	case errors.Is(err, core.ErrInvalidAmount):
		return "Please enter a valid, non-negative amount."
	case errors.Is(err, core.ErrInvalidType):
		return "Choose income or expense."
	default:
		return "Could not save the transaction."
	}
}

func (s *Server) handleCalculatorPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "calculator.html", calculatorPage{page: s.newPage(r, "Calculator", "calculator")})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if resp := parseForm(r); resp != nil {
		resp.Send(w)
		return
	}
	data := calculatorPage{page: s.newPage(r, "Calculator", "calculator"), Expr: sanitizeInput(r.PostForm.Get("expr"))}
	v, err := calc.Eval(data.Expr)
	status := http.StatusOK
	switch {
	case errors.Is(err, calc.ErrDivisionByZero):
		data.Error, status = "Cannot divide by zero.", http.StatusUnprocessableEntity
	case errors.Is(err, calc.ErrEmpty):
		data.Error, status = "Enter an expression.", http.StatusUnprocessableEntity
	case err != nil:
		data.Error, status = "Error", http.StatusUnprocessableEntity
	default:
		data.Result = calc.Format(v)
	}
	if isHTMX(r) {
		s.renderFragment(w, r, status, "calculator.html", "calc-result", data)
		return
	}
	s.render(w, r, status, "calculator.html", data)
}
