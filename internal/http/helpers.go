package http

import (
	"html/template"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/report"
)

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	return stripControl(strings.TrimSpace(s))
}

// stripControl drops control characters other than tab, newline and
// carriage return, leaving everything else as sent.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// templateFuncs are shared by every page. symbol is the currency prefix.
func templateFuncs(symbol string) template.FuncMap {
	return template.FuncMap{
		"money": func(m core.Money) string {
			return report.FormatAmount(m.Cents, symbol)
		},
		"signed": func(t core.Transaction) string {
			return report.SignedAmount(t, symbol)
		},
		"shortDate": report.ShortDate,
		"isIncome": func(t core.Transaction) bool {
			return t.Type == core.Income
		},
		"selected": func(a, b string) template.HTMLAttr {
			if strings.EqualFold(a, b) {
				return "selected"
			}
			return ""
		},
	}
}

// safeReturnPath keeps redirects on this site.
func safeReturnPath(ref string) string {
	if ref == "" {
		return "/"
	}
	// Referer is absolute; keep only the path and query.
	if i := strings.Index(ref, "://"); i >= 0 {
		rest := ref[i+3:]
		j := strings.IndexByte(rest, '/')
		if j < 0 {
			return "/"
		}
		ref = rest[j:]
	}
	if !strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "//") || strings.HasPrefix(ref, "/\\") {
		return "/"
	}
	return ref
}
