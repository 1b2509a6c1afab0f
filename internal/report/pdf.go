package report

import (
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

var (
	columns = []struct {
		title string
		width float64
		align string
	}{
		{"Date", 28, "L"},
		{"Type", 22, "L"},
		{"Category", 38, "L"},
		{"Description", 72, "L"},
		{"Amount", 30, "R"},
	}

	headerFill = [3]int{22, 163, 74}
)

const (
	rowHeight    = 7
	bottomMargin = 15
)

// Render writes r as an A4 PDF.
func Render(w io.Writer, r Report) error {
	pdf := layout(r)
	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func layout(r Report) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.Title, true)
	pdf.SetCreator("fintrack", true)
	if !r.GeneratedAt.IsZero() {
		pdf.SetCreationDate(r.GeneratedAt)
	}
	pdf.SetAutoPageBreak(false, bottomMargin)
	tr := translator(pdf)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, tr(r.Title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr("Period: "+r.Period), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, tr("Filter: "+r.Filter), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr("Total Income: "+r.Income), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, tr("Total Expenses: "+r.Expenses), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, tr("Net Balance: "+r.Net), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	tableHeader(pdf)
	_, pageH := pdf.GetPageSize()
	pdf.SetFont("Helvetica", "", 9)
	for _, row := range r.Rows {
		if pdf.GetY()+rowHeight > pageH-bottomMargin {
			pdf.AddPage()
			tableHeader(pdf)
			pdf.SetFont("Helvetica", "", 9)
		}
		cells := []string{row.Date, row.Type, row.Category, row.Description, row.Amount}
		for i, c := range columns {
			pdf.CellFormat(c.width, rowHeight, fit(pdf, tr(cells[i]), c.width-2), "B", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf
}

func tableHeader(pdf *fpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(headerFill[0], headerFill[1], headerFill[2])
	pdf.SetTextColor(255, 255, 255)
	for _, c := range columns {
		pdf.CellFormat(c.width, rowHeight+1, c.title, "", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

// translator maps UTF-8 to the core fonts' cp1252. Currency symbols that
// code page lacks are spelled out first.
func translator(pdf *fpdf.Fpdf) func(string) string {
	cp := pdf.UnicodeTranslatorFromDescriptor("")
	spell := strings.NewReplacer("₹", "Rs. ", "₺", "TRY ", "₽", "RUB ", "₩", "KRW ")
	return func(s string) string { return cp(spell.Replace(s)) }
}

// fit truncates s with an ellipsis until it fits width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
