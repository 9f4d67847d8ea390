package prescription

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Document is what goes on a printed prescription.
type Document struct {
	Prescription *Prescription
	PatientName  string
	DoctorName   string
	SiteName     string
}

// RenderPDF lays out an A4 prescription using the built-in Helvetica font,
// so no font files are needed at runtime.
func RenderPDF(doc Document) ([]byte, error) {
	p := doc.Prescription
	site := doc.SiteName
	if site == "" {
		site = "CareLink"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Prescription "+p.ID.String(), true)
	pdf.SetMargins(18, 18, 18)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(site), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, "Prescription", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, 6, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(value), "", 1, "L", false, 0, "")
	}
	field("Number", p.ID.String())
	field("Issued", p.IssuedAt.UTC().Format("02 Jan 2006 15:04 MST"))
	field("Status", strings.ToUpper(p.Status))
	field("Patient", nonEmpty(doc.PatientName, p.PatientID.String()))
	field("Prescriber", nonEmpty(doc.DoctorName, p.DoctorID.String()))
	pdf.Ln(6)

	widths := []float64{52, 30, 40, 22, 30}
	headers := []string{"Drug", "Dosage", "Frequency", "Days", "Notes"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 236, 245)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, it := range p.Items {
		days := "-"
		if it.DurationDays > 0 {
			days = fmt.Sprintf("%d", it.DurationDays)
		}
		instructions := ""
		if it.Instructions != nil {
			instructions = *it.Instructions
		}
		cells := []string{it.DrugName, it.Dosage, it.Frequency, days, instructions}
		for i, v := range cells {
			pdf.CellFormat(widths[i], 7, tr(truncate(pdf, v, widths[i]-2)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if p.Notes != nil && *p.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(*p.Notes), "", "L", false)
	}

	pdf.SetY(-30)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 5, tr("Electronically issued by "+site+". Valid without signature."), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// truncate shortens s with an ellipsis until it fits width.
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
