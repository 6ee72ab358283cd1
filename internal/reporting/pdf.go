// Package reporting renders analysis reports as PDF documents.
package reporting

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/example/sentinel/internal/escalation"
	"github.com/example/sentinel/internal/model"
)

var (
	colorPrimary     = [3]int{30, 58, 95}
	colorAccent      = [3]int{46, 204, 113}
	colorWarning     = [3]int{241, 196, 15}
	colorOrange      = [3]int{230, 126, 34}
	colorDanger      = [3]int{231, 76, 60}
	colorTextDark    = [3]int{44, 62, 80}
	colorTextMuted   = [3]int{127, 140, 141}
	colorBackground  = [3]int{248, 249, 250}
	colorTableHeader = [3]int{30, 58, 95}
	colorTableAlt    = [3]int{241, 245, 249}
	colorGridLine    = [3]int{220, 220, 220}
)

// ReportData is everything rendered into one document.
type ReportData struct {
	Report       model.Report
	ArtifactType string
	Origin       string
	GeneratedAt  time.Time
}

// PDFGenerator renders reports with fpdf.
type PDFGenerator struct {
	compress bool
}

// NewPDFGenerator creates a generator with stream compression enabled.
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{compress: true}
}

// Generate creates the PDF for data.
func (g *PDFGenerator) Generate(data ReportData) ([]byte, error) {
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(g.compress)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle("Sentinel Security Report "+data.Report.ID, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	g.writeCoverPage(pdf, tr, data)

	pdf.AddPage()
	g.addPageHeader(pdf, tr, data, "Executive Summary")
	g.writeSummary(pdf, tr, data)

	pdf.AddPage()
	g.addPageHeader(pdf, tr, data, "Findings")
	g.writeFindings(pdf, tr, data.Report.Findings)

	if data.Report.Signals != nil {
		pdf.AddPage()
		g.addPageHeader(pdf, tr, data, "Local Signals")
		g.writeSignals(pdf, tr, *data.Report.Signals)
	}

	g.addPageNumbers(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) writeCoverPage(pdf *fpdf.Fpdf, tr func(string) string, data ReportData) {
	pdf.AddPage()
	pageWidth, pageHeight := pdf.GetPageSize()

	setFill(pdf, colorPrimary)
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(50)
	pdf.SetFont("Arial", "B", 32)
	setText(pdf, colorPrimary)
	pdf.CellFormat(0, 15, "SENTINEL", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	setText(pdf, colorTextMuted)
	pdf.CellFormat(0, 8, "Security Artifact Analysis", "", 1, "C", false, 0, "")

	pdf.SetY(100)
	pdf.SetFont("Arial", "B", 28)
	setText(pdf, colorTextDark)
	pdf.CellFormat(0, 12, "Security Risk Report", "", 1, "C", false, 0, "")

	pdf.SetY(130)
	setFill(pdf, colorBackground)
	setDraw(pdf, colorGridLine)
	pdf.RoundedRect(40, pdf.GetY(), pageWidth-80, 50, 3, "1234", "FD")

	pdf.SetY(pdf.GetY() + 10)
	pdf.SetFont("Arial", "B", 11)
	setText(pdf, colorTextMuted)
	pdf.CellFormat(0, 7, "ARTIFACT", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 16)
	setText(pdf, colorTextDark)
	pdf.CellFormat(0, 10, tr(truncate(data.Report.ID, 60)), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	setText(pdf, colorTextMuted)
	pdf.CellFormat(0, 7, tr(strings.ToUpper(data.ArtifactType)), "", 1, "C", false, 0, "")

	pdf.SetY(pageHeight - 50)
	pdf.SetFont("Arial", "", 10)
	setText(pdf, colorTextMuted)
	pdf.CellFormat(0, 6, "Generated: "+data.GeneratedAt.Format("January 2, 2006 at 15:04 MST"), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Analysed: "+data.Report.Timestamp.Format("January 2, 2006 at 15:04 MST"), "", 1, "C", false, 0, "")

	setFill(pdf, colorPrimary)
	pdf.Rect(0, pageHeight-8, pageWidth, 8, "F")
}

func (g *PDFGenerator) addPageHeader(pdf *fpdf.Fpdf, tr func(string) string, data ReportData, section string) {
	pageWidth, _ := pdf.GetPageSize()

	setDraw(pdf, colorPrimary)
	pdf.SetLineWidth(0.5)
	pdf.Line(20, 15, pageWidth-20, 15)

	pdf.SetY(18)
	pdf.SetFont("Arial", "B", 9)
	setText(pdf, colorPrimary)
	pdf.CellFormat(0, 5, "SENTINEL SECURITY REPORT", "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	setText(pdf, colorTextMuted)
	pdf.CellFormat(0, 5, tr(truncate(data.Report.ID, 40)), "", 1, "R", false, 0, "")

	pdf.SetY(30)
	pdf.SetFont("Arial", "B", 18)
	setText(pdf, colorTextDark)
	pdf.CellFormat(0, 10, section, "", 1, "L", false, 0, "")
	pdf.Ln(5)
}

func (g *PDFGenerator) writeSummary(pdf *fpdf.Fpdf, tr func(string) string, data ReportData) {
	r := data.Report
	level := escalation.LevelFor(r.OverallScore, r.Status)
	color := levelColor(level)
	pageWidth, _ := pdf.GetPageSize()

	y := pdf.GetY()
	setFill(pdf, color)
	pdf.RoundedRect(20, y, pageWidth-40, 28, 3, "1234", "F")

	pdf.SetXY(25, y+5)
	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(60, 10, fmt.Sprintf("%d / 100", r.OverallScore), "", 0, "L", false, 0, "")
	pdf.CellFormat(50, 10, r.Status, "", 0, "C", false, 0, "")
	pdf.CellFormat(0, 10, string(level)+" RISK", "", 1, "R", false, 0, "")

	pdf.SetX(25)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, "overall score  |  deployment status  |  risk level", "", 1, "L", false, 0, "")

	pdf.SetY(y + 36)
	pdf.SetFont("Arial", "B", 12)
	setText(pdf, colorTextDark)
	pdf.CellFormat(0, 8, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, tr(r.Summary), "", "L", false)
	pdf.Ln(6)

	counts := map[model.Severity]int{}
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Findings by severity", "", 1, "L", false, 0, "")

	severities := []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityInfo}
	cardWidth := (pageWidth - 40) / float64(len(severities))
	y = pdf.GetY()
	for i, sev := range severities {
		x := 20 + float64(i)*cardWidth
		setFill(pdf, colorBackground)
		setDraw(pdf, colorGridLine)
		pdf.RoundedRect(x+1, y, cardWidth-2, 20, 2, "1234", "FD")

		pdf.SetXY(x, y+2)
		pdf.SetFont("Arial", "B", 14)
		setText(pdf, severityColor(sev))
		pdf.CellFormat(cardWidth, 8, fmt.Sprintf("%d", counts[sev]), "", 0, "C", false, 0, "")

		pdf.SetXY(x, y+11)
		pdf.SetFont("Arial", "", 8)
		setText(pdf, colorTextMuted)
		pdf.CellFormat(cardWidth, 5, strings.ToUpper(string(sev)), "", 0, "C", false, 0, "")
	}
	pdf.SetY(y + 28)

	if data.Origin != "" {
		pdf.SetFont("Arial", "I", 9)
		setText(pdf, colorTextMuted)
		pdf.CellFormat(0, 6, tr("["+data.Origin+"]"), "", 1, "L", false, 0, "")
	}
}

func (g *PDFGenerator) writeFindings(pdf *fpdf.Fpdf, tr func(string) string, findings []model.Finding) {
	if len(findings) == 0 {
		pdf.SetFont("Arial", "", 11)
		setText(pdf, colorTextMuted)
		pdf.CellFormat(0, 8, "No findings were reported.", "", 1, "L", false, 0, "")
		return
	}

	colWidths := []float64{38, 20, 62, 50}
	headers := []string{"Capability", "Severity", "Type", "Location"}

	header := func() {
		setFill(pdf, colorTableHeader)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Arial", "B", 8)
		for i, h := range headers {
			pdf.CellFormat(colWidths[i], 7, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	header()

	fill := false
	for _, f := range findings {
		if pdf.GetY() > 250 {
			pdf.AddPage()
			pdf.SetY(25)
			header()
		}
		if fill {
			setFill(pdf, colorTableAlt)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}

		pdf.SetFont("Arial", "", 8)
		setText(pdf, colorTextDark)
		pdf.CellFormat(colWidths[0], 6, tr(truncate(f.Capability, 24)), "1", 0, "L", fill, 0, "")

		setText(pdf, severityColor(f.Severity))
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(colWidths[1], 6, strings.ToUpper(string(f.Severity)), "1", 0, "C", fill, 0, "")

		pdf.SetFont("Arial", "", 8)
		setText(pdf, colorTextDark)
		pdf.CellFormat(colWidths[2], 6, tr(truncate(f.Type, 40)), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(colWidths[3], 6, tr(truncate(f.Location, 32)), "1", 1, "L", fill, 0, "")

		text := f.Description
		if f.Suggestion != "" {
			text += "\nSuggestion: " + f.Suggestion
		}
		pdf.SetFont("Arial", "", 8)
		setText(pdf, colorTextMuted)
		pdf.MultiCell(170, 4.5, tr(text), "LRB", "L", fill)
		fill = !fill
	}
}

func (g *PDFGenerator) writeSignals(pdf *fpdf.Fpdf, tr func(string) string, bundle model.SignalBundle) {
	an := bundle.Analytics

	pdf.SetFont("Arial", "", 10)
	setText(pdf, colorTextDark)
	pdf.CellFormat(0, 6, fmt.Sprintf("Engine: %s    Signals: %d    Mean confidence: %.3f", bundle.Engine, an.TotalSignals, an.AvgConfidence), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	if len(bundle.Signals) == 0 {
		setText(pdf, colorTextMuted)
		pdf.CellFormat(0, 6, "No local signals were raised.", "", 1, "L", false, 0, "")
	} else {
		colWidths := []float64{50, 50, 20, 50}
		setFill(pdf, colorTableHeader)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Arial", "B", 8)
		for i, h := range []string{"Type", "Subtype", "Conf.", "Evidence"} {
			pdf.CellFormat(colWidths[i], 7, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 8)
		fill := false
		for _, s := range bundle.Signals {
			if fill {
				setFill(pdf, colorTableAlt)
			} else {
				pdf.SetFillColor(255, 255, 255)
			}
			setText(pdf, colorTextDark)
			pdf.CellFormat(colWidths[0], 6, s.Type, "1", 0, "L", fill, 0, "")
			pdf.CellFormat(colWidths[1], 6, s.Subtype, "1", 0, "L", fill, 0, "")
			pdf.CellFormat(colWidths[2], 6, fmt.Sprintf("%.2f", s.Confidence), "1", 0, "C", fill, 0, "")
			pdf.CellFormat(colWidths[3], 6, tr(truncate(s.Evidence, 34)), "1", 1, "L", fill, 0, "")
			fill = !fill
		}
	}
	pdf.Ln(8)

	g.drawHistogram(pdf, an.ConfidenceHistogram)

	if len(an.KeywordDistribution) > 0 {
		pdf.SetFont("Arial", "B", 12)
		setText(pdf, colorTextDark)
		pdf.CellFormat(0, 8, "Security keywords", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, kw := range an.KeywordDistribution {
			pdf.CellFormat(60, 5, kw.Keyword, "", 0, "L", false, 0, "")
			pdf.CellFormat(20, 5, fmt.Sprintf("%d", kw.Count), "", 1, "R", false, 0, "")
		}
	}
}

func (g *PDFGenerator) drawHistogram(pdf *fpdf.Fpdf, buckets []model.ConfidenceBucket) {
	if len(buckets) == 0 {
		return
	}
	pdf.SetFont("Arial", "B", 12)
	setText(pdf, colorTextDark)
	pdf.CellFormat(0, 8, "Confidence distribution", "", 1, "L", false, 0, "")

	maxCount := 1
	for _, b := range buckets {
		maxCount = max(maxCount, b.Count)
	}

	const barMax = 100.0
	pdf.SetFont("Arial", "", 8)
	for _, b := range buckets {
		y := pdf.GetY()
		setText(pdf, colorTextMuted)
		pdf.CellFormat(25, 6, b.Range, "", 0, "L", false, 0, "")
		width := barMax * float64(b.Count) / float64(maxCount)
		if width > 0 {
			setFill(pdf, colorPrimary)
			pdf.Rect(45, y+1, width, 4, "F")
		}
		pdf.SetX(45 + barMax + 5)
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", b.Count), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

// addPageNumbers adds page numbers to all pages except the first (cover).
func (g *PDFGenerator) addPageNumbers(pdf *fpdf.Fpdf) {
	pdf.SetAutoPageBreak(false, 0)

	totalPages := pdf.PageCount()
	for i := 2; i <= totalPages; i++ {
		pdf.SetPage(i)
		pageWidth, pageHeight := pdf.GetPageSize()

		pdf.SetY(pageHeight - 15)
		pdf.SetFont("Arial", "", 8)
		setText(pdf, colorTextMuted)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of %d", i-1, totalPages-1), "", 0, "C", false, 0, "")

		setDraw(pdf, colorGridLine)
		pdf.SetLineWidth(0.3)
		pdf.Line(20, pageHeight-20, pageWidth-20, pageHeight-20)
	}
}

func levelColor(level model.RiskLevel) [3]int {
	switch level {
	case model.RiskCritical:
		return colorDanger
	case model.RiskHigh:
		return colorOrange
	case model.RiskMedium:
		return colorWarning
	default:
		return colorAccent
	}
}

func severityColor(sev model.Severity) [3]int {
	switch sev {
	case model.SeverityCritical:
		return colorDanger
	case model.SeverityHigh:
		return colorOrange
	case model.SeverityMedium:
		return colorWarning
	case model.SeverityLow:
		return colorAccent
	default:
		return colorTextMuted
	}
}

func setFill(pdf *fpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }
func setText(pdf *fpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setDraw(pdf *fpdf.Fpdf, c [3]int) { pdf.SetDrawColor(c[0], c[1], c[2]) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
