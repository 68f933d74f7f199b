// Package reporting builds a PDF summary of one agent session.
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/nightjar/internal/core/ports"
)

// PDFExporter writes session summaries to PDF files under a configured
// directory, one file per export, named by session start time.
type PDFExporter struct {
	dir string
}

// NewPDFExporter creates an exporter writing into dir. The directory is
// created on first Export if missing.
func NewPDFExporter(dir string) *PDFExporter {
	return &PDFExporter{dir: dir}
}

// Export renders snapshot to a PDF file and returns its path.
func (e *PDFExporter) Export(ctx context.Context, snapshot ports.ReportSnapshot) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, snapshot)
	e.addSummary(pdf, snapshot)
	e.addHandshakes(pdf, snapshot)
	e.addInteractions(pdf, snapshot)
	e.addFooter(pdf, snapshot)

	name := fmt.Sprintf("session-%s.pdf", snapshot.StartedAt.UTC().Format("20060102-150405"))
	path := filepath.Join(e.dir, name)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, s ports.ReportSnapshot) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, "Session Report", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Mode: %s", s.Mode), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Started: %s", s.StartedAt.Format("2006-01-02 15:04:05")), "", 1, "L", false, 0, "")
	if !s.EndedAt.IsZero() {
		pdf.CellFormat(0, 6, fmt.Sprintf("Duration: %s", s.EndedAt.Sub(s.StartedAt).Round(time.Second)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addSummary(pdf *gofpdf.Fpdf, s ports.ReportSnapshot) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Summary", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(70, 7, "Handshakes captured:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%d", len(s.Handshakes)), "", 1, "L", false, 0, "")
	pdf.CellFormat(70, 7, "Interaction attempts:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%d", len(s.Interactions)), "", 1, "L", false, 0, "")
	pdf.CellFormat(70, 7, "Final mood:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, s.FinalMood.String(), "", 1, "L", false, 0, "")
	pdf.CellFormat(70, 7, "Last reward:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("%.4f", s.LastReward), "", 1, "L", false, 0, "")
	pdf.Ln(8)
}

func (e *PDFExporter) addHandshakes(pdf *gofpdf.Fpdf, s ports.ReportSnapshot) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Captured Handshakes", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(s.Handshakes) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No handshakes captured", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(50, 8, "AP", "1", 0, "L", true, 0, "")
	pdf.CellFormat(80, 8, "File", "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 8, "Captured At", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, h := range s.Handshakes {
		pdf.CellFormat(50, 7, h.APMac, "1", 0, "L", false, 0, "")
		pdf.CellFormat(80, 7, h.Filename, "1", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, h.CapturedAt.Format("2006-01-02 15:04:05"), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addInteractions(pdf *gofpdf.Fpdf, s ports.ReportSnapshot) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Interaction History", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(s.Interactions) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No interactions recorded", "", 1, "L", false, 0, "")
		return
	}

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(60, 60, 60)
	for i, entry := range s.Interactions {
		if i >= 50 {
			pdf.CellFormat(0, 6, fmt.Sprintf("... and %d more", len(s.Interactions)-i), "", 1, "L", false, 0, "")
			break
		}
		if pdf.GetY() > 270 {
			pdf.AddPage()
		}
		pdf.CellFormat(0, 6, fmt.Sprintf("%s  %-8s  %s  %s", entry.At, entry.Kind, entry.BSSID, entry.Outcome), "", 1, "L", false, 0, "")
	}
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, s ports.ReportSnapshot) {
	pdf.SetY(-20)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, "Generated by nightjar", "", 1, "C", false, 0, "")
}

var _ ports.ReportExporter = (*PDFExporter)(nil)
