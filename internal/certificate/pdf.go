package certificate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/xelth-com/examroom/internal/quiz"
)

// PDFOptions holds configuration for PDF generation
type PDFOptions struct {
	// UTF-8 TrueType font used for all text; without it names are transliterated to Latin
	FontPath string
}

// RenderPDF creates an A4 landscape certificate with a QR code carrying the certificate number
func RenderPDF(r quiz.Results, id string, opts PDFOptions) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	family := "Arial"
	name := r.UserName
	enc := func(s string) string { return s }
	if opts.FontPath != "" {
		pdf.AddUTF8Font("cert", "", opts.FontPath)
		pdf.AddUTF8Font("cert", "B", opts.FontPath)
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("load font %s: %w", opts.FontPath, err)
		}
		family = "cert"
	} else {
		name = Transliterate(name)
		// core fonts expect cp1252 bytes
		enc = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.AddPage()

	// A4 landscape dimensions
	pageWidth, pageHeight := 297.0, 210.0

	// Frame
	pdf.SetDrawColor(197, 160, 89)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, pageWidth-20, pageHeight-20, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(14, 14, pageWidth-28, pageHeight-28, "D")

	center := func(y, size float64, style, text string) {
		pdf.SetFont(family, style, size)
		pdf.SetXY(0, y)
		pdf.CellFormat(pageWidth, size*0.5, enc(text), "", 0, "C", false, 0, "")
	}

	pdf.SetTextColor(197, 160, 89)
	center(28, 10, "B", strings.ToUpper(Issuer))
	pdf.SetTextColor(24, 24, 27)
	center(42, 28, "B", Title)
	center(66, 12, "", "This certifies that")
	center(80, 26, "B", name)
	center(98, 12, "", fmt.Sprintf("has passed the examination with %d / %d (%.0f%%)", r.Score, r.TotalQuestions, r.Percent()))

	pdf.SetTextColor(113, 113, 122)
	for i, c := range Curriculum {
		center(114+float64(i)*7, 10, "", c)
	}
	center(148, 10, "", Citation)

	// Footer: date left, certificate number right
	pdf.SetTextColor(24, 24, 27)
	pdf.SetFont(family, "", 10)
	pdf.SetXY(30, pageHeight-38)
	pdf.CellFormat(80, 5, enc("Date: "+r.Date), "", 0, "L", false, 0, "")
	pdf.SetXY(pageWidth-110, pageHeight-38)
	pdf.CellFormat(50, 5, enc("No. "+id), "", 0, "R", false, 0, "")

	// QR code with the certificate number
	qrPng, err := qrcode.Encode(qrContent(r, id), qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}
	imgOptions := gofpdf.ImageOptions{
		ImageType: "PNG",
		ReadDpi:   true,
	}
	pdf.RegisterImageOptionsReader("qr", imgOptions, bytes.NewReader(qrPng))
	qrSize := 32.0
	pdf.ImageOptions("qr", pageWidth-30-qrSize, pageHeight-30-qrSize-12, qrSize, qrSize, false, imgOptions, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func qrContent(r quiz.Results, id string) string {
	return fmt.Sprintf("%s|%s|%d/%d|%s", id, r.UserName, r.Score, r.TotalQuestions, r.Date)
}

// WritePDF renders the certificate into dir and returns the file path
func WritePDF(dir string, r quiz.Results, id string, opts PDFOptions) (string, error) {
	data, err := RenderPDF(r, id, opts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create certificate dir: %w", err)
	}
	path := filepath.Join(dir, "certificate-"+id+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write certificate: %w", err)
	}
	return path, nil
}
