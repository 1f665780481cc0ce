package credential

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"rsc.io/qr"
)

// ErrRender wraps every failure to produce a credential document.
var ErrRender = errors.New("credential render failed")

const (
	defaultIssuer   = "ALCALDÍA DE SAN DIEGO"
	defaultSubtitle = "Dirección de Participación Ciudadana y Desarrollo Social"
	pageWidth       = 210.0
	margin          = 15.0
	qrImageName     = "verification-qr"
)

type rgb struct{ r, g, b int }

var (
	navy  = rgb{0x00, 0x28, 0x55}
	green = rgb{0x4C, 0xAF, 0x50}
	grey  = rgb{0x75, 0x75, 0x75}
	teal  = rgb{0x4D, 0xB6, 0xAC}
)

// Field is one label/value pair printed on the card, in display order.
type Field struct {
	Label string
	Value string
}

// Record is everything the renderer needs to know about an approved request.
type Record struct {
	RequestID        int64
	Title            string
	Badge            string
	HolderName       string
	Highlight        Field
	Fields           []Field
	VerificationCode string
	VerificationURL  string
	ApprovedAt       time.Time
	ValidUntil       *time.Time
}

// Options configures the card layout.
type Options struct {
	Issuer      string
	Subtitle    string
	LogoPath    string
	RequireLogo bool
}

// PDFRenderer draws A4 credential cards with gofpdf.
type PDFRenderer struct {
	opts Options
}

// NewPDFRenderer constructs a renderer.
func NewPDFRenderer(opts Options) *PDFRenderer {
	if strings.TrimSpace(opts.Issuer) == "" {
		opts.Issuer = defaultIssuer
	}
	if strings.TrimSpace(opts.Subtitle) == "" {
		opts.Subtitle = defaultSubtitle
	}
	return &PDFRenderer{opts: opts}
}

// Render produces the PDF bytes for rec.
func (r *PDFRenderer) Render(rec Record) ([]byte, error) {
	if rec.VerificationURL == "" {
		return nil, fmt.Errorf("%w: verification url missing", ErrRender)
	}
	logo, err := r.logo()
	if err != nil {
		return nil, err
	}
	code, err := qr.Encode(rec.VerificationURL, qr.M)
	if err != nil {
		return nil, fmt.Errorf("%w: encode qr: %v", ErrRender, err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(rec.Title, true)
	pdf.SetAuthor(r.opts.Issuer, true)
	pdf.SetCreationDate(rec.ApprovedAt)
	pdf.AddPage()

	// header band
	fill(pdf, green)
	pdf.Rect(0, 0, pageWidth, 22, "F")
	fill(pdf, navy)
	pdf.Rect(0, 22, pageWidth, 6, "F")

	y := 34.0
	if logo != "" {
		pdf.ImageOptions(logo, margin, y, 0, 18, false, gofpdf.ImageOptions{ReadDpi: true}, 0, "")
		y += 22
	} else {
		text(pdf, navy)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetXY(margin, y)
		pdf.CellFormat(0, 8, tr(r.opts.Issuer), "", 1, "L", false, 0, "")
		y += 10
	}
	text(pdf, grey)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(margin, y)
	pdf.CellFormat(0, 6, tr(r.opts.Subtitle), "", 1, "L", false, 0, "")
	y += 12

	// title
	text(pdf, navy)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(0, y)
	pdf.CellFormat(pageWidth, 10, tr(rec.Title), "", 1, "C", false, 0, "")
	y += 12
	pdf.SetFont("Helvetica", "B", 13)
	text(pdf, rgb{0, 0, 0})
	pdf.SetXY(0, y)
	pdf.CellFormat(pageWidth, 8, tr(rec.HolderName), "", 1, "C", false, 0, "")
	y += 12

	// field grid
	colWidth := (pageWidth - 2*margin) / 2
	for i, f := range rec.Fields {
		x := margin + float64(i%2)*colWidth
		if i > 0 && i%2 == 0 {
			y += 14
		}
		pdf.SetXY(x, y)
		text(pdf, green)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(colWidth, 4, tr(f.Label), "", 2, "L", false, 0, "")
		pdf.SetX(x)
		text(pdf, rgb{0, 0, 0})
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(colWidth, 6, tr(orDash(f.Value)), "", 0, "L", false, 0, "")
	}
	y += 20

	// highlight bar
	if rec.Highlight.Label != "" {
		fill(pdf, teal)
		pdf.Rect(margin, y, pageWidth-2*margin, 12, "F")
		text(pdf, navy)
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetXY(margin, y+1)
		pdf.CellFormat(pageWidth-2*margin, 4, tr(strings.ToUpper(rec.Highlight.Label)), "", 2, "C", false, 0, "")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetX(margin)
		pdf.CellFormat(pageWidth-2*margin, 6, tr(orDash(rec.Highlight.Value)), "", 0, "C", false, 0, "")
		y += 18
	}

	// verification block
	pdf.RegisterImageOptionsReader(qrImageName, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(code.PNG()))
	pdf.ImageOptions(qrImageName, margin, y, 40, 40, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	infoX := margin + 46
	pdf.SetXY(infoX, y+2)
	text(pdf, green)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 7, tr(rec.Badge), "", 2, "L", false, 0, "")
	pdf.SetX(infoX)
	text(pdf, grey)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("N° de solicitud: %d", rec.RequestID)), "", 2, "L", false, 0, "")
	pdf.SetX(infoX)
	pdf.CellFormat(0, 5, tr("Aprobado: "+rec.ApprovedAt.Format("02/01/2006")), "", 2, "L", false, 0, "")
	if rec.ValidUntil != nil {
		pdf.SetX(infoX)
		text(pdf, navy)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 6, tr("Válido hasta: "+rec.ValidUntil.Format("02/01/2006")), "", 2, "L", false, 0, "")
	}
	pdf.SetX(infoX)
	text(pdf, grey)
	pdf.SetFont("Courier", "", 8)
	pdf.CellFormat(0, 5, rec.VerificationCode, "", 2, "L", false, 0, "")

	// footer band
	fill(pdf, navy)
	pdf.Rect(0, 282, pageWidth, 15, "F")
	fill(pdf, green)
	pdf.Rect(pageWidth*0.7, 282, pageWidth*0.3, 15, "F")

	if pdf.Err() {
		return nil, fmt.Errorf("%w: %v", ErrRender, pdf.Error())
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) logo() (string, error) {
	if r.opts.LogoPath == "" {
		if r.opts.RequireLogo {
			return "", fmt.Errorf("%w: logo required but not configured", ErrRender)
		}
		return "", nil
	}
	if _, err := os.Stat(r.opts.LogoPath); err != nil {
		if r.opts.RequireLogo {
			return "", fmt.Errorf("%w: logo %s: %v", ErrRender, r.opts.LogoPath, err)
		}
		return "", nil
	}
	return r.opts.LogoPath, nil
}

func fill(pdf *gofpdf.Fpdf, c rgb) { pdf.SetFillColor(c.r, c.g, c.b) }

func text(pdf *gofpdf.Fpdf, c rgb) { pdf.SetTextColor(c.r, c.g, c.b) }

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
