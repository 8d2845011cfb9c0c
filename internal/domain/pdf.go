package domain

import "strings"

// DefaultFilename is used when a request does not name its PDF.
const DefaultFilename = "quote.pdf"

// A4 paper size in inches.
const (
	A4WidthInches  = 8.27
	A4HeightInches = 11.69
)

// DefaultMarginInches is 0.5cm expressed in inches.
const DefaultMarginInches = 0.5 / 2.54

// PDFRequest is the JSON body accepted by the PDF endpoint.
type PDFRequest struct {
	HTMLContent string `json:"htmlContent"`
	Filename    string `json:"filename,omitempty"`
}

// Validate rejects requests that carry no HTML.
func (r PDFRequest) Validate() error {
	if r.HTMLContent == "" {
		return ErrHTMLRequired
	}
	return nil
}

// ResolvedFilename returns the filename to advertise in Content-Disposition.
// Quotes, backslashes and control characters are dropped so the value can be
// placed inside a quoted header parameter.
func (r PDFRequest) ResolvedFilename() string {
	name := strings.Map(func(c rune) rune {
		if c == '"' || c == '\\' || c < 0x20 || c == 0x7f {
			return -1
		}
		return c
	}, r.Filename)
	if strings.TrimSpace(name) == "" {
		return DefaultFilename
	}
	return name
}

// PrintOptions controls how a loaded document is exported. Lengths are inches.
type PrintOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	MarginTop       float64
	MarginRight     float64
	MarginBottom    float64
	MarginLeft      float64
	PrintBackground bool
}

// DefaultPrintOptions is A4 with background graphics and 0.5cm margins.
func DefaultPrintOptions() PrintOptions {
	return PrintOptions{
		PaperWidth:      A4WidthInches,
		PaperHeight:     A4HeightInches,
		MarginTop:       DefaultMarginInches,
		MarginRight:     DefaultMarginInches,
		MarginBottom:    DefaultMarginInches,
		MarginLeft:      DefaultMarginInches,
		PrintBackground: true,
	}
}

// UniformMargin returns a copy of o with all four margins set to m.
func (o PrintOptions) UniformMargin(m float64) PrintOptions {
	o.MarginTop, o.MarginRight, o.MarginBottom, o.MarginLeft = m, m, m, m
	return o
}
