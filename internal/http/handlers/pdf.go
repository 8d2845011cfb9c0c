package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"quotepdf/internal/domain"
	"quotepdf/internal/http/middleware"
	"quotepdf/internal/infra/cache"
	"quotepdf/internal/infra/chrome"
	"quotepdf/internal/infra/logging"
)

// PDFService bundles the rendering engine, the optional PDF cache and the
// print settings applied to every document.
type PDFService struct {
	Engine  domain.Engine
	Cache   *cache.PDFCache
	Options domain.PrintOptions
}

// NewPDFService creates a new PDFService instance. pdfCache may be nil.
func NewPDFService(engine domain.Engine, pdfCache *cache.PDFCache, opts domain.PrintOptions) *PDFService {
	return &PDFService{
		Engine:  engine,
		Cache:   pdfCache,
		Options: opts,
	}
}

// HandleGeneratePDF renders the posted HTML into a PDF attachment.
func (svc *PDFService) HandleGeneratePDF(c *fiber.Ctx) error {
	req, err := parsePDFRequest(c)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	filename := req.ResolvedFilename()
	requestID := middleware.RequestID(c)

	var key string
	if svc.Cache != nil {
		key = cache.Key(req.HTMLContent, svc.Options)
		if cached := svc.Cache.Get(c.UserContext(), key); cached != nil {
			return sendPDF(c, filename, cached)
		}
	}

	pdf, err := domain.Render(c.UserContext(), svc.Engine, req.HTMLContent, svc.Options)
	if err != nil {
		if chrome.IsSessionInterrupted(err) {
			logging.Error("Render session interrupted", "error", err, "request_id", requestID)
		} else {
			logging.Error("Error generating PDF", "error", err, "request_id", requestID)
		}
		return err
	}

	if svc.Cache != nil {
		svc.Cache.Set(c.UserContext(), key, pdf)
	}

	logging.Info("PDF generated", "filename", filename, "bytes", len(pdf), "request_id", requestID)
	return sendPDF(c, filename, pdf)
}

// parsePDFRequest decodes a JSON body. Bodies of other content types, and
// empty ones, yield an empty request so validation reports the missing HTML.
func parsePDFRequest(c *fiber.Ctx) (domain.PDFRequest, error) {
	var req domain.PDFRequest
	if len(c.Body()) == 0 || !c.Is("json") {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, fmt.Errorf("parse request body: %w", err)
	}
	return req, nil
}

func sendPDF(c *fiber.Ctx, filename string, pdf []byte) error {
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(pdf)
}
