// Package zugferd extracts structured invoice data from hybrid PDF/XML
// invoices (ZUGFeRD, Factur-X, XRechnung).
//
// Trading-partner software produces several slightly different schema
// dialects for the same semantic fields. Each field is therefore resolved
// through an ordered chain of structural queries — ZUGFeRD 2.0 / Factur-X
// namespaces first, ZUGFeRD 1.0 second, a namespace-agnostic local-name
// match last. The first query yielding a non-empty result wins. Picking a
// slightly wrong field is accepted as a lesser risk than extracting nothing.
package zugferd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// ErrContainerUnreadable is returned when the bytes are not a readable PDF.
var ErrContainerUnreadable = errors.New("zugferd: unreadable PDF container")

// ErrNoXML is returned when the PDF carries no embedded invoice XML.
var ErrNoXML = errors.New("zugferd: no embedded invoice XML found")

// ErrMalformedXML is returned when the embedded payload is not parseable XML.
var ErrMalformedXML = errors.New("zugferd: malformed invoice XML")

// Invoice holds the fields extracted from one invoice document.
// A nil Date with a non-empty DateRaw means a date string was found but
// could not be parsed; DateRaw is kept for the audit trail either way.
type Invoice struct {
	Date           *time.Time
	DateRaw        string
	RecipientEmail string
	InvoiceNumber  string
	BuyerName      string
	XML            string
}

// Parse extracts the embedded XML from pdfData and resolves all invoice
// fields. filename is used for logging only. A missing payload fails with
// ErrNoXML, a payload that does not parse as a tree fails with
// ErrMalformedXML; an unparsable date alone does not fail the record.
func Parse(pdfData []byte, filename string) (*Invoice, error) {
	xmlContent, err := ExtractXML(pdfData)
	if err != nil {
		return nil, err
	}
	if xmlContent == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoXML, filename)
	}

	doc, err := xmlquery.Parse(strings.NewReader(xmlContent))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}

	inv := &Invoice{XML: xmlContent}

	if raw := firstMatch(doc, dateQueries); raw != "" {
		inv.DateRaw = raw
		if d, ok := parseDateString(raw); ok {
			inv.Date = &d
		} else {
			slog.Warn("zugferd: unparsable invoice date", "file", filename, "raw", raw)
		}
	}

	inv.RecipientEmail = firstEmailMatch(doc, emailQueries)
	inv.InvoiceNumber = firstMatch(doc, numberQueries)
	inv.BuyerName = firstMatch(doc, nameQueries)

	slog.Debug("zugferd: parsed invoice",
		"file", filename,
		"date", inv.DateRaw,
		"recipient", inv.RecipientEmail,
		"number", inv.InvoiceNumber)

	return inv, nil
}
