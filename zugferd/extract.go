package zugferd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Embedded filenames used by the known invoice profiles. Matching is
// case-insensitive and falls back to any *.xml attachment.
var invoiceXMLNames = []string{
	"factur-x.xml",
	"zugferd-invoice.xml",
	"xrechnung.xml",
	"invoice.xml",
}

// ExtractXML returns the embedded invoice XML from a PDF, or "" when the
// container has no embedded-files name tree or no matching entry. Only an
// unreadable container is an error.
func ExtractXML(pdfData []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdfData), conf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContainerUnreadable, err)
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContainerUnreadable, err)
	}

	namesObj, found := rootDict.Find("Names")
	if !found {
		return "", nil
	}
	namesDict, err := ctx.DereferenceDict(namesObj)
	if err != nil || namesDict == nil {
		return "", nil
	}

	efObj, found := namesDict.Find("EmbeddedFiles")
	if !found {
		return "", nil
	}
	efDict, err := ctx.DereferenceDict(efObj)
	if err != nil || efDict == nil {
		return "", nil
	}

	return findInvoiceXML(ctx, efDict)
}

// findInvoiceXML walks an embedded-files name tree node. Leaf nodes carry a
// Names array of (string, filespec) pairs, inner nodes a Kids array.
func findInvoiceXML(ctx *model.Context, node types.Dict) (string, error) {
	if kidsObj, found := node.Find("Kids"); found {
		kids, err := ctx.DereferenceArray(kidsObj)
		if err != nil {
			return "", nil
		}
		for _, kid := range kids {
			kidDict, err := ctx.DereferenceDict(kid)
			if err != nil || kidDict == nil {
				continue
			}
			if content, err := findInvoiceXML(ctx, kidDict); err != nil || content != "" {
				return content, err
			}
		}
		return "", nil
	}

	namesObj, found := node.Find("Names")
	if !found {
		return "", nil
	}
	pairs, err := ctx.DereferenceArray(namesObj)
	if err != nil {
		return "", nil
	}

	for i := 0; i+1 < len(pairs); i += 2 {
		name := decodeName(ctx, pairs[i])
		if !matchesInvoiceName(name) {
			continue
		}
		filespec, err := ctx.DereferenceDict(pairs[i+1])
		if err != nil || filespec == nil {
			continue
		}
		content, err := embeddedFileContent(ctx, filespec)
		if err != nil {
			return "", err
		}
		if content != "" {
			return content, nil
		}
	}
	return "", nil
}

// embeddedFileContent resolves filespec → EF → F and decodes the stream.
func embeddedFileContent(ctx *model.Context, filespec types.Dict) (string, error) {
	efObj, found := filespec.Find("EF")
	if !found {
		return "", nil
	}
	ef, err := ctx.DereferenceDict(efObj)
	if err != nil || ef == nil {
		return "", nil
	}
	fObj, found := ef.Find("F")
	if !found {
		return "", nil
	}
	sd, _, err := ctx.DereferenceStreamDict(fObj)
	if err != nil || sd == nil {
		return "", nil
	}
	if err := sd.Decode(); err != nil {
		return "", fmt.Errorf("%w: decode embedded file: %v", ErrMalformedXML, err)
	}
	return string(sd.Content), nil
}

func matchesInvoiceName(name string) bool {
	lower := strings.ToLower(name)
	if lower == "" {
		return false
	}
	for _, known := range invoiceXMLNames {
		if strings.Contains(lower, known) {
			return true
		}
	}
	return strings.HasSuffix(lower, ".xml")
}

// decodeName extracts a Go string from a PDF string object.
func decodeName(ctx *model.Context, obj types.Object) string {
	o, err := ctx.Dereference(obj)
	if err != nil {
		return ""
	}
	switch s := o.(type) {
	case types.StringLiteral:
		b, err := types.StringLiteralToString(s)
		if err != nil {
			return ""
		}
		return string(b)
	case types.HexLiteral:
		b, err := types.HexLiteralToString(s)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}
