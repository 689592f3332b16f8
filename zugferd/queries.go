package zugferd

import (
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Namespace sets for the two major schema generations. The generic
// local-name() fallbacks at the end of each table need no namespaces.
var namespaces = map[string]string{
	// ZUGFeRD 2.x / Factur-X / XRechnung (CII)
	"rsm": "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100",
	"ram": "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100",
	"udt": "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100",
	"qdt": "urn:un:unece:uncefact:data:standard:QualifiedDataType:100",

	// ZUGFeRD 1.0 (legacy)
	"rsm1": "urn:ferd:CrossIndustryDocument:invoice:1p0",
	"ram1": "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:12",
	"udt1": "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:15",
}

// fieldQuery is one entry of an ordered fallback chain. New dialects are
// added by extending the tables below, not by touching control flow.
type fieldQuery struct {
	dialect string
	expr    *xpath.Expr
}

func mustNS(dialect, query string) fieldQuery {
	expr, err := xpath.CompileWithNS(query, namespaces)
	if err != nil {
		panic(err)
	}
	return fieldQuery{dialect: dialect, expr: expr}
}

func mustGeneric(query string) fieldQuery {
	return fieldQuery{dialect: "generic", expr: xpath.MustCompile(query)}
}

var dateQueries = []fieldQuery{
	mustNS("zugferd2", "//rsm:ExchangedDocument/ram:IssueDateTime/udt:DateTimeString"),
	mustNS("zugferd2", "//ram:IssueDateTime/udt:DateTimeString"),
	mustNS("zugferd2", "//rsm:ExchangedDocument/ram:IssueDateTime/ram:DateTimeString"),
	mustNS("zugferd1", "//rsm1:HeaderExchangedDocument/ram1:IssueDateTime/udt1:DateTimeString"),
	mustGeneric("//*[local-name()='IssueDateTime']/*[local-name()='DateTimeString']"),
	mustGeneric("//*[local-name()='IssueDate']"),
}

var emailQueries = []fieldQuery{
	mustNS("zugferd2", "//ram:BuyerTradeParty/ram:DefinedTradeContact/ram:EmailURIUniversalCommunication/ram:URIID"),
	mustNS("zugferd2", "//ram:BuyerTradeParty/ram:URIUniversalCommunication/ram:URIID"),
	mustNS("zugferd2", "//ram:ApplicableHeaderTradeAgreement/ram:BuyerTradeParty/ram:DefinedTradeContact/ram:EmailURIUniversalCommunication/ram:URIID"),
	mustGeneric("//*[local-name()='BuyerTradeParty']//*[local-name()='EmailURIUniversalCommunication']/*[local-name()='URIID']"),
	mustGeneric("//*[local-name()='BuyerTradeParty']//*[local-name()='URIUniversalCommunication']/*[local-name()='URIID']"),
	mustGeneric("//*[local-name()='BuyerTradeParty']//*[local-name()='URIID']"),
}

var numberQueries = []fieldQuery{
	mustNS("zugferd2", "//rsm:ExchangedDocument/ram:ID"),
	mustNS("zugferd1", "//rsm1:HeaderExchangedDocument/ram1:ID"),
	mustGeneric("//*[local-name()='ExchangedDocument']/*[local-name()='ID']"),
	mustGeneric("//*[local-name()='HeaderExchangedDocument']/*[local-name()='ID']"),
	mustGeneric("//*[local-name()='InvoiceNumber']"),
}

var nameQueries = []fieldQuery{
	mustNS("zugferd2", "//ram:BuyerTradeParty/ram:Name"),
	mustNS("zugferd2", "//ram:ApplicableHeaderTradeAgreement/ram:BuyerTradeParty/ram:Name"),
	mustGeneric("//*[local-name()='BuyerTradeParty']/*[local-name()='Name']"),
}

// firstMatch evaluates queries in order and returns the first non-empty
// trimmed text; later queries are not attempted.
func firstMatch(doc *xmlquery.Node, queries []fieldQuery) string {
	for _, q := range queries {
		for _, n := range xmlquery.QuerySelectorAll(doc, q.expr) {
			if text := strings.TrimSpace(n.InnerText()); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstEmailMatch scans all candidates across all queries, in order, and
// returns the first one that passes the minimal address shape check. Unlike
// firstMatch, a shape-failing candidate does not stop the chain.
func firstEmailMatch(doc *xmlquery.Node, queries []fieldQuery) string {
	for _, q := range queries {
		for _, n := range xmlquery.QuerySelectorAll(doc, q.expr) {
			email := strings.TrimSpace(n.InnerText())
			if looksLikeEmail(email) {
				return email
			}
		}
	}
	return ""
}

func looksLikeEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}
