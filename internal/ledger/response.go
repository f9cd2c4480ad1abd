package ledger

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// BatchItem pairs a remote-assigned ID with the correlation token the
// document was submitted under.
type BatchItem struct {
	RemoteID string
	Token    string
}

// BatchResponse is the ordered list of documents the remote created.
type BatchResponse struct {
	Items []BatchItem
}

type xmlInvoiceResult struct {
	InvoiceID     string `xml:"InvoiceID"`
	InvoiceNumber string `xml:"InvoiceNumber"`
}

type xmlPaymentResult struct {
	PaymentID string `xml:"PaymentID"`
	Reference string `xml:"Reference"`
}

type xmlResponse struct {
	XMLName  xml.Name           `xml:"Response"`
	Status   string             `xml:"Status,omitempty"`
	Invoices []xmlInvoiceResult `xml:"Invoices>Invoice,omitempty"`
	Payments []xmlPaymentResult `xml:"Payments>Payment,omitempty"`
}

// ParseBatchResponse reads a successful remote reply for collection.
func ParseBatchResponse(collection Collection, body []byte) (BatchResponse, error) {
	var resp xmlResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return BatchResponse{}, fmt.Errorf("parse %s response: %w", collection, err)
	}

	var out BatchResponse
	switch collection {
	case Invoices:
		for _, r := range resp.Invoices {
			out.Items = append(out.Items, BatchItem{RemoteID: r.InvoiceID, Token: r.InvoiceNumber})
		}
	case Payments:
		for _, r := range resp.Payments {
			out.Items = append(out.Items, BatchItem{RemoteID: r.PaymentID, Token: r.Reference})
		}
	default:
		return BatchResponse{}, fmt.Errorf("parse response: unknown collection %q", collection)
	}
	return out, nil
}

// EncodeBatchResponse writes a reply in the remote's format. It is the
// inverse of ParseBatchResponse and is used by the sandbox ledger.
func EncodeBatchResponse(collection Collection, batch BatchResponse) ([]byte, error) {
	resp := xmlResponse{Status: "OK"}
	switch collection {
	case Invoices:
		for _, it := range batch.Items {
			resp.Invoices = append(resp.Invoices, xmlInvoiceResult{InvoiceID: it.RemoteID, InvoiceNumber: it.Token})
		}
	case Payments:
		for _, it := range batch.Items {
			resp.Payments = append(resp.Payments, xmlPaymentResult{PaymentID: it.RemoteID, Reference: it.Token})
		}
	default:
		return nil, fmt.Errorf("encode response: unknown collection %q", collection)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(resp); err != nil {
		return nil, fmt.Errorf("encode %s response: %w", collection, err)
	}
	return buf.Bytes(), nil
}
