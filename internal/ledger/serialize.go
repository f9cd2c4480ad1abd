package ledger

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
)

// ErrMixedBatch is returned when a document does not belong to the target collection.
var ErrMixedBatch = errors.New("document kind does not match collection")

// Marshal renders docs as a single XML batch rooted at the collection name.
//
// Output order equals input order and the same input always yields the same
// bytes. Errors indicate a programming mistake (wrong collection, unknown
// collection), never bad data: documents are validated when built.
func Marshal(collection Collection, docs []Document) ([]byte, error) {
	want := collection.Kind()
	if want == "" {
		return nil, fmt.Errorf("marshal batch: unknown collection %q", collection)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	root := xml.StartElement{Name: xml.Name{Local: string(collection)}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	for i, doc := range docs {
		if doc.Kind() != want {
			return nil, fmt.Errorf("marshal batch: document %d is %s: %w", i, doc.Kind(), ErrMixedBatch)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("marshal batch: document %d: %w", i, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a batch written by Marshal. Decoded documents carry no
// correlation; use ParseCorrelation on their tokens.
func Unmarshal(collection Collection, data []byte) ([]Document, error) {
	var docs []Document
	switch collection {
	case Invoices:
		var batch struct {
			XMLName  xml.Name   `xml:"Invoices"`
			Invoices []*Invoice `xml:"Invoice"`
		}
		if err := xml.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal invoices: %w", err)
		}
		for _, inv := range batch.Invoices {
			docs = append(docs, inv)
		}
	case Payments:
		var batch struct {
			XMLName  xml.Name   `xml:"Payments"`
			Payments []*Payment `xml:"Payment"`
		}
		if err := xml.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal payments: %w", err)
		}
		for _, p := range batch.Payments {
			docs = append(docs, p)
		}
	default:
		return nil, fmt.Errorf("unmarshal batch: unknown collection %q", collection)
	}
	return docs, nil
}
