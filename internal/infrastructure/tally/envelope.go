// Package tally speaks the external accounting system's XML protocol: it
// serializes outbound query envelopes and parses the generic tabular
// responses into datasets. The query language itself is opaque to the rest of
// the engine; the only contract callers rely on is that the same company
// identity and formula text round-trip to the same result set.
package tally

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/ledgerlens/backend/internal/domain/dataset"
)

// ParseError reports a response that could not be understood: malformed XML,
// or a document missing the expected header/body sections. An empty result
// set is not a parse error.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tally: invalid response: %s: %v", e.Reason, e.Err)
	}
	return "tally: invalid response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Response envelope shapes. Sections are pointers so that an absent section
// can be told apart from a present-but-empty one: zero columns or rows is a
// valid result, a missing DESC or DATA section is not.
type responseEnvelope struct {
	XMLName xml.Name      `xml:"ENVELOPE"`
	Body    *responseBody `xml:"BODY"`
}

type responseBody struct {
	Desc *descSection `xml:"DESC"`
	Data *dataSection `xml:"DATA"`
}

type descSection struct {
	Columns []columnNode `xml:"COLUMN"`
}

type columnNode struct {
	Name  string `xml:"NAME"`
	Alias string `xml:"ALIAS"`
	Type  string `xml:"TYPE"`
}

type dataSection struct {
	Rows []rowNode `xml:"ROW"`
}

type rowNode struct {
	Cells []string `xml:"CELL"`
}

// ParseResponse decodes a tabular response envelope into a dataset,
// preserving column and row order. Cells stay untyped text; no coercion
// happens here.
//
// Every returned row has exactly one cell per column. Rows short of cells are
// padded with empty cells (the upstream emitter omits trailing blanks); a row
// with more cells than columns has no safe interpretation and fails the whole
// parse.
func ParseResponse(raw []byte) (dataset.Dataset, error) {
	var env responseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return dataset.Dataset{}, &ParseError{Reason: "malformed XML", Err: err}
	}
	if env.Body == nil {
		return dataset.Dataset{}, &ParseError{Reason: "missing BODY section"}
	}
	if env.Body.Desc == nil {
		return dataset.Dataset{}, &ParseError{Reason: "missing DESC section"}
	}
	if env.Body.Data == nil {
		return dataset.Dataset{}, &ParseError{Reason: "missing DATA section"}
	}

	d := dataset.Dataset{
		Columns: make([]dataset.ColumnDescriptor, len(env.Body.Desc.Columns)),
		Rows:    make([]dataset.Row, len(env.Body.Data.Rows)),
	}
	for i, c := range env.Body.Desc.Columns {
		d.Columns[i] = dataset.ColumnDescriptor{Name: c.Name, Alias: c.Alias, Type: c.Type}
	}
	for i, r := range env.Body.Data.Rows {
		if len(r.Cells) > len(d.Columns) {
			return dataset.Dataset{}, &ParseError{
				Reason: fmt.Sprintf("row %d has %d cells for %d columns", i, len(r.Cells), len(d.Columns)),
			}
		}
		row := make(dataset.Row, len(d.Columns))
		copy(row, r.Cells)
		d.Rows[i] = row
	}
	return d, nil
}

// Request envelope shapes.
type requestEnvelope struct {
	XMLName xml.Name      `xml:"ENVELOPE"`
	Header  requestHeader `xml:"HEADER"`
	Body    requestBody   `xml:"BODY"`
}

type requestHeader struct {
	Request string `xml:"TALLYREQUEST"`
}

type requestBody struct {
	Export exportData `xml:"EXPORTDATA"`
}

type exportData struct {
	Desc requestDesc `xml:"REQUESTDESC"`
}

type requestDesc struct {
	ReportName string     `xml:"REPORTNAME"`
	Vars       staticVars `xml:"STATICVARIABLES"`
}

type staticVars struct {
	Company string `xml:"SVCURRENTCOMPANY"`
	Formula string `xml:"SVFORMULA,omitempty"`
}

// BuildRequest serializes the outbound query payload for one company and
// formula. The payload shape is owned by the external system; only its
// idempotence matters to the engine.
func BuildRequest(company Company, formula string) ([]byte, error) {
	env := requestEnvelope{
		Header: requestHeader{Request: "Export Data"},
		Body: requestBody{Export: exportData{Desc: requestDesc{
			ReportName: "Bills Receivable",
			Vars: staticVars{
				Company: company.GUID,
				Formula: formula,
			},
		}}},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", " ")
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("tally: encode request: %w", err)
	}
	return buf.Bytes(), nil
}
