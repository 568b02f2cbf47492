package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Doctype is the document-type marker every emitted guide carries, identical
// across runs so consumers can byte-compare framings.
const Doctype = `<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n"

// Writer emits a framed XMLTV document node by node. Start writes the
// declaration, doctype, and <tv> root; Close writes </tv> and flushes. A
// Start/Close pair with no Write calls produces a valid empty document.
type Writer struct {
	w       io.Writer
	enc     *xml.Encoder
	root    xml.StartElement
	started bool
	closed  bool
}

// NewWriter prepares a writer targeting w with the given root attributes.
// Nothing is written until Start.
func NewWriter(w io.Writer, rootAttrs []xml.Attr) *Writer {
	return &Writer{
		w:   w,
		enc: xml.NewEncoder(w),
		root: xml.StartElement{
			Name: xml.Name{Local: "tv"},
			Attr: rootAttrs,
		},
	}
}

// Start writes the document framing. Must be called exactly once before Write.
func (w *Writer) Start() error {
	if w.started {
		return fmt.Errorf("xmltv: writer already started")
	}
	w.started = true
	if _, err := io.WriteString(w.w, xml.Header); err != nil {
		return fmt.Errorf("xmltv: write header: %w", err)
	}
	if _, err := io.WriteString(w.w, Doctype); err != nil {
		return fmt.Errorf("xmltv: write doctype: %w", err)
	}
	if err := w.enc.EncodeToken(w.root); err != nil {
		return fmt.Errorf("xmltv: write root: %w", err)
	}
	return nil
}

// Write emits one node inside the root.
func (w *Writer) Write(n *Node) error {
	if !w.started || w.closed {
		return fmt.Errorf("xmltv: write outside Start/Close window")
	}
	if err := w.enc.EncodeElement(n, xml.StartElement{Name: n.XMLName}); err != nil {
		return fmt.Errorf("xmltv: write <%s>: %w", n.XMLName.Local, err)
	}
	return nil
}

// Close terminates the root element and flushes buffered output.
func (w *Writer) Close() error {
	if !w.started {
		return fmt.Errorf("xmltv: close before start")
	}
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.enc.EncodeToken(w.root.End()); err != nil {
		return fmt.Errorf("xmltv: write root end: %w", err)
	}
	if err := w.enc.Flush(); err != nil {
		return fmt.Errorf("xmltv: flush: %w", err)
	}
	if _, err := io.WriteString(w.w, "\n"); err != nil {
		return fmt.Errorf("xmltv: trailing newline: %w", err)
	}
	return nil
}
