package xmltv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// Reader is a pull-style scanner over one XMLTV document. Next returns one
// channel or programme node at a time; no more than the current node is ever
// buffered. Both the index pass and the filter pass consume this interface.
type Reader struct {
	dec       *xml.Decoder
	started   bool
	done      bool
	rootAttrs []xml.Attr
}

// NewReader wraps r. Documents in non-UTF-8 encodings are converted according
// to their declaration.
func NewReader(r io.Reader) *Reader {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return &Reader{dec: dec}
}

// RootAttrs returns the <tv> root element's attributes. Valid after the first
// Next call.
func (r *Reader) RootAttrs() []xml.Attr {
	return r.rootAttrs
}

// Next returns the next channel or programme node, or io.EOF after </tv>.
// Any malformed markup fails the whole scan.
func (r *Reader) Next() (*Node, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		tok, err := r.dec.Token()
		if err != nil {
			// The decoder reports EOF inside an open element as a syntax
			// error; both spellings mean the stream ended early.
			var syn *xml.SyntaxError
			atEnd := errors.Is(err, io.EOF) ||
				(errors.As(err, &syn) && syn.Msg == "unexpected EOF")
			if atEnd {
				if !r.started {
					return nil, fmt.Errorf("xmltv: root <tv> not found")
				}
				return nil, fmt.Errorf("xmltv: document truncated before </tv>")
			}
			return nil, fmt.Errorf("xmltv: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !r.started {
				if t.Name.Local != "tv" {
					if err := r.dec.Skip(); err != nil {
						return nil, fmt.Errorf("xmltv: %w", err)
					}
					continue
				}
				r.started = true
				r.rootAttrs = t.Attr
				continue
			}
			switch t.Name.Local {
			case "channel", "programme":
				var node Node
				if err := r.dec.DecodeElement(&node, &t); err != nil {
					return nil, fmt.Errorf("xmltv: decode <%s>: %w", t.Name.Local, err)
				}
				return &node, nil
			default:
				if err := r.dec.Skip(); err != nil {
					return nil, fmt.Errorf("xmltv: %w", err)
				}
			}
		case xml.EndElement:
			if r.started && t.Name.Local == "tv" {
				r.done = true
				return nil, io.EOF
			}
		}
	}
}
