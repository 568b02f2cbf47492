// Package xmltv streams XMLTV documents as a lazy sequence of channel and
// programme nodes.
//
// # What it does
//
// Reader pulls one fully-decoded sub-tree at a time out of a guide byte
// stream, so a multi-hundred-megabyte document never lives in memory as a
// tree. Writer emits the standard framing (declaration, doctype, single <tv>
// root) and one node at a time. A node's inner markup is carried verbatim, so
// sub-structure the pipeline doesn't touch survives byte-for-byte.
package xmltv

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Node is one channel or programme element: its name, attributes, and raw
// inner markup. Inner is re-emitted verbatim on write.
type Node struct {
	XMLName xml.Name   `xml:""`
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// IsChannel reports whether the node is a <channel> element.
func (n *Node) IsChannel() bool { return n.XMLName.Local == "channel" }

// IsProgramme reports whether the node is a <programme> element.
func (n *Node) IsProgramme() bool { return n.XMLName.Local == "programme" }

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(key string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == key {
			return a.Value
		}
	}
	return ""
}

// SetAttr replaces the named attribute in place, appending it when absent.
func (n *Node) SetAttr(key, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name.Local == key {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: key}, Value: value})
}

// Children parses the node's inner markup into its child elements. Character
// data between children is dropped; XMLTV nodes carry text only inside child
// elements.
func (n *Node) Children() ([]Node, error) {
	if strings.TrimSpace(n.Inner) == "" {
		return nil, nil
	}
	var frag struct {
		Nodes []Node `xml:",any"`
	}
	if err := xml.Unmarshal([]byte("<x>"+n.Inner+"</x>"), &frag); err != nil {
		return nil, err
	}
	return frag.Nodes, nil
}

// Text returns the node's decoded character data (entities resolved).
func (n *Node) Text() string {
	var v struct {
		Text string `xml:",chardata"`
	}
	if err := xml.Unmarshal([]byte("<x>"+n.Inner+"</x>"), &v); err != nil {
		return ""
	}
	return v.Text
}

// SetText replaces the node's content with escaped character data.
func (n *Node) SetText(s string) {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return
	}
	n.Inner = b.String()
}

// MarshalChildren re-encodes child nodes into inner markup, skipping children
// whose name was cleared.
func MarshalChildren(children []Node) (string, error) {
	var out bytes.Buffer
	enc := xml.NewEncoder(&out)
	for i := range children {
		if children[i].XMLName.Local == "" {
			continue
		}
		if err := enc.EncodeElement(&children[i], xml.StartElement{Name: children[i].XMLName}); err != nil {
			return "", err
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return out.String(), nil
}
