package cdi

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parser turns a raw CDI character stream into a Representation.
// Callers may supply any implementation; XMLParser below is the
// default one.
type Parser interface {
	Parse(r io.Reader) (*Representation, error)
}

// XMLParser is a reference Parser implementation against the OpenLCB
// CDI XML schema, built directly on the standard library's
// encoding/xml: the schema is simple enough that a streaming decoder
// loop is clearer than reaching for a third-party XML library. It
// walks raw tokens (xml.Decoder.Token) rather than unmarshaling into
// tagged structs, so that declared document order — the order the
// Layout Resolver's cursor depends on — is preserved even when a
// container interleaves groups, ints, eventids, and strings.
type XMLParser struct{}

func (XMLParser) Parse(r io.Reader) (*Representation, error) {
	dec := xml.NewDecoder(r)

	rep := &Representation{}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: "decoding CDI XML", Cause: err}
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "segment" {
			continue
		}
		seg, err := parseSegment(dec, se)
		if err != nil {
			return nil, err
		}
		rep.RootSegments = append(rep.RootSegments, seg)
	}
	return rep, nil
}

func parseSegment(dec *xml.Decoder, se xml.StartElement) (*Segment, error) {
	attrs := attrMap(se)
	space, err := parseIntAttr(attrs["space"], 0)
	if err != nil {
		return nil, &ParseError{Reason: "segment " + attrs["name"] + " space attribute", Cause: err}
	}
	origin, err := parseInt64Attr(attrs["origin"], 0)
	if err != nil {
		return nil, &ParseError{Reason: "segment " + attrs["name"] + " origin attribute", Cause: err}
	}
	offset, _ := parseInt64Attr(attrs["offset"], 0)

	children, desc, err := parseChildren(dec, se.Name)
	if err != nil {
		return nil, err
	}
	seg := NewSegment(attrs["name"], desc, space, origin, offset)
	seg.Children = children
	return seg, nil
}

func parseGroup(dec *xml.Decoder, se xml.StartElement) (*Group, error) {
	attrs := attrMap(se)
	offset, _ := parseInt64Attr(attrs["offset"], 0)
	replication, err := parseIntAttr(attrs["replication"], 1)
	if err != nil {
		return nil, &ParseError{Reason: "group " + attrs["name"] + " replication attribute", Cause: err}
	}

	children, desc, err := parseChildren(dec, se.Name)
	if err != nil {
		return nil, err
	}
	g := NewGroup(attrs["name"], desc, offset, replication)
	g.Children = children
	return g, nil
}

func parseInt(dec *xml.Decoder, se xml.StartElement) (*Integer, error) {
	attrs := attrMap(se)
	offset, _ := parseInt64Attr(attrs["offset"], 0)
	size, err := parseIntAttr(attrs["size"], 0)
	if err != nil {
		return nil, &ParseError{Reason: "int " + attrs["name"] + " size attribute", Cause: err}
	}
	desc, err := readDescription(dec, se.Name)
	if err != nil {
		return nil, err
	}
	item := NewInteger(attrs["name"], desc, offset, size)
	if v, err := parseInt64Attr(attrs["min"], 0); err == nil {
		item.Min = v
	}
	if v, err := parseInt64Attr(attrs["max"], 0); err == nil {
		item.Max = v
	}
	if v, err := parseInt64Attr(attrs["default"], 0); err == nil {
		item.Default = v
	}
	return item, nil
}

func parseEvent(dec *xml.Decoder, se xml.StartElement) (*EventItem, error) {
	attrs := attrMap(se)
	offset, _ := parseInt64Attr(attrs["offset"], 0)
	desc, err := readDescription(dec, se.Name)
	if err != nil {
		return nil, err
	}
	return NewEvent(attrs["name"], desc, offset), nil
}

func parseString(dec *xml.Decoder, se xml.StartElement) (*StringItem, error) {
	attrs := attrMap(se)
	offset, _ := parseInt64Attr(attrs["offset"], 0)
	size, err := parseIntAttr(attrs["size"], 0)
	if err != nil {
		return nil, &ParseError{Reason: "string " + attrs["name"] + " size attribute", Cause: err}
	}
	desc, err := readDescription(dec, se.Name)
	if err != nil {
		return nil, err
	}
	return NewString(attrs["name"], desc, offset, size), nil
}

// parseChildren reads tokens until the EndElement matching parentName,
// building the child Item list in the order they were declared and
// capturing parentName's own <description> text along the way. A
// child element of an unrecognized kind is skipped via dec.Skip
// rather than aborting the whole document.
func parseChildren(dec *xml.Decoder, parentName xml.Name) ([]Item, string, error) {
	var items []Item
	var desc string

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, "", &ParseError{Reason: "decoding CDI XML", Cause: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "description":
				text, err := readCharData(dec, t.Name)
				if err != nil {
					return nil, "", err
				}
				desc = text
			case "group":
				g, err := parseGroup(dec, t)
				if err != nil {
					return nil, "", err
				}
				items = append(items, g)
			case "int":
				it, err := parseInt(dec, t)
				if err != nil {
					return nil, "", err
				}
				items = append(items, it)
			case "eventid":
				it, err := parseEvent(dec, t)
				if err != nil {
					return nil, "", err
				}
				items = append(items, it)
			case "string":
				it, err := parseString(dec, t)
				if err != nil {
					return nil, "", err
				}
				items = append(items, it)
			default:
				if err := dec.Skip(); err != nil {
					return nil, "", &ParseError{Reason: "decoding CDI XML", Cause: err}
				}
			}
		case xml.EndElement:
			if t.Name == parentName {
				return items, desc, nil
			}
		}
	}
}

// readDescription consumes tokens until the EndElement matching name,
// returning the text of a nested <description> child if one was
// present (empty string otherwise). Used by leaf elements, which may
// carry a description but never other child elements.
func readDescription(dec *xml.Decoder, name xml.Name) (string, error) {
	var desc string
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", &ParseError{Reason: "decoding CDI XML", Cause: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "description" {
				text, err := readCharData(dec, t.Name)
				if err != nil {
					return "", err
				}
				desc = text
				continue
			}
			if err := dec.Skip(); err != nil {
				return "", &ParseError{Reason: "decoding CDI XML", Cause: err}
			}
		case xml.EndElement:
			if t.Name == name {
				return desc, nil
			}
		}
	}
}

// readCharData collects character data up to the EndElement matching
// name — the body of a <description> element.
func readCharData(dec *xml.Decoder, name xml.Name) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", &ParseError{Reason: "decoding CDI XML", Cause: err}
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name == name {
				return sb.String(), nil
			}
		}
	}
}

func attrMap(se xml.StartElement) map[string]string {
	m := make(map[string]string, len(se.Attr))
	for _, a := range se.Attr {
		m[a.Name.Local] = a.Value
	}
	return m
}

func parseIntAttr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %q as integer", s)
	}
	return int(v), nil
}

func parseInt64Attr(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %q as integer", s)
	}
	return v, nil
}
