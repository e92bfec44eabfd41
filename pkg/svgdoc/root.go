package svgdoc

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is a root attribute as written in markup. Prefix keeps "xmlns" and
// "xlink" style qualifiers verbatim.
type Attr struct {
	Prefix string
	Name   string
	Value  string
}

// Key returns the qualified attribute name.
func (a Attr) Key() string {
	if a.Prefix == "" {
		return a.Name
	}
	return a.Prefix + ":" + a.Name
}

// RewriteRoot replaces the attributes of the root svg element with the result
// of fn and leaves every other byte of markup untouched. It fails when markup
// is not well-formed XML or its root is not an svg element.
func RewriteRoot(markup string, fn func([]Attr) []Attr) (string, error) {
	if _, err := CountPaths(markup); err != nil {
		return "", err
	}

	dec := xml.NewDecoder(strings.NewReader(markup))
	for {
		start := dec.InputOffset()
		tok, err := dec.RawToken()
		if err == io.EOF {
			return "", fmt.Errorf("no root element")
		}
		if err != nil {
			return "", err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "svg" {
			return "", fmt.Errorf("root element is <%s>, want <svg>", se.Name.Local)
		}
		end := dec.InputOffset()

		attrs := make([]Attr, 0, len(se.Attr))
		for _, a := range se.Attr {
			attrs = append(attrs, Attr{Prefix: a.Name.Space, Name: a.Name.Local, Value: a.Value})
		}
		attrs = fn(attrs)

		var b strings.Builder
		b.WriteString("<")
		if se.Name.Space != "" {
			b.WriteString(se.Name.Space + ":")
		}
		b.WriteString(se.Name.Local)
		for _, a := range attrs {
			b.WriteString(" " + a.Key() + `="`)
			_ = xml.EscapeText(&b, []byte(a.Value))
			b.WriteString(`"`)
		}
		if strings.HasSuffix(markup[start:end], "/>") {
			b.WriteString("/>")
		} else {
			b.WriteString(">")
		}
		return markup[:start] + b.String() + markup[end:], nil
	}
}

// SetAttr sets name on attrs, replacing an existing unprefixed value.
func SetAttr(attrs []Attr, name, value string) []Attr {
	for i, a := range attrs {
		if a.Prefix == "" && a.Name == name {
			attrs[i].Value = value
			return attrs
		}
	}
	return append(attrs, Attr{Name: name, Value: value})
}

// GetAttr returns the value of an unprefixed attribute.
func GetAttr(attrs []Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Prefix == "" && a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
