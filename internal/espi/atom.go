package espi

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BulkID extracts the numeric bulk identifier from the first Atom link of
// a Green Button feed or notification body.
func BulkID(r io.Reader) (int64, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return 0, fmt.Errorf("no atom link element found")
		}
		if err != nil {
			return 0, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Space != AtomNamespace || se.Name.Local != "link" {
			continue
		}
		for _, attr := range se.Attr {
			if attr.Name.Local != "href" {
				continue
			}
			href := strings.TrimRight(attr.Value, "/")
			idx := strings.LastIndex(href, "/")
			if idx < 0 {
				return 0, fmt.Errorf("malformed link href %q", attr.Value)
			}
			id, err := strconv.ParseInt(href[idx+1:], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("malformed link href %q: %w", attr.Value, err)
			}
			return id, nil
		}
		return 0, fmt.Errorf("atom link without href")
	}
}

// FindResourceURIs returns the text of every espi resourceURI element in a
// notification payload, in document order. The walk is a flat token scan,
// so element depth in attacker-influenced XML is never a concern.
func FindResourceURIs(r io.Reader) ([]string, error) {
	var uris []string
	err := scanResourceURIs(r, func(text string) bool {
		uris = append(uris, text)
		return true
	})
	return uris, err
}

// FindResourceSuffix returns the remainder of the first resourceURI whose
// text starts with prefix. An empty string means no element matched.
func FindResourceSuffix(r io.Reader, prefix string) (string, error) {
	var suffix string
	err := scanResourceURIs(r, func(text string) bool {
		if !strings.HasPrefix(text, prefix) {
			return true
		}
		suffix = strings.TrimPrefix(text, prefix)
		return false
	})
	return suffix, err
}

func scanResourceURIs(r io.Reader, visit func(string) bool) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Space != Namespace || se.Name.Local != "resourceURI" {
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &se); err != nil {
			return err
		}
		if !visit(strings.TrimSpace(text)) {
			return nil
		}
	}
}
