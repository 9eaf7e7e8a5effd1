// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/havenmap/resource-engine/pkg/types"
)

// parseBody turns one fetched response body into a list of raw items
// according to the source kind. Unknown kinds fail fast with an explicit
// error so a misconfigured registry is reported, not silently skipped.
func parseBody(src types.DataSourceDescriptor, body []byte) ([]map[string]string, error) {
	switch src.Kind {
	case types.SourceAPI, types.SourceJSON:
		return parseJSON(body)
	case types.SourceCSV:
		return parseCSV(body)
	case types.SourceXML:
		return parseXML(body, src.Extraction.ItemElement)
	case types.SourceHTML:
		return parseHTML(body, src.Extraction)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

// parseJSON flattens a structured API/JSON response into raw items. A
// top-level array passes through; an object is searched in sorted key order
// for its first array-of-objects value; a lone object yields one item.
func parseJSON(body []byte) ([]map[string]string, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("parsing JSON payload: %w", err)
	}

	switch v := root.(type) {
	case []any:
		return flattenList(v)
	case map[string]any:
		// Keys in sorted order so a payload carrying several lists always
		// yields the same record set.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list, ok := v[k].([]any); ok && len(list) > 0 {
				if _, isObj := list[0].(map[string]any); isObj {
					return flattenList(list)
				}
			}
		}
		// No embedded list: the object itself is the single listing.
		return []map[string]string{flattenItem(v)}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON root of type %T", root)
	}
}

func flattenList(list []any) ([]map[string]string, error) {
	items := make([]map[string]string, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		items = append(items, flattenItem(obj))
	}
	return items, nil
}

// flattenItem renders an opaque JSON object as string key/values. Nested
// objects flatten one level with dotted keys; scalar lists join with "; ".
func flattenItem(obj map[string]any) map[string]string {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case nil:
			// omit
		case []any:
			var parts []string
			for _, e := range val {
				if s, ok := e.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				out[k] = strings.Join(parts, "; ")
			}
		case map[string]any:
			for nk, nv := range val {
				if s, ok := nv.(string); ok && s != "" {
					out[k+"."+nk] = s
				}
			}
		}
	}
	return out
}

// parseCSV reads a CSV feed, inferring field names from the header row.
func parseCSV(body []byte) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var items []map[string]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		item := make(map[string]string, len(header))
		for i, val := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if val = strings.TrimSpace(val); val != "" {
				item[header[i]] = val
			}
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	}
	return items, nil
}

// parseXML walks the document and collects the character data of every
// child element under each occurrence of the configured item element.
func parseXML(body []byte, itemElement string) ([]map[string]string, error) {
	if itemElement == "" {
		return nil, fmt.Errorf("xml source missing item_element in extraction config")
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	var items []map[string]string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing XML payload: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != itemElement {
			continue
		}
		item, err := decodeXMLItem(dec, start)
		if err != nil {
			return nil, err
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	}
	return items, nil
}

func decodeXMLItem(dec *xml.Decoder, start xml.StartElement) (map[string]string, error) {
	item := make(map[string]string)
	var field string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing XML item: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			field = t.Name.Local
			text.Reset()
		case xml.CharData:
			if field != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return item, nil
			}
			if field == t.Name.Local {
				if v := strings.TrimSpace(text.String()); v != "" {
					item[field] = v
				}
				field = ""
			}
		}
	}
}

// parseHTML extracts one item per CSS item selector match, reading each
// configured field selector's text within the item node.
func parseHTML(body []byte, ext types.ExtractionMap) ([]map[string]string, error) {
	if ext.ItemSelector == "" {
		return nil, fmt.Errorf("html source missing item_selector in extraction config")
	}
	if len(ext.FieldSelectors) == 0 {
		return nil, fmt.Errorf("html source missing field_selectors in extraction config")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML payload: %w", err)
	}

	var items []map[string]string
	doc.Find(ext.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		item := make(map[string]string, len(ext.FieldSelectors))
		for field, css := range ext.FieldSelectors {
			if v := strings.TrimSpace(sel.Find(css).First().Text()); v != "" {
				item[field] = v
			}
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	})
	return items, nil
}
