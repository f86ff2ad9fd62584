// File: internal/fetcher/decode.go
package fetcher

import (
	"bytes"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// DecodeDocument turns a response body into a generic document. JSON and
// XML are detected by content type, falling back to sniffing the first
// byte; anything else is wrapped as {"body": text}.
func DecodeDocument(contentType string, body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case isJSONType(mediaType), mediaType == "" && (trimmed[0] == '{' || trimmed[0] == '['):
		return decodeJSON(trimmed)
	case isXMLType(mediaType), mediaType == "" && trimmed[0] == '<':
		return decodeXML(trimmed)
	case strings.HasPrefix(mediaType, "text/plain") && (trimmed[0] == '{' || trimmed[0] == '['):
		// Plenty of lookup APIs mislabel JSON.
		if doc, err := decodeJSON(trimmed); err == nil {
			return doc, nil
		}
	}
	return map[string]any{"body": string(body)}, nil
}

func isJSONType(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json") || mt == "text/json"
}

func isXMLType(mt string) bool {
	return mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml")
}

func decodeJSON(body []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("failed to decode JSON payload: %w", err)
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	default:
		return map[string]any{"items": t}, nil
	}
}

func decodeXML(body []byte) (map[string]any, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to decode XML payload: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("failed to decode XML payload: no root element")
	}
	if m, ok := elementValue(root).(map[string]any); ok {
		return m, nil
	}
	return map[string]any{root.Tag: elementValue(root)}, nil
}

// elementValue flattens an element: leaves become their text, attributes
// become "@name" keys, and repeated child tags become lists.
func elementValue(el *etree.Element) any {
	children := el.ChildElements()
	if len(children) == 0 && len(el.Attr) == 0 {
		return strings.TrimSpace(el.Text())
	}

	m := make(map[string]any, len(children)+len(el.Attr))
	for _, attr := range el.Attr {
		m["@"+attr.Key] = attr.Value
	}
	for _, child := range children {
		v := elementValue(child)
		switch existing := m[child.Tag].(type) {
		case nil:
			m[child.Tag] = v
		case []any:
			m[child.Tag] = append(existing, v)
		default:
			m[child.Tag] = []any{existing, v}
		}
	}
	if len(children) == 0 {
		if text := strings.TrimSpace(el.Text()); text != "" {
			m["#text"] = text
		}
	}
	return m
}

// LookupPath resolves a dotted path such as "carrier.name" or
// "results.0.title" against a decoded document.
func LookupPath(doc map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// ExtractFacts maps a document onto canonical fact names using the source's
// field paths. Missing or null values are left out.
func ExtractFacts(spec schemas.SourceSpec, doc map[string]any) map[string]any {
	facts := make(map[string]any, len(spec.Fields))
	for field, path := range spec.Fields {
		v, ok := LookupPath(doc, path)
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		if field == schemas.FieldSocialProfiles {
			summarizeProfiles(v, facts)
			continue
		}
		facts[field] = v
	}
	return facts
}

// SocialFactPrefix prefixes the per-platform presence facts.
const SocialFactPrefix = "social."

// summarizeProfiles reduces a profile listing to a count plus one
// "social.<platform>" flag per platform. Listings come as a platform map
// ({"twitter": true}), a list of names, or a list of objects carrying
// "platform" and an optional "found".
func summarizeProfiles(v any, facts map[string]any) {
	found := make(map[string]bool)

	switch t := v.(type) {
	case map[string]any:
		for platform, entry := range t {
			found[strings.ToLower(platform)] = truthy(entry)
		}
	case []any:
		for _, entry := range t {
			switch e := entry.(type) {
			case string:
				found[strings.ToLower(e)] = true
			case map[string]any:
				name, _ := e["platform"].(string)
				if name == "" {
					name, _ = e["name"].(string)
				}
				if name == "" {
					continue
				}
				present := true
				if f, ok := e["found"]; ok {
					present = truthy(f)
				}
				found[strings.ToLower(name)] = present
			}
		}
	case float64:
		facts[schemas.FieldSocialProfiles] = t
		return
	default:
		return
	}

	count := 0
	for platform, present := range found {
		facts[SocialFactPrefix+platform] = present
		if present {
			count++
		}
	}
	facts[schemas.FieldSocialProfiles] = count
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "no", "0", "none", "not found":
			return false
		}
		return true
	}
	return true
}
