package main

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// entryFields holds an entry's fields exactly as the API returned them for a
// single locale. Values are decoded on access through get.
type entryFields map[string]json.RawMessage

type fieldKind int

const (
	fieldMissing fieldKind = iota
	fieldString
	fieldStrings
	fieldLink
	fieldDocument
	fieldOther
)

func (k fieldKind) String() string {
	switch k {
	case fieldMissing:
		return "missing"
	case fieldString:
		return "string"
	case fieldStrings:
		return "string list"
	case fieldLink:
		return "link"
	case fieldDocument:
		return "rich text document"
	default:
		return "other"
	}
}

// fieldValue is one decoded field. Only the member matching kind is set.
type fieldValue struct {
	kind fieldKind
	str  string
	strs []string
	link cmsLink
	doc  *rtNode
}

// get classifies and decodes the field named key. Absent and null fields are
// fieldMissing; JSON that fits none of the known shapes is fieldOther.
func (f entryFields) get(key string) fieldValue {
	raw := bytes.TrimSpace(f[key])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fieldValue{kind: fieldMissing}
	}

	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return fieldValue{kind: fieldString, str: s}
		}
	case '[':
		var ss []string
		if json.Unmarshal(raw, &ss) == nil {
			return fieldValue{kind: fieldStrings, strs: ss}
		}
	case '{':
		var shape struct {
			NodeType string  `json:"nodeType"`
			Sys      *cmsSys `json:"sys"`
		}
		if json.Unmarshal(raw, &shape) != nil {
			break
		}
		if shape.NodeType == string(nodeDocument) {
			var doc rtNode
			if json.Unmarshal(raw, &doc) == nil {
				return fieldValue{kind: fieldDocument, doc: &doc}
			}
			break
		}
		// Unresolved links and already-resolved assets/entries both carry
		// sys.id, which is all a link needs.
		if shape.Sys != nil && shape.Sys.ID != "" {
			return fieldValue{kind: fieldLink, link: cmsLink{Sys: *shape.Sys}}
		}
	}
	return fieldValue{kind: fieldOther}
}

// stringField returns the string value of key, or "" when the field is
// missing. Any other shape is an error.
func (f entryFields) stringField(key string) (string, error) {
	v := f.get(key)
	switch v.kind {
	case fieldString:
		return v.str, nil
	case fieldMissing:
		return "", nil
	default:
		return "", fmt.Errorf("field %q: want string, got %s", key, v.kind)
	}
}

// stringsField returns the list value of key, or an empty (non-nil) list when
// the field is missing.
func (f entryFields) stringsField(key string) ([]string, error) {
	v := f.get(key)
	switch v.kind {
	case fieldStrings:
		if v.strs == nil {
			return []string{}, nil
		}
		return v.strs, nil
	case fieldMissing:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("field %q: want string list, got %s", key, v.kind)
	}
}

// linkField returns the link stored in key. ok is false when the field is
// missing.
func (f entryFields) linkField(key string) (link cmsLink, ok bool, err error) {
	v := f.get(key)
	switch v.kind {
	case fieldLink:
		return v.link, true, nil
	case fieldMissing:
		return cmsLink{}, false, nil
	default:
		return cmsLink{}, false, fmt.Errorf("field %q: want link, got %s", key, v.kind)
	}
}
