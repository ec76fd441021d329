// Package typedvalue converts between the document store's self-describing
// typed-value wire format ({"stringValue": "x"}, {"mapValue": {"fields": ...}})
// and plain JSON, through an explicit Value tree.
package typedvalue

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Wire tags.
const (
	TagNull      = "nullValue"
	TagBool      = "booleanValue"
	TagInt       = "integerValue"
	TagDouble    = "doubleValue"
	TagString    = "stringValue"
	TagTimestamp = "timestampValue"
	TagReference = "referenceValue"
	TagArray     = "arrayValue"
	TagMap       = "mapValue"
)

var (
	// ErrUnknownValueTag is returned when a wire node carries no recognized tag.
	ErrUnknownValueTag = errors.New("typedvalue: unknown value tag")
	// ErrMalformedValue is returned when a recognized tag holds the wrong json type.
	ErrMalformedValue = errors.New("typedvalue: malformed value")
)

// Decode converts one wire node into a Value. Children with unknown tags are
// dropped; DecodeFields reports which ones.
func Decode(raw []byte) (Value, error) {
	n, err := parseJSON(raw)
	if err != nil {
		return Value{}, err
	}
	var skipped []string
	return decodeNode(n, "", &skipped)
}

// DecodeFields converts a document "fields" object (field name -> wire node)
// into a Map. Fields that fail to decode are skipped and their paths returned.
func DecodeFields(raw []byte) (Value, []string, error) {
	n, err := parseJSON(raw)
	if err != nil {
		return Value{}, nil, err
	}
	if n.kind == nodeNull {
		return Map(), nil, nil
	}
	if n.kind != nodeObject {
		return Value{}, nil, fmt.Errorf("%w: fields must be an object", ErrMalformedValue)
	}
	var skipped []string
	return decodeMembers(n.members, "", &skipped), skipped, nil
}

func decodeNode(n node, path string, skipped *[]string) (Value, error) {
	if n.kind != nodeObject {
		return Value{}, fmt.Errorf("%w: wire node at %q is not an object", ErrMalformedValue, displayPath(path))
	}
	for _, m := range n.members {
		switch m.key {
		case TagNull:
			return Null(), nil
		case TagBool:
			if m.node.kind != nodeBool {
				return Value{}, malformed(path, m.key)
			}
			return Bool(m.node.b), nil
		case TagInt:
			i, err := parseInt(m.node)
			if err != nil {
				return Value{}, malformed(path, m.key)
			}
			return Int(i), nil
		case TagDouble:
			f, err := parseDouble(m.node)
			if err != nil {
				return Value{}, malformed(path, m.key)
			}
			return Float(f), nil
		case TagString, TagTimestamp, TagReference:
			if m.node.kind != nodeString {
				return Value{}, malformed(path, m.key)
			}
			return String(m.node.s), nil
		case TagArray:
			return decodeArray(m.node, path, skipped)
		case TagMap:
			return decodeMap(m.node, path, skipped)
		}
	}
	keys := make([]string, 0, len(n.members))
	for _, m := range n.members {
		keys = append(keys, m.key)
	}
	return Value{}, fmt.Errorf("%w at %q: %s", ErrUnknownValueTag, displayPath(path), strings.Join(keys, ","))
}

func decodeArray(n node, path string, skipped *[]string) (Value, error) {
	if n.kind == nodeNull {
		return Array(), nil
	}
	if n.kind != nodeObject {
		return Value{}, malformed(path, TagArray)
	}
	values, ok := n.member("values")
	if !ok || values.kind == nodeNull {
		return Array(), nil
	}
	if values.kind != nodeArray {
		return Value{}, malformed(path, TagArray)
	}
	items := make([]Value, 0, len(values.elems))
	for i, elem := range values.elems {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		v, err := decodeNode(elem, elemPath, skipped)
		if err != nil {
			*skipped = append(*skipped, elemPath)
			continue
		}
		items = append(items, v)
	}
	return Value{kind: KindArray, items: items}, nil
}

func decodeMap(n node, path string, skipped *[]string) (Value, error) {
	if n.kind == nodeNull {
		return Map(), nil
	}
	if n.kind != nodeObject {
		return Value{}, malformed(path, TagMap)
	}
	fields, ok := n.member("fields")
	if !ok || fields.kind == nodeNull {
		return Map(), nil
	}
	if fields.kind != nodeObject {
		return Value{}, malformed(path, TagMap)
	}
	return decodeMembers(fields.members, path, skipped), nil
}

func decodeMembers(members []member, path string, skipped *[]string) Value {
	out := make([]Field, 0, len(members))
	for _, m := range members {
		fieldPath := m.key
		if path != "" {
			fieldPath = path + "." + m.key
		}
		v, err := decodeNode(m.node, fieldPath, skipped)
		if err != nil {
			*skipped = append(*skipped, fieldPath)
			continue
		}
		out = append(out, Field{Key: m.key, Value: v})
	}
	return Value{kind: KindMap, fields: out}
}

func parseInt(n node) (int64, error) {
	switch n.kind {
	case nodeString:
		return strconv.ParseInt(n.s, 10, 64)
	case nodeNumber:
		return n.num.Int64()
	default:
		return 0, ErrMalformedValue
	}
}

func parseDouble(n node) (float64, error) {
	switch n.kind {
	case nodeNumber:
		return n.num.Float64()
	case nodeString:
		switch n.s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return strconv.ParseFloat(n.s, 64)
	default:
		return 0, ErrMalformedValue
	}
}

func malformed(path, tag string) error {
	return fmt.Errorf("%w: %s at %q", ErrMalformedValue, tag, displayPath(path))
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
