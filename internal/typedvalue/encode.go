package typedvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ToPlainJSON erases the tags: Bool->bool, Int/Float->number, String->string,
// Array->list, Map->object (in key order). Non-finite floats become null.
func ToPlainJSON(v Value) []byte {
	var buf bytes.Buffer
	writePlain(&buf, v)
	return buf.Bytes()
}

func writePlain(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		writeFloat(buf, v.f)
	case KindString:
		writeString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			writePlain(buf, item)
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, f.Key)
			buf.WriteByte(':')
			writePlain(buf, f.Value)
		}
		buf.WriteByte('}')
	}
}

func writeFloat(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		buf.WriteString("null")
		return
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func writeString(buf *bytes.Buffer, s string) {
	data, err := json.Marshal(s)
	if err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Write(data)
}

// FromPlainJSON parses plain JSON into a Value keeping object key order.
// Integral numbers become Int, everything else numeric becomes Float.
func FromPlainJSON(data []byte) (Value, error) {
	n, err := parseJSON(data)
	if err != nil {
		return Value{}, err
	}
	return fromNode(n)
}

func fromNode(n node) (Value, error) {
	switch n.kind {
	case nodeNull:
		return Null(), nil
	case nodeBool:
		return Bool(n.b), nil
	case nodeNumber:
		if i, err := strconv.ParseInt(n.num.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := n.num.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("typedvalue: number %s: %w", n.num, err)
		}
		return Float(f), nil
	case nodeString:
		return String(n.s), nil
	case nodeArray:
		items := make([]Value, 0, len(n.elems))
		for _, elem := range n.elems {
			v, err := fromNode(elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindArray, items: items}, nil
	case nodeObject:
		fields := make([]Field, 0, len(n.members))
		for _, m := range n.members {
			v, err := fromNode(m.node)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Key: m.key, Value: v})
		}
		return Value{kind: KindMap, fields: fields}, nil
	}
	return Value{}, fmt.Errorf("typedvalue: unsupported node kind %d", n.kind)
}

// Encode renders v in the typed-value wire format.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	writeWire(&buf, v)
	return buf.Bytes()
}

func writeWire(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString(`{"nullValue":null}`)
	case KindBool:
		buf.WriteString(`{"booleanValue":`)
		buf.WriteString(strconv.FormatBool(v.b))
		buf.WriteByte('}')
	case KindInt:
		buf.WriteString(`{"integerValue":"`)
		buf.WriteString(strconv.FormatInt(v.i, 10))
		buf.WriteString(`"}`)
	case KindFloat:
		buf.WriteString(`{"doubleValue":`)
		switch {
		case math.IsNaN(v.f):
			buf.WriteString(`"NaN"`)
		case math.IsInf(v.f, 1):
			buf.WriteString(`"Infinity"`)
		case math.IsInf(v.f, -1):
			buf.WriteString(`"-Infinity"`)
		default:
			buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
		}
		buf.WriteByte('}')
	case KindString:
		buf.WriteString(`{"stringValue":`)
		writeString(buf, v.s)
		buf.WriteByte('}')
	case KindArray:
		buf.WriteString(`{"arrayValue":{"values":[`)
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeWire(buf, item)
		}
		buf.WriteString(`]}}`)
	case KindMap:
		buf.WriteString(`{"mapValue":{"fields":`)
		writeWireFields(buf, v.fields)
		buf.WriteString(`}}`)
	}
}

func writeWireFields(buf *bytes.Buffer, fields []Field) {
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, f.Key)
		buf.WriteByte(':')
		writeWire(buf, f.Value)
	}
	buf.WriteByte('}')
}
