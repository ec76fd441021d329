package typedvalue

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func segmentPayload() Value {
	return Map(
		F("on", Bool(true)),
		F("seg", Array(
			Map(F("id", Int(0)), F("col", Array(Array(Int(255), Int(0), Int(0)), Array(Int(0), Int(0), Int(255))))),
			Map(F("id", Int(1)), F("on", Bool(false)), F("n", String("desk \"left\""))),
		)),
		F("bri", Float(0.5)),
		F("ps", Null()),
	)
}

func TestEncodeDecodeRoundTripNestedArraysOfMaps(t *testing.T) {
	v := segmentPayload()
	decoded, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(v) {
		t.Fatalf("expected %s, got %s", v, decoded)
	}
	want := `{"on":true,"seg":[{"id":0,"col":[[255,0,0],[0,0,255]]},{"id":1,"on":false,"n":"desk \"left\""}],"bri":0.5,"ps":null}`
	if got := string(ToPlainJSON(decoded)); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestDecodeFieldsRoundTripsEncodedPayload(t *testing.T) {
	v := segmentPayload()
	raw := `{"action":{"stringValue":"setState"},"payload":` + string(Encode(v)) + `}`
	decoded, skipped, err := DecodeFields([]byte(raw))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("expected no skipped fields, got %v", skipped)
	}
	if got := decoded.GetString("action"); got != "setState" {
		t.Fatalf("expected action setState, got %q", got)
	}
	payload, ok := decoded.Get("payload")
	if !ok || !payload.Equal(v) {
		t.Fatalf("expected %s, got %s", v, payload)
	}
}

const genRunes = "abcXYZ019 _-\"/\\\n\t<>&éü☃"

func genString(r *rand.Rand) string {
	runes := []rune(genRunes)
	out := make([]rune, r.Intn(8))
	for i := range out {
		out[i] = runes[r.Intn(len(runes))]
	}
	return string(out)
}

func genValue(r *rand.Rand, depth int) Value {
	kinds := 7
	if depth <= 0 {
		kinds = 5
	}
	switch r.Intn(kinds) {
	case 0:
		return Null()
	case 1:
		return Bool(r.Intn(2) == 1)
	case 2:
		return Int(r.Int63() - r.Int63())
	case 3:
		return Float(r.NormFloat64() * math.Pow(10, float64(r.Intn(40)-20)))
	case 4:
		return String(genString(r))
	case 5:
		items := make([]Value, r.Intn(4))
		for i := range items {
			items[i] = genValue(r, depth-1)
		}
		return Array(items...)
	default:
		fields := make([]Field, r.Intn(4))
		for i := range fields {
			fields[i] = F(fmt.Sprintf("k%d%s", i, genString(r)), genValue(r, depth-1))
		}
		return Map(fields...)
	}
}

func TestGeneratedValuesRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(20240501))
	for i := 0; i < 500; i++ {
		v := genValue(r, 4)

		decoded, err := Decode(Encode(v))
		if err != nil {
			t.Fatalf("case %d: decode %s: %v", i, Encode(v), err)
		}
		if !decoded.Equal(v) {
			t.Fatalf("case %d: expected %s, got %s", i, v, decoded)
		}

		plain := ToPlainJSON(v)
		reparsed, err := FromPlainJSON(plain)
		if err != nil {
			t.Fatalf("case %d: from plain json %s: %v", i, plain, err)
		}
		if got := string(ToPlainJSON(reparsed)); got != string(plain) {
			t.Fatalf("case %d: expected %s, got %s", i, plain, got)
		}
	}
}

func TestDecodeFieldsSkipsUnknownTag(t *testing.T) {
	raw := []byte(`{
		"on": {"booleanValue": true},
		"fx": {"unknownTag": "x"},
		"bri": {"integerValue": "128"}
	}`)
	v, skipped, err := DecodeFields(raw)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if got := string(ToPlainJSON(v)); got != `{"on":true,"bri":128}` {
		t.Fatalf("unexpected plain json: %s", got)
	}
	if len(skipped) != 1 || skipped[0] != "fx" {
		t.Fatalf("expected skipped [fx], got %v", skipped)
	}
}

func TestDecodeDropsUnknownArrayElements(t *testing.T) {
	raw := []byte(`{"mapValue":{"fields":{"seg":{"arrayValue":{"values":[
		{"mapValue":{"fields":{"id":{"integerValue":"0"}}}},
		{"geoPointValue":{"latitude":1,"longitude":2}},
		{"mapValue":{"fields":{"id":{"integerValue":"2"},"bad":{"bytesValue":"AA=="}}}}
	]}}}}}`)
	v, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := string(ToPlainJSON(v)); got != `{"seg":[{"id":0},{"id":2}]}` {
		t.Fatalf("unexpected plain json: %s", got)
	}
}

func TestDecodeFieldsReportsNestedSkippedPaths(t *testing.T) {
	raw := []byte(`{"payload":{"mapValue":{"fields":{
		"seg":{"arrayValue":{"values":[{"bytesValue":"AA=="},{"integerValue":"3"}]}},
		"x":{"unknownTag":"x"}
	}}}}`)
	_, skipped, err := DecodeFields(raw)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(skipped) != 2 || skipped[0] != "payload.seg[0]" || skipped[1] != "payload.x" {
		t.Fatalf("unexpected skipped paths: %v", skipped)
	}
}

func TestDecodeUnknownTopLevelTag(t *testing.T) {
	_, err := Decode([]byte(`{"unknownTag":"x"}`))
	if !errors.Is(err, ErrUnknownValueTag) {
		t.Fatalf("expected ErrUnknownValueTag, got %v", err)
	}
}

func TestDecodeMalformedValue(t *testing.T) {
	_, err := Decode([]byte(`{"integerValue":"twelve"}`))
	if !errors.Is(err, ErrMalformedValue) {
		t.Fatalf("expected ErrMalformedValue, got %v", err)
	}
}

func TestDecodeScalarVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want Value
	}{
		{`{"nullValue":null}`, Null()},
		{`{"integerValue":42}`, Int(42)},
		{`{"integerValue":"-7"}`, Int(-7)},
		{`{"doubleValue":1.25}`, Float(1.25)},
		{`{"stringValue":"hi"}`, String("hi")},
		{`{"timestampValue":"2024-05-01T10:00:00Z"}`, String("2024-05-01T10:00:00Z")},
		{`{"referenceValue":"projects/p/databases/(default)/documents/a/b"}`, String("projects/p/databases/(default)/documents/a/b")},
		{`{"arrayValue":{}}`, Array()},
		{`{"mapValue":{}}`, Map()},
	}
	for _, tc := range cases {
		got, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("decode %s: %v", tc.raw, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("decode %s: expected %s, got %s", tc.raw, tc.want, got)
		}
	}
}

func TestToPlainJSONNonFiniteFloats(t *testing.T) {
	v := Map(F("a", Float(math.NaN())), F("b", Float(math.Inf(1))), F("c", Float(2)))
	if got := string(ToPlainJSON(v)); got != `{"a":null,"b":null,"c":2}` {
		t.Fatalf("unexpected plain json: %s", got)
	}
	decoded, err := Decode(Encode(Float(math.Inf(-1))))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(Float(math.Inf(-1))) {
		t.Fatalf("expected -Inf, got %s", decoded)
	}
}

func TestFromPlainJSONKeepsKeyOrder(t *testing.T) {
	raw := `{"z":1,"a":[{"y":true,"b":null}],"m":2.5,"s":"x"}`
	v, err := FromPlainJSON([]byte(raw))
	if err != nil {
		t.Fatalf("from plain json: %v", err)
	}
	if got := string(ToPlainJSON(v)); got != raw {
		t.Fatalf("expected %s, got %s", raw, got)
	}
	if _, ok := v.Get("z"); !ok {
		t.Fatalf("expected key z")
	}
	if n, ok := v.Get("m"); !ok || n.Kind() != KindFloat {
		t.Fatalf("expected float m, got %v", n.Kind())
	}
}

func TestFromPlainJSONRejectsTrailingData(t *testing.T) {
	if _, err := FromPlainJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatalf("expected error for trailing data")
	}
}

func TestWithReplacesInPlace(t *testing.T) {
	v := Map(F("a", Int(1)), F("b", Int(2)))
	updated := v.With("a", Int(3)).With("c", Int(4))
	if got := string(ToPlainJSON(updated)); got != `{"a":3,"b":2,"c":4}` {
		t.Fatalf("unexpected plain json: %s", got)
	}
	if got := string(ToPlainJSON(v)); got != `{"a":1,"b":2}` {
		t.Fatalf("original mutated: %s", got)
	}
}

func TestDecodeDropsUnknownMapField(t *testing.T) {
	raw := []byte(`{"mapValue":{"fields":{"on":{"booleanValue":false},"fx":{"unknownTag":"x"}}}}`)
	v, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.String() != `{"on":false}` {
		t.Fatalf("unexpected value: %s", v)
	}
}

func TestFromPlainJSONRepeatedKeyKeepsFirstPosition(t *testing.T) {
	v, err := FromPlainJSON([]byte(`{"a":1,"b":2,"a":3}`))
	if err != nil {
		t.Fatalf("from plain json: %v", err)
	}
	if got := v.String(); got != `{"a":3,"b":2}` {
		t.Fatalf("unexpected value: %s", got)
	}
}

func TestFromPlainJSONUnescapesKeysAndStrings(t *testing.T) {
	v, err := FromPlainJSON([]byte(` {"n\u0061me":"desk \"left\"\u00e9","big":18446744073709551616} `))
	if err != nil {
		t.Fatalf("from plain json: %v", err)
	}
	if got := v.GetString("name"); got != `desk "left"é` {
		t.Fatalf("unexpected name %q", got)
	}
	if big, ok := v.Get("big"); !ok || big.Kind() != KindFloat {
		t.Fatalf("expected out of range integer as float, got %v", big.Kind())
	}
}

func TestFromPlainJSONRejectsMalformed(t *testing.T) {
	for _, raw := range []string{``, `{`, `{"a":}`, `[1,]`, `nul`} {
		if _, err := FromPlainJSON([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
