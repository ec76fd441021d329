package typedvalue

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

type nodeKind uint8

const (
	nodeNull nodeKind = iota
	nodeBool
	nodeNumber
	nodeString
	nodeArray
	nodeObject
)

type member struct {
	key  string
	node node
}

// node is a raw JSON tree that keeps object member order.
type node struct {
	kind    nodeKind
	b       bool
	num     json.Number
	s       string
	elems   []node
	members []member
}

func (n node) member(key string) (node, bool) {
	for _, m := range n.members {
		if m.key == key {
			return m.node, true
		}
	}
	return node{}, false
}

var errInvalidJSON = errors.New("typedvalue: invalid json")

// parseJSON accepts exactly one JSON value surrounded by optional whitespace.
func parseJSON(data []byte) (node, error) {
	if !gjson.ValidBytes(data) {
		return node{}, errInvalidJSON
	}
	return nodeFromResult(gjson.ParseBytes(data)), nil
}

func nodeFromResult(r gjson.Result) node {
	switch r.Type {
	case gjson.Null:
		return node{kind: nodeNull}
	case gjson.False:
		return node{kind: nodeBool}
	case gjson.True:
		return node{kind: nodeBool, b: true}
	case gjson.Number:
		return node{kind: nodeNumber, num: json.Number(r.Raw)}
	case gjson.String:
		return node{kind: nodeString, s: r.Str}
	}
	switch {
	case r.IsArray():
		out := node{kind: nodeArray}
		r.ForEach(func(_, value gjson.Result) bool {
			out.elems = append(out.elems, nodeFromResult(value))
			return true
		})
		return out
	case r.IsObject():
		out := node{kind: nodeObject}
		r.ForEach(func(key, value gjson.Result) bool {
			out.members = setMember(out.members, key.Str, nodeFromResult(value))
			return true
		})
		return out
	}
	return node{kind: nodeNull}
}

// setMember keeps the first position of a repeated key and the last value.
func setMember(members []member, key string, value node) []member {
	for i := range members {
		if members[i].key == key {
			members[i].node = value
			return members
		}
	}
	return append(members, member{key: key, node: value})
}
