package service

import (
	"github.com/sagereplay/sagereplay/internal/protocol"
)

// Helpers over protocol lookups that default missing optional fields.

func intOr(o *protocol.Object, def int64, keys ...string) int64 {
	if n, ok := protocol.IntField(o, keys...); ok {
		return n
	}
	return def
}

func optInt(o *protocol.Object, keys ...string) *int64 {
	if n, ok := protocol.IntField(o, keys...); ok {
		return &n
	}
	return nil
}

func str(o *protocol.Object, keys ...string) string {
	s, _ := protocol.StringField(o, keys...)
	return s
}

func boolOr(o *protocol.Object, def bool, keys ...string) bool {
	if b, ok := protocol.BoolField(o, keys...); ok {
		return b
	}
	return def
}

func optBool(o *protocol.Object, keys ...string) *bool {
	if b, ok := protocol.BoolField(o, keys...); ok {
		return &b
	}
	return nil
}

// raw converts the value under key to plain Go, nil when absent.
func raw(o *protocol.Object, keys ...string) any {
	v, ok := protocol.Lookup(o, keys...)
	if !ok {
		return nil
	}
	return protocol.ToGo(v)
}

// items converts a list field to plain Go elements. Non-list values yield
// an empty slice.
func items(o *protocol.Object, keys ...string) []any {
	l, ok := protocol.ListField(o, keys...)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, l.Len())
	for _, item := range l.Items {
		out = append(out, protocol.ToGo(item))
	}
	return out
}

func fieldMap(o *protocol.Object) map[string]any {
	m, _ := protocol.ToGo(o).(map[string]any)
	return m
}

// subObject returns the nested mapping under key, or an empty one.
func subObject(o *protocol.Object, key string) *protocol.Object {
	if sub, ok := protocol.ObjectField(o, key); ok {
		return sub
	}
	return protocol.NewObject()
}
