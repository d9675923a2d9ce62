package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"sort"
)

// maxKeyDepth bounds key nesting; it also stops self-referencing values.
const maxKeyDepth = 64

var jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

// NormalizedKey is the canonical form of a caller-supplied key.
//
// Hash is the canonical JSON encoding of Key, and Key is ParseHash(Hash),
// so equal keys always produce byte-identical hashes.
type NormalizedKey struct {
	Hash string
	Key  []any
}

// NormalizeKey canonicalizes key.
//
// A slice or array key is treated as a sequence of parts; any other value
// becomes a single-part sequence. Object fields are sorted by name at every
// depth, so keys that differ only in field order normalize identically.
// Numbers in the canonical Key are json.Number values.
//
// Keys that are nil, empty, or contain functions, channels, complex numbers
// or unsafe pointers at any depth fail with ErrInvalidKey.
func NormalizeKey(key any) (NormalizedKey, error) {
	if err := checkKey(reflect.ValueOf(key), 0); err != nil {
		return NormalizedKey{}, err
	}

	parts, err := keyParts(key)
	if err != nil {
		return NormalizedKey{}, err
	}

	raw, err := json.Marshal(parts)
	if err != nil {
		return NormalizedKey{}, invalidKey("%v", err)
	}

	generic, err := decodeJSON(raw)
	if err != nil {
		return NormalizedKey{}, invalidKey("%v", err)
	}

	canonical, err := canonicalize(generic)
	if err != nil {
		return NormalizedKey{}, invalidKey("%v", err)
	}

	hash := string(canonical)
	parsed, err := ParseHash(hash)
	if err != nil {
		return NormalizedKey{}, err
	}

	return NormalizedKey{Hash: hash, Key: parsed}, nil
}

// ParseHash decodes a hash produced by NormalizeKey back into its canonical
// key parts. It is the inverse of the hash encoding and the default key
// parser for hydration.
func ParseHash(hash string) ([]any, error) {
	v, err := decodeJSON([]byte(hash))
	if err != nil {
		return nil, invalidKey("parse %q: %v", hash, err)
	}
	parts, ok := v.([]any)
	if !ok || len(parts) == 0 {
		return nil, invalidKey("hash %q is not a non-empty array", hash)
	}
	return parts, nil
}

func keyParts(key any) ([]any, error) {
	if key == nil {
		return nil, invalidKey("nil key")
	}

	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break // []byte encodes as a single string
		}
		if rv.Len() == 0 {
			return nil, invalidKey("empty key")
		}
		parts := make([]any, rv.Len())
		for i := range parts {
			parts[i] = rv.Index(i).Interface()
		}
		return parts, nil
	case reflect.String:
		if rv.Len() == 0 {
			return nil, invalidKey("empty key")
		}
	}

	return []any{key}, nil
}

func checkKey(v reflect.Value, depth int) error {
	if depth > maxKeyDepth {
		return invalidKey("nesting exceeds %d levels", maxKeyDepth)
	}
	if !v.IsValid() {
		return nil
	}
	if v.Type().Implements(jsonMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return invalidKey("unsupported %s value", v.Kind())
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkKey(v.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkKey(v.Index(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkKey(iter.Key(), depth+1); err != nil {
				return err
			}
			if err := checkKey(iter.Value(), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			if err := checkKey(v.Field(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after key")
	}
	return v, nil
}

// canonicalize produces a deterministic JSON representation of v.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, ']'), nil
}

// Predicate selects entries for bulk operations such as InvalidateMatching.
type Predicate func(e *Entry) bool

// MatchKey returns a Predicate matching exactly the entry for key.
func MatchKey(key any) (Predicate, error) {
	nk, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return func(e *Entry) bool { return e.Hash() == nk.Hash }, nil
}

// MatchPrefix returns a Predicate matching entries whose key parts start
// with the parts of prefix. MatchPrefix("todos") matches ["todos"] and
// ["todos", 1] but not ["todo"].
func MatchPrefix(prefix any) (Predicate, error) {
	nk, err := NormalizeKey(prefix)
	if err != nil {
		return nil, err
	}
	return func(e *Entry) bool {
		key := e.Key()
		if len(key) < len(nk.Key) {
			return false
		}
		for i := range nk.Key {
			if !reflect.DeepEqual(key[i], nk.Key[i]) {
				return false
			}
		}
		return true
	}, nil
}

// MatchAll matches every entry.
func MatchAll(*Entry) bool { return true }
