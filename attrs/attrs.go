// Package attrs implements the key-value metadata attached to transfers,
// layout parameters and catalog records.
package attrs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
)

// Set is a mapping from unique string keys to string values. The zero value
// is an empty set ready to use; storage is allocated on the first Set.
type Set struct {
	m map[string]string
}

// FromMap builds a Set holding a copy of m.
func FromMap(m map[string]string) (*Set, error) {
	s := new(Set)
	for k, v := range m {
		if err := s.Set(k, v); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Set stores value under key, replacing any previous value.
func (s *Set) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty attribute key", hsmerr.ErrInvalidArgument)
	}

	if s.m == nil {
		s.m = make(map[string]string)
	}

	s.m[key] = value

	return nil
}

// Get returns the value stored under key.
func (s *Set) Get(key string) (string, bool) {
	if s == nil || s.m == nil {
		return "", false
	}

	v, ok := s.m[key]

	return v, ok
}

// Remove drops key from the set.
func (s *Set) Remove(key string) {
	if s == nil || s.m == nil {
		return
	}

	delete(s.m, key)
}

// Len returns the number of keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.m)
}

// ForEach calls fn for every pair in unspecified order and stops on the
// first error, which is returned.
func (s *Set) ForEach(fn func(key, value string) error) error {
	if s == nil {
		return nil
	}

	for k, v := range s.m {
		if err := fn(k, v); err != nil {
			return err
		}
	}

	return nil
}

// RemoveEmpty drops every key holding an empty value.
func (s *Set) RemoveEmpty() {
	if s == nil {
		return
	}

	for k, v := range s.m {
		if v == "" {
			delete(s.m, k)
		}
	}
}

// Clear releases the backing storage.
func (s *Set) Clear() {
	if s == nil {
		return
	}

	s.m = nil
}

// Mapping returns a fresh copy of all pairs. It fails with ErrEncoding if a
// key or a value is not valid UTF-8.
func (s *Set) Mapping() (map[string]string, error) {
	res := make(map[string]string, s.Len())

	err := s.ForEach(func(k, v string) error {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return fmt.Errorf("%w: attribute %q", hsmerr.ErrEncoding, k)
		}
		res[k] = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// MarshalJSON encodes the set as a flat JSON object, `{}` when empty.
func (s Set) MarshalJSON() ([]byte, error) {
	if s.m == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(s.m)
}

// UnmarshalJSON decodes a flat JSON object of strings into the set,
// rejecting duplicate keys.
func (s *Set) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", hsmerr.ErrInvalidArgument, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: attributes must be a JSON object", hsmerr.ErrInvalidArgument)
	}

	s.m = nil
	seen := make(map[string]struct{})

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", hsmerr.ErrInvalidArgument, err)
		}
		key := tok.(string)

		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate attribute %q", hsmerr.ErrInvalidArgument, key)
		}
		seen[key] = struct{}{}

		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", hsmerr.ErrInvalidArgument, err)
		}
		val, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: attribute %q is not a string", hsmerr.ErrInvalidArgument, key)
		}

		if err = s.Set(key, val); err != nil {
			return err
		}
	}

	return nil
}
