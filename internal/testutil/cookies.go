package testutil

import (
	"maps"
	"slices"
	"strings"

	"github.com/dgellow/authcallback/internal/cookie"
)

// CookieWrite is one Set or Remove call seen by a MapCookieStore
type CookieWrite struct {
	Name    string
	Value   string
	Options cookie.Options
	Removed bool
}

// MapCookieStore is an in-memory cookie.Store that records every write
type MapCookieStore struct {
	Values map[string]string
	Writes []CookieWrite
}

var (
	_ cookie.Store  = (*MapCookieStore)(nil)
	_ cookie.Lister = (*MapCookieStore)(nil)
)

// NewMapCookieStore creates a store holding the given request cookies
func NewMapCookieStore(initial map[string]string) *MapCookieStore {
	values := make(map[string]string, len(initial))
	maps.Copy(values, initial)
	return &MapCookieStore{Values: values}
}

func (s *MapCookieStore) Get(name string) (string, bool) {
	v, ok := s.Values[name]
	return v, ok
}

func (s *MapCookieStore) Set(name, value string, opts cookie.Options) {
	s.Values[name] = value
	s.Writes = append(s.Writes, CookieWrite{Name: name, Value: value, Options: opts})
}

func (s *MapCookieStore) Remove(name string, opts cookie.Options) {
	delete(s.Values, name)
	s.Writes = append(s.Writes, CookieWrite{Name: name, Options: opts, Removed: true})
}

func (s *MapCookieStore) Names(prefix string) []string {
	var names []string
	for name := range s.Values {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Carry returns a new store holding the current values, as the browser
// would send them on the next request
func (s *MapCookieStore) Carry() *MapCookieStore {
	return NewMapCookieStore(s.Values)
}
