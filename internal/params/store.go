// Package params keeps the named stimulation parameters and turns a
// normalized magnitude into concrete pulse parameters.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenStimCore/internal/schema"
)

// ParamsFile is the parameter file name inside the config dir.
const ParamsFile = "stimParams.json"

var (
	ErrParamNotFound = errors.New("params: parameter not found")
	ErrInvalidValue  = errors.New("params: invalid value")
)

// Store is a concurrency-safe key to value map.
type Store struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewStore() *Store {
	return &Store{values: make(map[string]float64)}
}

func (s *Store) Get(key string) (float64, error) {
	v, ok := s.TryGet(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrParamNotFound, key)
	}
	return v, nil
}

func (s *Store) TryGet(key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Set(key string, v float64) error {
	return s.SetMany(map[string]float64{key: v})
}

// SetMany applies every value or none of them.
func (s *Store) SetMany(values map[string]float64) error {
	for k, v := range values {
		if err := checkEntry(k, v); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

// SetDefault stores v only when key is missing and reports whether it did.
func (s *Store) SetDefault(key string, v float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false
	}
	s.values[key] = v
	return true
}

// All returns a copy of every parameter.
func (s *Store) All() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store) Replace(values map[string]float64) error {
	next := make(map[string]float64, len(values))
	for k, v := range values {
		if err := checkEntry(k, v); err != nil {
			return err
		}
		next[k] = v
	}

	s.mu.Lock()
	s.values = next
	s.mu.Unlock()
	return nil
}

// Save writes every parameter to path as a JSON object with sorted keys.
func (s *Store) Save(path string) error {
	return schema.WriteFile(path, s.All())
}

// Load replaces the store with the contents of path. Nothing changes if the
// file cannot be read or decoded.
func (s *Store) Load(path string) error {
	values, err := ReadFile(path)
	if err != nil {
		return err
	}
	return s.Replace(values)
}

// ReadFile decodes a parameter file. path may also name a directory holding
// ParamsFile.
func ReadFile(path string) (map[string]float64, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ParamsFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params: %w", err)
	}

	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse params %s: %w", path, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: %s does not hold a JSON object", ErrInvalidValue, path)
	}
	return values, nil
}

func checkEntry(key string, v float64) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidValue)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidValue, key, v)
	}
	return nil
}
