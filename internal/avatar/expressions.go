package avatar

import (
	"sort"
	"sync"

	"deskmate/internal/types"
)

// ExpressionSet holds named expression presets. A preset is either the
// canonical form {"parameters": {ParamID: value, ...}, "description": ...}
// or the simplified flat form {ParamID: value, ..., "description": ...};
// non-numeric fields in the flat form are documentation, not parameters.
type ExpressionSet struct {
	mu   sync.RWMutex
	defs map[string]interface{}
}

func NewExpressionSet(defs map[string]interface{}) *ExpressionSet {
	s := &ExpressionSet{}
	s.Replace(defs)
	return s
}

// Replace swaps the full preset table, typically after a settings reload.
func (s *ExpressionSet) Replace(defs map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = defs
}

// Names lists the preset names in sorted order.
func (s *ExpressionSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parameters resolves a preset name to its parameter targets. Unknown
// names and presets with no numeric parameters return nil.
func (s *ExpressionSet) Parameters(name string) map[string]float64 {
	if name == "" {
		return nil
	}
	s.mu.RLock()
	def, ok := s.defs[name]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	m, ok := def.(map[string]interface{})
	if !ok {
		return nil
	}
	if inner, ok := types.PayloadMap(m, "parameters"); ok {
		params := types.NumericMap(inner)
		if len(params) > 0 {
			return params
		}
		return nil
	}
	params := types.NumericMap(m)
	if len(params) == 0 {
		return nil
	}
	return params
}
