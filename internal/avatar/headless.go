package avatar

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Headless is an in-memory Backend for running without a renderer. It
// keeps parameter values and a log of started motions so interactive
// sessions and tests can observe what directives did.
type Headless struct {
	mu     sync.Mutex
	params map[string]float64
	played []PlayedMotion
	log    *zap.Logger
}

// PlayedMotion records one accepted motion request.
type PlayedMotion struct {
	Group    string
	Index    int
	Priority int
}

func NewHeadless(log *zap.Logger) *Headless {
	if log == nil {
		log = zap.NewNop()
	}
	return &Headless{
		params: make(map[string]float64),
		log:    log.Named("avatar.headless"),
	}
}

// Invoke implements Backend. The supported surface is deliberately the
// modern one (SetParameterValue, StartMotion, Drag) so the resolver's
// first candidates hit.
func (h *Headless) Invoke(op string, args ...interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch op {
	case "SetParameterValue":
		if len(args) != 3 {
			return ErrBadArity
		}
		id, value, blend, err := paramArgs3(args)
		if err != nil {
			return err
		}
		current := h.params[id]
		h.params[id] = current + (value-current)*blend
		return nil
	case "AddParameterValue":
		if len(args) != 2 {
			return ErrBadArity
		}
		id, delta, err := paramArgs2(args)
		if err != nil {
			return err
		}
		h.params[id] += delta
		return nil
	case "StartMotion":
		if len(args) != 3 {
			return ErrBadArity
		}
		group, _ := args[0].(string)
		index, _ := asInt(args[1])
		priority, _ := asInt(args[2])
		h.played = append(h.played, PlayedMotion{Group: group, Index: index, Priority: priority})
		h.log.Debug("motion started",
			zap.String("group", group),
			zap.Int("index", index))
		return nil
	case "Drag":
		if len(args) != 2 {
			return ErrBadArity
		}
		return nil
	default:
		return ErrUnknownOperation
	}
}

// Query implements Backend.
func (h *Headless) Query(op string, args ...interface{}) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch op {
	case "GetParameterValue":
		if len(args) != 1 {
			return 0, ErrBadArity
		}
		id, ok := args[0].(string)
		if !ok {
			return 0, fmt.Errorf("parameter id must be a string, got %T", args[0])
		}
		return h.params[id], nil
	default:
		return 0, ErrUnknownOperation
	}
}

// Parameter returns the current value of one parameter.
func (h *Headless) Parameter(id string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params[id]
}

// Played returns the motions started so far.
func (h *Headless) Played() []PlayedMotion {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PlayedMotion, len(h.played))
	copy(out, h.played)
	return out
}

func paramArgs3(args []interface{}) (string, float64, float64, error) {
	id, ok := args[0].(string)
	if !ok {
		return "", 0, 0, fmt.Errorf("parameter id must be a string, got %T", args[0])
	}
	value, ok := asFloat(args[1])
	if !ok {
		return "", 0, 0, fmt.Errorf("parameter value must be numeric, got %T", args[1])
	}
	blend, ok := asFloat(args[2])
	if !ok {
		return "", 0, 0, fmt.Errorf("blend must be numeric, got %T", args[2])
	}
	return id, value, blend, nil
}

func paramArgs2(args []interface{}) (string, float64, error) {
	id, ok := args[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("parameter id must be a string, got %T", args[0])
	}
	value, ok := asFloat(args[1])
	if !ok {
		return "", 0, fmt.Errorf("parameter value must be numeric, got %T", args[1])
	}
	return id, value, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v interface{}) (int, bool) {
	f, ok := asFloat(v)
	return int(f), ok
}
