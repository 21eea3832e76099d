package avatar

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Candidate operation names, most specific first. The terminal setter
// UpdateParameter only takes the two-argument form.
var (
	setterCandidates = []string{"SetParameterValue", "SetParamFloat", "SetParamValue", "SetParam"}
	getterCandidates = []string{"GetParameterValue", "GetParamFloat", "GetParamValue", "GetParam"}
)

// Resolver discovers which parameter operations a Backend actually
// supports and caches the winner per logical operation. The cache lives as
// long as the loaded backend instance; Reset purges it on reload or
// disposal because a reload may expose a different version.
type Resolver struct {
	mu      sync.Mutex
	backend Backend
	cache   map[string]string
	log     *zap.Logger
}

func NewResolver(backend Backend, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		backend: backend,
		cache:   make(map[string]string),
		log:     log.Named("avatar.resolver"),
	}
}

// Reset clears the capability cache.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]string)
}

func (r *Resolver) cached(logical string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.cache[logical]
	return op, ok
}

func (r *Resolver) remember(logical, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[logical] = op
}

// SetParameter writes an absolute parameter value. Each candidate is tried
// with (id, value, blend) and, on an arity error, retried as (id, value).
// The first candidate that does not fail on arity grounds wins and is
// cached; a backend-internal error still counts as handled.
func (r *Resolver) SetParameter(id string, value, blend float64) bool {
	candidates := setterCandidates
	if op, ok := r.cached("set_parameter"); ok {
		candidates = []string{op}
	}
	for _, op := range candidates {
		err := r.backend.Invoke(op, id, value, blend)
		if errors.Is(err, ErrBadArity) {
			err = r.backend.Invoke(op, id, value)
		}
		if errors.Is(err, ErrUnknownOperation) || errors.Is(err, ErrBadArity) {
			continue
		}
		if err != nil {
			r.log.Debug("parameter setter reported error", zap.String("op", op), zap.Error(err))
		}
		r.remember("set_parameter", op)
		return true
	}
	// Some backends expose a bare two-argument update only.
	if err := r.backend.Invoke("UpdateParameter", id, value); err == nil {
		r.remember("set_parameter", "UpdateParameter")
		return true
	}
	return false
}

// GetParameter reads a parameter's current value, returning 0 when no
// getter resolves.
func (r *Resolver) GetParameter(id string) float64 {
	candidates := getterCandidates
	if op, ok := r.cached("get_parameter"); ok {
		candidates = []string{op}
	}
	for _, op := range candidates {
		value, err := r.backend.Query(op, id)
		if errors.Is(err, ErrUnknownOperation) || errors.Is(err, ErrBadArity) {
			continue
		}
		if err != nil {
			r.log.Debug("parameter getter reported error", zap.String("op", op), zap.Error(err))
			return 0
		}
		r.remember("get_parameter", op)
		return value
	}
	return 0
}

// AddParameter applies a delta through a native additive operation.
// Returns false when the backend has none; callers fall back to
// read-then-write.
func (r *Resolver) AddParameter(id string, delta float64) bool {
	err := r.backend.Invoke("AddParameterValue", id, delta)
	if errors.Is(err, ErrUnknownOperation) || errors.Is(err, ErrBadArity) {
		return false
	}
	if err != nil {
		r.log.Debug("additive apply reported error", zap.Error(err))
	}
	r.remember("add_parameter", "AddParameterValue")
	return true
}

// ApplyParameters writes a batch of parameter targets. Additive mode
// prefers the native additive operation and otherwise reads the current
// value and writes the sum absolutely. Reports whether any parameter was
// applied.
func (r *Resolver) ApplyParameters(params map[string]float64, blend float64, additive bool) bool {
	applied := false
	for id, value := range params {
		var ok bool
		if additive {
			ok = r.AddParameter(id, value*blend)
			if !ok {
				base := r.GetParameter(id)
				ok = r.SetParameter(id, base+value*blend, 1.0)
			}
		} else {
			ok = r.SetParameter(id, value, blend)
		}
		applied = applied || ok
	}
	return applied
}
