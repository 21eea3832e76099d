package avatar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opCall struct {
	op   string
	args []interface{}
}

// fakeBackend exposes a configurable operation surface: each supported op
// maps to its accepted argument counts. Parameter state is tracked for the
// set/get/add family so equivalence tests can compare outcomes.
type fakeBackend struct {
	supported map[string][]int
	errs      map[string]error
	params    map[string]float64
	calls     []opCall
}

func newFakeBackend(supported map[string][]int) *fakeBackend {
	return &fakeBackend{
		supported: supported,
		errs:      map[string]error{},
		params:    map[string]float64{},
	}
}

func (f *fakeBackend) check(op string, argc int) error {
	arities, ok := f.supported[op]
	if !ok {
		return ErrUnknownOperation
	}
	for _, a := range arities {
		if a == argc {
			if err := f.errs[op]; err != nil {
				return err
			}
			return nil
		}
	}
	return ErrBadArity
}

func (f *fakeBackend) Invoke(op string, args ...interface{}) error {
	f.calls = append(f.calls, opCall{op, args})
	if err := f.check(op, len(args)); err != nil {
		return err
	}
	id, _ := args[0].(string)
	switch op {
	case "SetParameterValue", "SetParamFloat", "SetParamValue", "SetParam", "UpdateParameter":
		value, _ := asFloat(args[1])
		if len(args) == 3 {
			blend, _ := asFloat(args[2])
			current := f.params[id]
			f.params[id] = current + (value-current)*blend
		} else {
			f.params[id] = value
		}
	case "AddParameterValue":
		delta, _ := asFloat(args[1])
		f.params[id] += delta
	}
	return nil
}

func (f *fakeBackend) Query(op string, args ...interface{}) (float64, error) {
	f.calls = append(f.calls, opCall{op, args})
	if err := f.check(op, len(args)); err != nil {
		return 0, err
	}
	id, _ := args[0].(string)
	return f.params[id], nil
}

func (f *fakeBackend) opsCalled() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

func TestSetParameterPrefersMostSpecific(t *testing.T) {
	b := newFakeBackend(map[string][]int{"SetParameterValue": {3}})
	r := NewResolver(b, nil)
	assert.True(t, r.SetParameter("ParamX", 0.5, 1.0))
	assert.Equal(t, 0.5, b.params["ParamX"])
}

func TestSetParameterFallsThroughUnknownOps(t *testing.T) {
	b := newFakeBackend(map[string][]int{"SetParamValue": {3}})
	r := NewResolver(b, nil)
	require.True(t, r.SetParameter("ParamX", 1.0, 1.0))
	assert.Equal(t, []string{"SetParameterValue", "SetParamFloat", "SetParamValue"}, b.opsCalled())
}

func TestSetParameterArityRetry(t *testing.T) {
	// Backend only accepts the two-argument form.
	b := newFakeBackend(map[string][]int{"SetParameterValue": {2}})
	r := NewResolver(b, nil)
	require.True(t, r.SetParameter("ParamX", 0.7, 0.5))
	assert.Equal(t, 0.7, b.params["ParamX"], "two-argument form ignores blend")
}

func TestSetParameterTerminalUpdateParameter(t *testing.T) {
	b := newFakeBackend(map[string][]int{"UpdateParameter": {2}})
	r := NewResolver(b, nil)
	require.True(t, r.SetParameter("ParamX", 2.0, 1.0))
	assert.Equal(t, 2.0, b.params["ParamX"])
}

func TestSetParameterExhaustedReturnsFalse(t *testing.T) {
	b := newFakeBackend(map[string][]int{})
	r := NewResolver(b, nil)
	assert.False(t, r.SetParameter("ParamX", 1.0, 1.0))
}

func TestSetParameterBackendErrorCountsAsHandled(t *testing.T) {
	// A non-arity error means the op exists; the resolver must not keep
	// probing less specific candidates.
	b := newFakeBackend(map[string][]int{
		"SetParameterValue": {3},
		"SetParamFloat":     {3},
	})
	b.errs["SetParameterValue"] = errors.New("render thread busy")
	r := NewResolver(b, nil)
	assert.True(t, r.SetParameter("ParamX", 1.0, 1.0))
	assert.Equal(t, []string{"SetParameterValue"}, b.opsCalled())
}

func TestResolverCachesWinner(t *testing.T) {
	b := newFakeBackend(map[string][]int{"SetParamValue": {3}})
	r := NewResolver(b, nil)
	require.True(t, r.SetParameter("ParamX", 1.0, 1.0))
	b.calls = nil
	require.True(t, r.SetParameter("ParamY", 2.0, 1.0))
	assert.Equal(t, []string{"SetParamValue"}, b.opsCalled(), "second call must skip probing")
}

func TestResolverResetPurgesCache(t *testing.T) {
	b := newFakeBackend(map[string][]int{"SetParamValue": {3}})
	r := NewResolver(b, nil)
	require.True(t, r.SetParameter("ParamX", 1.0, 1.0))
	r.Reset()
	b.calls = nil
	require.True(t, r.SetParameter("ParamX", 1.0, 1.0))
	assert.Equal(t, "SetParameterValue", b.calls[0].op, "reset must restart the probe order")
}

func TestGetParameterFallbackChain(t *testing.T) {
	b := newFakeBackend(map[string][]int{"GetParamFloat": {1}})
	b.params["ParamX"] = 0.4
	r := NewResolver(b, nil)
	assert.Equal(t, 0.4, r.GetParameter("ParamX"))
}

func TestGetParameterExhaustedReturnsZero(t *testing.T) {
	b := newFakeBackend(map[string][]int{})
	r := NewResolver(b, nil)
	assert.Equal(t, 0.0, r.GetParameter("ParamX"))
}

func TestApplyParametersAdditiveNative(t *testing.T) {
	b := newFakeBackend(map[string][]int{"AddParameterValue": {2}})
	b.params["ParamX"] = 0.2
	r := NewResolver(b, nil)
	require.True(t, r.ApplyParameters(map[string]float64{"ParamX": 0.6}, 0.5, true))
	assert.InDelta(t, 0.5, b.params["ParamX"], 1e-9)
}

func TestApplyParametersAdditiveFallbackEquivalence(t *testing.T) {
	// A backend without an additive op must land on the same final value
	// via read-then-write.
	native := newFakeBackend(map[string][]int{"AddParameterValue": {2}})
	native.params["ParamX"] = 0.2

	degraded := newFakeBackend(map[string][]int{
		"GetParameterValue": {1},
		"SetParameterValue": {3},
	})
	degraded.params["ParamX"] = 0.2

	params := map[string]float64{"ParamX": 0.6}
	require.True(t, NewResolver(native, nil).ApplyParameters(params, 0.5, true))
	require.True(t, NewResolver(degraded, nil).ApplyParameters(params, 0.5, true))

	assert.InDelta(t, native.params["ParamX"], degraded.params["ParamX"], 1e-9)
}

func TestApplyParametersBlendedAbsolute(t *testing.T) {
	b := newFakeBackend(map[string][]int{"SetParameterValue": {3}})
	b.params["ParamX"] = 0.0
	r := NewResolver(b, nil)
	require.True(t, r.ApplyParameters(map[string]float64{"ParamX": 1.0}, 0.25, false))
	assert.InDelta(t, 0.25, b.params["ParamX"], 1e-9)
}
