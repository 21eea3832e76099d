package avatar

import (
	"errors"
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"

	"deskmate/internal/types"
)

const (
	defaultMotionPriority = 3

	minScale = 0.1
	maxScale = 5.0
)

// Controller is the single entry point for applying directives to the
// animation backend. It owns the motion index, the expression presets, the
// capability resolver and the view transform (scale and position offset).
//
// Apply never returns an error for unresolvable directives: animation is
// cosmetic, so unknown kinds, missing fields and exhausted fallbacks are
// logged no-ops.
type Controller struct {
	mu       sync.Mutex
	backend  Backend
	resolver *Resolver
	motions  *MotionIndex
	exprs    *ExpressionSet

	scale float64
	posX  float64
	posY  float64

	rng *rand.Rand
	log *zap.Logger
}

func NewController(backend Backend, exprs *ExpressionSet, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if exprs == nil {
		exprs = NewExpressionSet(nil)
	}
	return &Controller{
		backend:  backend,
		resolver: NewResolver(backend, log),
		exprs:    exprs,
		scale:    1.0,
		rng:      rand.New(rand.NewSource(rand.Int63())),
		log:      log.Named("avatar.controller"),
	}
}

// LoadModel loads a model manifest, rebuilding the motion index and
// purging the capability cache since the backend may have changed shape.
func (c *Controller) LoadModel(manifestPath string) error {
	idx, err := LoadMotionIndex(manifestPath)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.motions = idx
	c.mu.Unlock()
	c.resolver.Reset()
	c.log.Info("model loaded",
		zap.String("manifest", manifestPath),
		zap.Int("motion_groups", len(idx.groups)))
	return nil
}

// SetMotionIndex installs a prebuilt index, for backends whose assets are
// not manifest files. The capability cache is purged as on LoadModel.
func (c *Controller) SetMotionIndex(idx *MotionIndex) {
	c.mu.Lock()
	c.motions = idx
	c.mu.Unlock()
	c.resolver.Reset()
}

// Dispose drops the motion index and capability cache.
func (c *Controller) Dispose() {
	c.mu.Lock()
	c.motions = nil
	c.mu.Unlock()
	c.resolver.Reset()
}

// Apply routes one directive to the matching operation. Unknown kinds are
// ignored. Implements the chat.Handler signature.
func (c *Controller) Apply(d types.Directive) error {
	payload := d.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	switch strings.ToLower(d.Kind) {
	case "motion", "start_motion", "play_motion":
		c.playMotion(payload)
	case "scale", "set_scale":
		if value, ok := types.PayloadFloat(payload, "value", "scale"); ok {
			c.SetScale(value)
		}
	case "move", "translate":
		dx, _ := types.PayloadFloat(payload, "dx")
		dy, _ := types.PayloadFloat(payload, "dy")
		c.Translate(dx, dy)
	case "position", "set_position":
		x, okX := types.PayloadFloat(payload, "x")
		y, okY := types.PayloadFloat(payload, "y")
		if okX && okY {
			c.SetPosition(x, y)
		}
	case "look", "drag":
		x, okX := types.PayloadFloat(payload, "x")
		y, okY := types.PayloadFloat(payload, "y")
		if okX && okY {
			c.Drag(x, y)
		}
	case "expression", "set_expression", "face":
		c.applyExpression(payload)
	default:
		c.log.Debug("ignoring unknown directive kind", zap.String("kind", d.Kind))
	}
	return nil
}

// playMotion resolves a motion directive through the fallback chain:
// explicit group+index, explicit file, identifier constrained to the
// requested group, then random. A backend rejection moves on to the next
// step; running out of fallbacks is a silent no-op.
func (c *Controller) playMotion(payload map[string]interface{}) {
	group, _ := types.PayloadString(payload, "group")
	file, _ := types.PayloadString(payload, "file", "path", "motionFile")
	identifier, _ := types.PayloadString(payload, "motion", "name", "value")

	priority := defaultMotionPriority
	if p, ok := types.PayloadInt(payload, "priority"); ok {
		priority = p
	}

	index, hasIndex := types.PayloadInt(payload, "index")
	if hasIndex && index < 0 {
		index = 0
	}

	if group != "" {
		if hasIndex && c.StartMotion(group, index, priority) {
			return
		}
		if file != "" && c.StartMotionByFile(file, priority) {
			return
		}
		if identifier != "" {
			if ref, ok := c.FindMotion(identifier); ok && ref.Group == group {
				if c.StartMotion(ref.Group, ref.Index, priority) {
					return
				}
			}
		}
		c.StartRandomMotion(group, priority)
		return
	}

	candidate := file
	if candidate == "" {
		candidate = identifier
	}
	if candidate != "" {
		if ref, ok := c.FindMotion(candidate); ok {
			if c.StartMotion(ref.Group, ref.Index, priority) {
				return
			}
		}
	}
	c.StartRandomMotion("", priority)
}

// StartMotion asks the backend to play group[index]. Reports whether the
// backend accepted the request.
func (c *Controller) StartMotion(group string, index, priority int) bool {
	if index < 0 {
		index = 0
	}
	err := c.backend.Invoke("StartMotion", group, index, priority)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrUnknownOperation) {
		// Older bindings only know the by-name form.
		files := c.index().Group(group)
		if index < len(files) {
			if c.backend.Invoke("StartMotionByName", group, files[index]) == nil {
				return true
			}
		}
	}
	c.log.Debug("motion rejected",
		zap.String("group", group),
		zap.Int("index", index),
		zap.Error(err))
	return false
}

// StartMotionByFile resolves an asset path through the motion index.
func (c *Controller) StartMotionByFile(file string, priority int) bool {
	ref, ok := c.FindMotion(file)
	if !ok {
		return false
	}
	return c.StartMotion(ref.Group, ref.Index, priority)
}

// FindMotion resolves an identifier (path or basename) via the index.
func (c *Controller) FindMotion(identifier string) (types.MotionRef, bool) {
	return c.index().Find(identifier)
}

// StartRandomMotion plays a random motion, within group when non-empty.
// Reports false when no motion could be started.
func (c *Controller) StartRandomMotion(group string, priority int) bool {
	if err := c.backend.Invoke("StartRandomMotion", group, priority); err == nil {
		return true
	}
	idx := c.index()
	var pool []types.MotionRef
	if group != "" {
		for i := range idx.Group(group) {
			pool = append(pool, types.MotionRef{Group: group, Index: i})
		}
	} else {
		for _, name := range idx.GroupNames() {
			for i := range idx.Group(name) {
				pool = append(pool, types.MotionRef{Group: name, Index: i})
			}
		}
	}
	if len(pool) == 0 {
		return false
	}
	c.mu.Lock()
	ref := pool[c.rng.Intn(len(pool))]
	c.mu.Unlock()
	return c.backend.Invoke("StartMotion", ref.Group, ref.Index, priority) == nil
}

// applyExpression resolves a named preset, falling back to an inline
// parameters map when the name is unknown or the preset does not take.
func (c *Controller) applyExpression(payload map[string]interface{}) {
	name, _ := types.PayloadString(payload, "name", "value", "expression")
	blend, ok := types.PayloadFloat(payload, "blend", "weight")
	if !ok {
		blend = 1.0
	}
	additive, _ := types.PayloadBool(payload, "additive")

	if name != "" {
		if params := c.exprs.Parameters(name); params != nil {
			if c.resolver.ApplyParameters(params, blend, additive) {
				return
			}
		}
	}
	if inline, ok := types.PayloadMap(payload, "parameters"); ok {
		if params := types.NumericMap(inline); len(params) > 0 {
			c.resolver.ApplyParameters(params, blend, additive)
			return
		}
	}
	c.log.Debug("expression directive had no usable preset or parameters",
		zap.String("name", name))
}

// ApplyParameters forwards a raw parameter batch to the resolver.
func (c *Controller) ApplyParameters(params map[string]float64, blend float64, additive bool) bool {
	return c.resolver.ApplyParameters(params, blend, additive)
}

// SetScale sets the view scale, clamped to a sane range.
func (c *Controller) SetScale(scale float64) {
	if scale < minScale {
		scale = minScale
	}
	if scale > maxScale {
		scale = maxScale
	}
	c.mu.Lock()
	c.scale = scale
	c.mu.Unlock()
}

// Scale returns the current view scale.
func (c *Controller) Scale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// Translate moves the view offset by a relative amount.
func (c *Controller) Translate(dx, dy float64) {
	c.mu.Lock()
	c.posX += dx
	c.posY += dy
	c.mu.Unlock()
}

// SetPosition sets the absolute view offset.
func (c *Controller) SetPosition(x, y float64) {
	c.mu.Lock()
	c.posX = x
	c.posY = y
	c.mu.Unlock()
}

// Position returns the current view offset.
func (c *Controller) Position() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posX, c.posY
}

// Drag forwards a pointer gaze target to the backend.
func (c *Controller) Drag(x, y float64) {
	if err := c.backend.Invoke("Drag", x, y); err != nil {
		c.log.Debug("drag rejected", zap.Error(err))
	}
}

// ListMotions returns the loaded group-to-files mapping.
func (c *Controller) ListMotions() map[string][]string {
	return c.index().Groups()
}

func (c *Controller) index() *MotionIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.motions
}
