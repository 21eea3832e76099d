package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"deskmate/internal/types"
)

// Sender is the transport the Manager speaks through. *Client implements
// it; tests substitute fakes.
type Sender interface {
	Send(ctx context.Context, systemPrompt string, history []types.ConversationTurn) types.StructuredResponse
}

// Archiver receives every conversation turn for durable storage. Append
// errors are logged and ignored; the transcript archive is advisory.
type Archiver interface {
	Append(role, content string) error
}

// Handler consumes one directive. Returned errors and panics are swallowed
// at the dispatch layer so one handler can never starve another.
type Handler func(types.Directive) error

// HandlerID identifies a registered handler for later removal.
type HandlerID int

// pendingLimit bounds the async directive queue. When vision events
// produce directives faster than the flush cadence drains them, the oldest
// are dropped: stale cosmetic directives are worth less than fresh ones.
const pendingLimit = 256

const defaultFlushInterval = time.Second

// Manager owns the conversation history and bridges normalized directives
// to registered handlers. Synchronous sends dispatch immediately; async
// sources (vision) enqueue onto a pending queue drained by a periodic
// flush.
type registeredHandler struct {
	id HandlerID
	fn Handler
}

type Manager struct {
	mu       sync.Mutex
	sender   Sender
	history  []types.ConversationTurn
	handlers []registeredHandler
	nextID   HandlerID
	pending  []types.Directive

	systemPrompt string
	greeting     string

	visionMu   sync.Mutex
	lastVision time.Time

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool

	archive Archiver
	log     *zap.Logger
}

// ManagerOption customizes a Manager at construction time.
type ManagerOption func(*Manager)

// WithArchiver attaches a transcript archive.
func WithArchiver(a Archiver) ManagerOption {
	return func(m *Manager) { m.archive = a }
}

// WithFlushInterval overrides the pending queue drain cadence.
func WithFlushInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.flushEvery = d
		}
	}
}

func NewManager(sender Sender, log *zap.Logger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		sender:     sender,
		flushEvery: defaultFlushInterval,
		log:        log.Named("chat.manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdatePrompts swaps the system prompt and greeting, typically after a
// settings reload.
func (m *Manager) UpdatePrompts(systemPrompt, greeting string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemPrompt = systemPrompt
	m.greeting = greeting
}

// Greeting returns the configured greeting line, possibly empty.
func (m *Manager) Greeting() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.greeting
}

// ResetHistory clears the in-memory conversation.
func (m *Manager) ResetHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// History returns a copy of the conversation so far.
func (m *Manager) History() []types.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ConversationTurn, len(m.history))
	copy(out, m.history)
	return out
}

// RegisterHandler adds a directive handler and returns its removal token.
// Handlers run in registration order.
func (m *Manager) RegisterHandler(h Handler) HandlerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, registeredHandler{id: id, fn: h})
	return id
}

// UnregisterHandler removes a handler. Unknown IDs are a no-op.
func (m *Manager) UnregisterHandler(id HandlerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.handlers {
		if h.id == id {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			return
		}
	}
}

// SendMessage sends a user turn and dispatches any resulting directives.
// The history is snapshotted before the blocking network call so other
// goroutines are not held up. A transport failure still appends the user
// turn; the synthesized error text becomes the assistant turn, so the
// conversation never shows an unanswered message.
func (m *Manager) SendMessage(ctx context.Context, text string) types.StructuredResponse {
	m.mu.Lock()
	snapshot := make([]types.ConversationTurn, len(m.history), len(m.history)+1)
	copy(snapshot, m.history)
	snapshot = append(snapshot, types.ConversationTurn{Role: types.RoleUser, Content: text})
	prompt := m.systemPrompt
	m.mu.Unlock()

	resp := m.sender.Send(ctx, prompt, snapshot)

	m.mu.Lock()
	m.history = append(m.history,
		types.ConversationTurn{Role: types.RoleUser, Content: text},
		types.ConversationTurn{Role: types.RoleAssistant, Content: resp.Text},
	)
	m.mu.Unlock()

	m.archiveTurn(types.RoleUser, text)
	m.archiveTurn(types.RoleAssistant, resp.Text)

	m.Dispatch(resp.Directives)
	return resp
}

// Dispatch hands each directive to every registered handler in turn.
// Handler failures are isolated: an error or panic in one handler never
// prevents the others from seeing the same directive.
func (m *Manager) Dispatch(directives []types.Directive) {
	if len(directives) == 0 {
		return
	}
	m.mu.Lock()
	handlers := make([]registeredHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, d := range directives {
		for _, h := range handlers {
			m.invoke(h.fn, d)
		}
	}
}

func (m *Manager) invoke(h Handler, d types.Directive) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("directive handler panicked",
				zap.String("kind", d.Kind),
				zap.Any("panic", r))
		}
	}()
	if err := h(d); err != nil {
		m.log.Debug("directive handler failed",
			zap.String("kind", d.Kind),
			zap.Error(err))
	}
}

// Enqueue places directives on the pending queue for the next flush.
func (m *Manager) Enqueue(directives []types.Directive) {
	if len(directives) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, directives...)
	if over := len(m.pending) - pendingLimit; over > 0 {
		m.log.Warn("pending directive queue full, dropping oldest",
			zap.Int("dropped", over))
		m.pending = m.pending[over:]
	}
}

// DrainPending removes and returns all queued directives in FIFO order.
func (m *Manager) DrainPending() []types.Directive {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// Start launches the periodic flush loop. Safe to call once; Stop joins
// the loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(m.flushEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				m.Dispatch(m.DrainPending())
			}
		}
	}()
}

// Stop halts the flush loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// HandleVision feeds a screen capture observation into the conversation.
// Stale events (at or before the last accepted timestamp) are dropped. The
// observation is recorded as a system turn; directives from an ok response
// are queued rather than dispatched inline, since vision runs off the user
// interaction path.
func (m *Manager) HandleVision(ctx context.Context, text string, capturedAt time.Time, width, height int, snapshot string) {
	text = strings.TrimSpace(text)
	if text == "" && snapshot == "" {
		return
	}

	m.visionMu.Lock()
	if !capturedAt.IsZero() && !capturedAt.After(m.lastVision) {
		m.visionMu.Unlock()
		return
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	m.lastVision = capturedAt
	m.visionMu.Unlock()

	summary := formatVisionPrompt(text, width, height, snapshot)
	if summary == "" {
		return
	}

	m.mu.Lock()
	snapshotHist := make([]types.ConversationTurn, len(m.history), len(m.history)+1)
	copy(snapshotHist, m.history)
	snapshotHist = append(snapshotHist, types.ConversationTurn{Role: types.RoleUser, Content: summary})
	prompt := m.systemPrompt
	m.mu.Unlock()

	resp := m.sender.Send(ctx, prompt, snapshotHist)

	m.mu.Lock()
	m.history = append(m.history, types.ConversationTurn{Role: types.RoleSystem, Content: summary})
	if resp.Text != "" {
		m.history = append(m.history, types.ConversationTurn{Role: types.RoleAssistant, Content: resp.Text})
	}
	m.mu.Unlock()

	m.archiveTurn(types.RoleSystem, summary)
	if resp.Text != "" {
		m.archiveTurn(types.RoleAssistant, resp.Text)
	}

	if resp.Status == types.StatusOK && len(resp.Directives) > 0 {
		m.Enqueue(resp.Directives)
	}
}

func formatVisionPrompt(text string, width, height int, snapshot string) string {
	lines := []string{"[vision capture]"}
	if text != "" {
		lines = append(lines, text)
	}
	if width > 0 && height > 0 {
		lines = append(lines, fmt.Sprintf("region: %dx%d", width, height))
	}
	if snapshot != "" {
		lines = append(lines, "snapshot: "+snapshot)
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func (m *Manager) archiveTurn(role, content string) {
	if m.archive == nil || content == "" {
		return
	}
	if err := m.archive.Append(role, content); err != nil {
		m.log.Debug("transcript archive append failed", zap.Error(err))
	}
}
