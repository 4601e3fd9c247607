package agent

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wangmax2011/maxclaw/internal/bus"
)

// ErrAlreadyRegistered is returned by Registry.Register when an agent with
// the same id is already registered.
var ErrAlreadyRegistered = errors.New("agent: already registered")

// ErrNotFound is returned when a targeted agent id has no registration.
var ErrNotFound = errors.New("agent: not found")

type registration struct {
	agent     Agent
	subIDs    []int
	info      *Info
	registeredAt time.Time
}

// SendResult is the outcome of a query-style sendMessage call.
type SendResult struct {
	Success      bool
	Data         any
	Error        string
	ResponseTime time.Duration
}

// Registry is the in-process agent directory and message router. It sits
// on top of a Bus: registration subscribes the agent's inbox topic plus any
// extra topics, and routes matching messages to Agent.HandleMessage.
type Registry struct {
	mu               sync.RWMutex
	bus              *bus.Bus
	logger           *slog.Logger
	order            []string // registration order, for reverse-order shutdown
	regs             map[string]*registration
	heartbeatEvery   time.Duration
	stopHeartbeat    context.CancelFunc
	requestTimeout   time.Duration
}

// New creates a Registry bound to b. heartbeatInterval controls how often
// the offline sweep runs; an agent is marked offline once its
// lastHeartbeatAt is older than 3×heartbeatInterval.
func New(b *bus.Bus, logger *slog.Logger, heartbeatInterval time.Duration) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &Registry{
		bus:            b,
		logger:         logger,
		regs:           make(map[string]*registration),
		heartbeatEvery: heartbeatInterval,
		requestTimeout: 10 * time.Second,
	}
}

// RegisterAgent subscribes a to its inbox topic (agent:{id}:inbox) plus any
// extraTopics, then calls Initialize. On Initialize failure the
// subscriptions are undone and the error is returned.
func (r *Registry) RegisterAgent(a Agent, extraTopics ...string) error {
	id := a.ID()

	r.mu.Lock()
	if _, exists := r.regs[id]; exists {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r.mu.Unlock()

	var subIDs []int
	handler := func(msg bus.Message) {
		result, err := a.HandleMessage(msg)
		if msg.CorrelationID == "" {
			if err != nil {
				r.logger.Warn("agent_handle_message_error", slog.String("agent_id", id), slog.Any("error", err))
			}
			return
		}
		if err != nil {
			r.bus.Reply(msg, bus.Message{Type: bus.TypeError, Sender: id, Payload: err.Error()})
			return
		}
		r.bus.Reply(msg, bus.Message{Type: bus.TypeResponse, Sender: id, Payload: result})
	}
	subIDs = append(subIDs, r.bus.Subscribe(bus.AgentInboxTopic(id), handler))
	for _, topic := range extraTopics {
		subIDs = append(subIDs, r.bus.Subscribe(topic, handler))
	}

	if err := a.Initialize(); err != nil {
		for _, sid := range subIDs {
			r.bus.Unsubscribe(sid)
		}
		return err
	}

	now := time.Now().UTC()
	info := &Info{
		ID:              id,
		Name:            a.Name(),
		Capabilities:    a.Capabilities(),
		Status:          StatusIdle,
		RegisteredAt:    now,
		LastHeartbeatAt: now,
	}

	r.mu.Lock()
	if _, exists := r.regs[id]; exists {
		r.mu.Unlock()
		for _, sid := range subIDs {
			r.bus.Unsubscribe(sid)
		}
		return ErrAlreadyRegistered
	}
	r.regs[id] = &registration{agent: a, subIDs: subIDs, info: info, registeredAt: now}
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.bus.Publish(bus.TopicAgentRegistered, bus.Message{Type: bus.TypeNotification, Payload: id})
	return nil
}

// UnregisterAgent removes an agent's registration and subscriptions without
// calling Shutdown (used for error-path cleanup; Registry.Shutdown calls
// Agent.Shutdown() explicitly).
func (r *Registry) UnregisterAgent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return ErrNotFound
	}
	for _, sid := range reg.subIDs {
		r.bus.Unsubscribe(sid)
	}
	delete(r.regs, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SendMessage delivers payload to targetID. For type=notification this is
// fire-and-forget. For type=query it uses request/response over the bus and
// returns a SendResult; an unknown target yields {Success:false, Error:"not
// found"}.
func (r *Registry) SendMessage(ctx context.Context, targetID string, payload any, sender string, msgType bus.MessageType) *SendResult {
	r.mu.RLock()
	_, ok := r.regs[targetID]
	r.mu.RUnlock()
	if !ok {
		return &SendResult{Success: false, Error: "not found"}
	}

	msg := bus.Message{Type: msgType, Sender: sender, Receiver: targetID, Payload: payload}

	if msgType != bus.TypeQuery {
		r.bus.Publish(bus.AgentInboxTopic(targetID), msg)
		return nil
	}

	start := time.Now()
	resp, err := r.bus.Request(ctx, bus.AgentInboxTopic(targetID), msg, r.requestTimeout)
	elapsed := time.Since(start)
	if err != nil {
		return &SendResult{Success: false, Error: err.Error(), ResponseTime: elapsed}
	}
	if resp.Type == bus.TypeError {
		return &SendResult{Success: false, Error: errString(resp.Payload), ResponseTime: elapsed}
	}
	return &SendResult{Success: true, Data: resp.Payload, ResponseTime: elapsed}
}

func errString(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	if err, ok := payload.(error); ok {
		return err.Error()
	}
	return "unknown error"
}

// Broadcast fire-and-forget publishes payload to topic; every agent
// subscribed to it (directly or via a matching pattern) receives it.
func (r *Registry) Broadcast(topic string, payload any, sender string) {
	r.bus.Publish(topic, bus.Message{Type: bus.TypeNotification, Sender: sender, Topic: topic, Payload: payload})
}

// DiscoverFilter narrows DiscoverAgents results.
type DiscoverFilter struct {
	Capability string
	Status     Status
}

// DiscoverAgents filters the in-memory directory by capability and/or
// status, returning entries sorted by id for determinism.
func (r *Registry) DiscoverAgents(filter DiscoverFilter) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.regs))
	for _, reg := range r.regs {
		if filter.Status != "" && reg.info.Status != filter.Status {
			continue
		}
		if filter.Capability != "" && !hasCapability(reg.info.Capabilities, filter.Capability) {
			continue
		}
		out = append(out, *reg.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasCapability(caps []string, want string) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}

// Heartbeat records that id is alive and marks it idle if it was offline.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return ErrNotFound
	}
	reg.info.LastHeartbeatAt = time.Now().UTC()
	if reg.info.Status == StatusOffline {
		reg.info.Status = StatusIdle
	}
	return nil
}

// SetStatus updates an agent's directory status (idle/busy/error), distinct
// from the heartbeat-driven offline transition.
func (r *Registry) SetStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return ErrNotFound
	}
	reg.info.Status = status
	return nil
}

// StartHeartbeatSweep runs a ticking goroutine that marks any agent whose
// LastHeartbeatAt is older than 3×heartbeatInterval as offline. Shutdown()
// (or context cancellation) ends the loop.
func (r *Registry) StartHeartbeatSweep(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.stopHeartbeat = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweepOffline()
			}
		}
	}()
}

func (r *Registry) sweepOffline() {
	threshold := 3 * r.heartbeatEvery
	now := time.Now().UTC()

	r.mu.Lock()
	var offlined []string
	for id, reg := range r.regs {
		if reg.info.Status == StatusOffline {
			continue
		}
		if now.Sub(reg.info.LastHeartbeatAt) > threshold {
			reg.info.Status = StatusOffline
			offlined = append(offlined, id)
		}
	}
	r.mu.Unlock()

	for _, id := range offlined {
		r.logger.Warn("agent_marked_offline", slog.String("agent_id", id))
		r.bus.Publish(bus.TopicAgentOffline, bus.Message{Type: bus.TypeNotification, Payload: id})
	}
}

// Shutdown calls Shutdown() on every registered agent in reverse
// registration order, unsubscribes all subscriptions, and clears the
// directory. Idempotent: a second call is a no-op.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.stopHeartbeat != nil {
		r.stopHeartbeat()
		r.stopHeartbeat = nil
	}
	order := append([]string(nil), r.order...)
	regs := r.regs
	r.order = nil
	r.regs = make(map[string]*registration)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		reg, ok := regs[order[i]]
		if !ok {
			continue
		}
		for _, sid := range reg.subIDs {
			r.bus.Unsubscribe(sid)
		}
		if err := reg.agent.Shutdown(); err != nil {
			r.logger.Warn("agent_shutdown_error", slog.String("agent_id", reg.info.ID), slog.Any("error", err))
		}
	}
}
