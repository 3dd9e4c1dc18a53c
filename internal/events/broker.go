package events

import (
    "strconv"
    "sync"
    "time"
)

// Event is one notification about a planning run.
type Event struct {
    Type string         `json:"type"`
    At   time.Time      `json:"at"`
    Data map[string]any `json:"data"`
}

const (
    TypeAssignmentCompleted = "assignment.completed"
    TypeRouteOptimized      = "route.optimized"
    TypeRouteSkipped        = "route.skipped"
    TypeShipmentGeocoded    = "shipment.geocoded"
)

// TopicRuns carries every planning event. Per-vehicle events are also sent
// on VehicleTopic(id).
const TopicRuns = "runs"

func VehicleTopic(id int64) string { return "vehicle:" + strconv.FormatInt(id, 10) }

// Broker fans events out to subscribers of a topic. Slow subscribers drop
// events rather than block publishers.
type Broker interface {
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
    Publish(topic string, evt Event)
}

// Memory is the in-process Broker.
type Memory struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewMemory() *Memory {
    return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(topic string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Memory) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[topic]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, topic) }
    close(ch)
}

func (b *Memory) Publish(topic string, evt Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[topic] {
        select { case ch <- evt: default: }
    }
}
