package notify

import "sync"

// Recorded is one captured publish.
type Recorded struct {
	Topic string
	Event Event
}

// Recorder is a Sink that captures events for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(topic string, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Topic: topic, Event: event})
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// ByTopic returns the captured events published to the given topic.
func (r *Recorder) ByTopic(topic string) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, e := range r.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

var _ Sink = (*Recorder)(nil)
