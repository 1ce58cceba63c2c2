package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrStoreClosed = errors.New("message store closed")
	ErrLiveExists  = errors.New("live message already exists")
)

type EventKind string

const (
	EventAppended EventKind = "appended"
	EventUpdated  EventKind = "updated"
	EventRemoved  EventKind = "removed"
)

// Event describes one change to a patient's thread.
type Event struct {
	PatientID string    `json:"patient_id"`
	Kind      EventKind `json:"kind"`
	Message   Message   `json:"message"`
}

// Store owns every patient's message thread. All reads and mutations run on
// a single goroutine in submission order, so fragment appends and pipeline
// updates can never interleave inside one operation.
type Store struct {
	ops  chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once

	// owned by the loop goroutine
	threads map[string][]Message
	subs    map[int]chan Event
	nextSub int

	Now func() time.Time
}

func NewStore() *Store {
	s := &Store{
		ops:     make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		threads: make(map[string][]Message),
		subs:    make(map[int]chan Event),
		Now:     time.Now,
	}
	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			for id, ch := range s.subs {
				close(ch)
				delete(s.subs, id)
			}
			return
		}
	}
}

// Close stops the store loop; later calls fail with ErrStoreClosed.
func (s *Store) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

// do runs fn on the store goroutine and waits for it to finish.
func (s *Store) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrStoreClosed
	}
	<-finished
	return nil
}

func (s *Store) publish(patientID string, kind EventKind, m Message) {
	ev := Event{PatientID: patientID, Kind: kind, Message: m}
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber", id).Str("patient_id", patientID).Msg("chat: subscriber lagging, event dropped")
		}
	}
}

func (s *Store) appendLocked(patientID string, m Message) Message {
	m = stamp(m, s.Now())
	s.threads[patientID] = append(s.threads[patientID], m)
	s.publish(patientID, EventAppended, m)
	return m
}

func (s *Store) liveIndexLocked(patientID string) int {
	for i, m := range s.threads[patientID] {
		if m.IsLive {
			return i
		}
	}
	return -1
}

// Seed replaces a patient's thread with initial history.
func (s *Store) Seed(patientID string, msgs []Message) error {
	return s.do(func() {
		thread := make([]Message, 0, len(msgs))
		now := s.Now()
		for _, m := range msgs {
			m.IsLive = false
			thread = append(thread, stamp(m, now))
		}
		s.threads[patientID] = thread
	})
}

// Append adds m to the end of the patient's thread and returns the stored
// copy with ID and timestamps filled in.
func (s *Store) Append(patientID string, m Message) (Message, error) {
	var out Message
	err := s.do(func() {
		out = s.appendLocked(patientID, m)
	})
	return out, err
}

// UpdateLive applies fn to the patient's live message in place. It reports
// false when no live message exists.
func (s *Store) UpdateLive(patientID string, fn func(*Message)) (Message, bool) {
	var out Message
	var ok bool
	_ = s.do(func() {
		i := s.liveIndexLocked(patientID)
		if i < 0 {
			return
		}
		m := &s.threads[patientID][i]
		fn(m)
		out, ok = *m, true
		s.publish(patientID, EventUpdated, out)
	})
	return out, ok
}

// RemoveWhere deletes every message matching pred, preserving the order of
// the rest, and returns how many were removed.
func (s *Store) RemoveWhere(patientID string, pred func(Message) bool) int {
	removed := 0
	_ = s.do(func() {
		thread := s.threads[patientID]
		kept := thread[:0]
		var gone []Message
		for _, m := range thread {
			if pred(m) {
				gone = append(gone, m)
				continue
			}
			kept = append(kept, m)
		}
		s.threads[patientID] = kept
		removed = len(gone)
		for _, m := range gone {
			s.publish(patientID, EventRemoved, m)
		}
	})
	return removed
}

// Messages returns a copy of the patient's thread.
func (s *Store) Messages(patientID string) []Message {
	var out []Message
	_ = s.do(func() {
		out = append([]Message(nil), s.threads[patientID]...)
	})
	return out
}

// Live returns the patient's live message if one exists.
func (s *Store) Live(patientID string) (Message, bool) {
	var out Message
	var ok bool
	_ = s.do(func() {
		if i := s.liveIndexLocked(patientID); i >= 0 {
			out, ok = s.threads[patientID][i], true
		}
	})
	return out, ok
}

// Subscribe returns a channel of change events and a cancel func. Slow
// subscribers lose events rather than stall the store.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	var id int
	if err := s.do(func() {
		id = s.nextSub
		s.nextSub++
		s.subs[id] = ch
	}); err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = s.do(func() {
				if c, ok := s.subs[id]; ok {
					close(c)
					delete(s.subs, id)
				}
			})
		})
	}
	return ch, cancel
}
