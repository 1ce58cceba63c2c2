package chat

import "strings"

// AppendFragment folds one transcript fragment into text. The fragment is
// trimmed; a blank fragment is a no-op, anything else is joined to text with
// a single space.
func AppendFragment(text, fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return text
	}
	if text == "" {
		return fragment
	}
	return text + " " + fragment
}

// Accumulator owns the live message of one patient's recording session.
type Accumulator struct {
	store     *Store
	patientID string
	sender    Sender
}

func NewAccumulator(store *Store, patientID string) *Accumulator {
	return &Accumulator{store: store, patientID: patientID, sender: SenderClinician}
}

func (a *Accumulator) PatientID() string { return a.patientID }

// Begin creates the empty live message. It fails with ErrLiveExists if the
// patient already has one.
func (a *Accumulator) Begin() (Message, error) {
	var out Message
	var exists bool
	err := a.store.do(func() {
		if a.store.liveIndexLocked(a.patientID) >= 0 {
			exists = true
			return
		}
		out = a.store.appendLocked(a.patientID, Message{Sender: a.sender, IsLive: true})
	})
	if err != nil {
		return Message{}, err
	}
	if exists {
		return Message{}, ErrLiveExists
	}
	return out, nil
}

// Append applies a fragment to the live message in receipt order.
func (a *Accumulator) Append(fragment string) bool {
	if fragment == "" {
		return false
	}
	_, ok := a.store.UpdateLive(a.patientID, func(m *Message) {
		m.Text = AppendFragment(m.Text, fragment)
	})
	return ok
}

// Finalize replaces the accumulated text with the authoritative transcript
// and clears the live flag. With no live message, a fresh history message
// carrying fullText is appended instead.
func (a *Accumulator) Finalize(fullText string) (Message, error) {
	var out Message
	err := a.store.do(func() {
		if i := a.store.liveIndexLocked(a.patientID); i >= 0 {
			m := &a.store.threads[a.patientID][i]
			m.Text = strings.TrimSpace(fullText)
			m.IsLive = false
			out = *m
			a.store.publish(a.patientID, EventUpdated, out)
			return
		}
		out = a.store.appendLocked(a.patientID, Message{Sender: a.sender, Text: strings.TrimSpace(fullText)})
	})
	return out, err
}

// Seal clears the live flag and keeps whatever text has accumulated.
func (a *Accumulator) Seal() (Message, bool) {
	return a.store.UpdateLive(a.patientID, func(m *Message) {
		m.IsLive = false
	})
}
