// Package state holds the dashboard-level application state shared by the
// post-session pipeline and the chat commands.
package state

import (
	"sync"

	"github.com/leonardotrapani/medscribe/internal/report"
)

type State struct {
	mu            sync.RWMutex
	doctorName    string
	selected      string
	latestSummary *report.Summary
}

func New(doctorName string) *State {
	return &State{doctorName: doctorName}
}

func (s *State) DoctorName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doctorName
}

func (s *State) SetDoctorName(name string) {
	s.mu.Lock()
	s.doctorName = name
	s.mu.Unlock()
}

// SelectedPatient returns the patient the dashboard has open, or "".
func (s *State) SelectedPatient() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *State) SelectPatient(id string) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}

// LatestSummary returns a copy of the most recently received report.
func (s *State) LatestSummary() (report.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latestSummary == nil {
		return report.Summary{}, false
	}
	return s.latestSummary.Clone(), true
}

// SetLatestSummary replaces the latest report. A nil report is ignored.
func (s *State) SetLatestSummary(r *report.Summary) {
	if r == nil {
		return
	}
	c := r.Clone()
	s.mu.Lock()
	s.latestSummary = &c
	s.mu.Unlock()
}
