// Package patient is the in-memory directory of patients the clinician can
// record consultations for.
package patient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrUnknownPatient = errors.New("unknown patient")

// History senders accepted in a patient's seeded thread.
const (
	HistoryPatient   = "patient"
	HistoryClinician = "clinician"
	HistoryAgent     = "agent"
)

type Patient struct {
	ID           string `json:"id" toml:"id"`
	Name         string `json:"name" toml:"name"`
	Desc         string `json:"desc,omitempty" toml:"desc"`
	ScheduleTime string `json:"schedule_time,omitempty" toml:"schedule_time"`
	MRN          string `json:"mrn,omitempty" toml:"mrn"`
	Age          int    `json:"age,omitempty" toml:"age"`
	Sex          string `json:"sex,omitempty" toml:"sex"`
	Allergy      string `json:"allergy,omitempty" toml:"allergy"`
	Condition    string `json:"condition,omitempty" toml:"condition"`
	Greeting     string `json:"greeting,omitempty" toml:"greeting"`

	Vitals           Vitals             `json:"vitals" toml:"vitals"`
	Labs             map[string]float64 `json:"labs,omitempty" toml:"labs"`
	Medications      []string           `json:"medications,omitempty" toml:"medications"`
	PreviousCheckups []Checkup          `json:"previous_checkups,omitempty" toml:"previous_checkups"`

	// History seeds the chat thread; it is served through the messages
	// endpoint rather than the patient record.
	History []HistoryMessage `json:"-" toml:"messages"`
}

// Vitals are the latest bedside readings.
type Vitals struct {
	HR   int    `json:"hr,omitempty" toml:"hr"`
	SpO2 string `json:"spo2,omitempty" toml:"spo2"`
	BP   string `json:"bp,omitempty" toml:"bp"`
	Temp string `json:"temp,omitempty" toml:"temp"`
}

type Checkup struct {
	Date            string             `json:"date" toml:"date"`
	Desc            string             `json:"desc,omitempty" toml:"desc"`
	Vitals          Vitals             `json:"vitals" toml:"vitals"`
	Labs            map[string]float64 `json:"labs,omitempty" toml:"labs"`
	Medications     []string           `json:"medications,omitempty" toml:"medications"`
	Notes           string             `json:"notes,omitempty" toml:"notes"`
	NextAppointment string             `json:"next_appointment,omitempty" toml:"next_appointment"`
}

// HistoryMessage is one configured chat entry. Time is a 12-hour clock
// ("08:10 AM") and Date is YYYY-MM-DD.
type HistoryMessage struct {
	Sender string `toml:"sender"`
	Text   string `toml:"text"`
	Time   string `toml:"time"`
	Date   string `toml:"date"`
}

// Validate checks the sender and, when given, the date and time.
func (h HistoryMessage) Validate() error {
	switch h.Sender {
	case HistoryPatient, HistoryClinician, HistoryAgent:
	default:
		return fmt.Errorf("sender %q (must be patient, clinician or agent)", h.Sender)
	}
	if strings.TrimSpace(h.Text) == "" {
		return errors.New("text: empty")
	}
	if _, err := h.timestamp(); err != nil {
		return err
	}
	return nil
}

// CreatedAt returns the local time the entry was written, or the zero time
// when no date is configured.
func (h HistoryMessage) CreatedAt() time.Time {
	t, _ := h.timestamp()
	return t
}

func (h HistoryMessage) timestamp() (time.Time, error) {
	if h.Date == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation("2006-01-02", h.Date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", h.Date, err)
	}
	if h.Time == "" {
		return day, nil
	}
	clock, err := time.Parse("3:04 PM", h.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: %w", h.Time, err)
	}
	return day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), nil
}

// Directory is safe for concurrent use; Replace swaps the whole set on a
// config reload.
type Directory struct {
	mu       sync.RWMutex
	patients map[string]Patient
}

func NewDirectory(patients []Patient) *Directory {
	d := &Directory{}
	d.Replace(patients)
	return d
}

func (d *Directory) Replace(patients []Patient) {
	m := make(map[string]Patient, len(patients))
	for _, p := range patients {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		p.ID = id
		m[id] = p
	}
	d.mu.Lock()
	d.patients = m
	d.mu.Unlock()
}

func (d *Directory) Get(id string) (Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	if !ok {
		return Patient{}, ErrUnknownPatient
	}
	return p, nil
}

// List returns all patients ordered by ID.
func (d *Directory) List() []Patient {
	d.mu.RLock()
	out := make([]Patient, 0, len(d.patients))
	for _, p := range d.patients {
		out = append(out, p)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search returns the patients whose name contains q, ignoring case, ordered
// by ID. A blank q matches everyone.
func (d *Directory) Search(q string) []Patient {
	q = strings.ToLower(strings.TrimSpace(q))
	all := d.List()
	if q == "" {
		return all
	}
	out := all[:0]
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out
}
