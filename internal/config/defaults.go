package config

import (
	"time"

	"github.com/leonardotrapani/medscribe/internal/patient"
)

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		Doctor: DoctorConfig{
			Name: "Dr. Smith",
		},
		Recording: RecordingConfig{
			Backend:           "pipewire",
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        4096,
			Device:            "",
			ChannelBufferSize: 30,
		},
		Transcription: TranscriptionConfig{
			URL:              "ws://localhost:8000/ws/transcribe",
			HandshakeTimeout: 10 * time.Second,
		},
		Service: ServiceConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 30 * time.Second,
		},
		Summary: SummaryConfig{
			Provider: "service",
		},
		API: APIConfig{
			Enabled:        true,
			Listen:         "127.0.0.1:8765",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "log",
		},
		Export: ExportConfig{
			Dir: "",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Patients: samplePatients(),
	}
}

// samplePatients is the demo clinic list written to a fresh config.
func samplePatients() []patient.Patient {
	return []patient.Patient{
		{
			ID: "1", Name: "Anita Sharma", Desc: "Diabetes Review", ScheduleTime: "11:30 AM",
			MRN: "MRN001", Age: 45, Sex: "F", Allergy: "Penicillin", Condition: "Diabetes, Hypertension",
			Vitals:      patient.Vitals{HR: 76, SpO2: "98%", BP: "120/80", Temp: "98.4°F"},
			Labs:        map[string]float64{"glucose": 120, "cholesterol": 180},
			Medications: []string{"Metformin", "Amlodipine"},
			PreviousCheckups: []patient.Checkup{
				{
					Date: "2025-09-20", Desc: "Routine diabetic checkup.",
					Vitals:      patient.Vitals{HR: 78, BP: "118/76", Temp: "98.6°F"},
					Labs:        map[string]float64{"glucose": 115, "cholesterol": 175},
					Medications: []string{"Metformin", "Amlodipine"},
					Notes:       "Stable condition, advised diet control.", NextAppointment: "2025-10-20",
				},
				{
					Date: "2025-08-15", Desc: "Follow-up for elevated glucose levels.",
					Vitals:      patient.Vitals{HR: 80, BP: "122/78", Temp: "98.4°F"},
					Labs:        map[string]float64{"glucose": 130, "cholesterol": 190},
					Medications: []string{"Metformin", "Amlodipine"},
					Notes:       "Slightly elevated glucose, continue meds.", NextAppointment: "2025-09-15",
				},
			},
			History: []patient.HistoryMessage{
				{Sender: patient.HistoryPatient, Text: "Good morning Doctor, my blood sugar was 180 mg/dL this morning", Time: "08:10 AM", Date: "2025-10-13"},
				{Sender: patient.HistoryClinician, Text: "Thanks for updating. Did you have breakfast before measuring it?", Time: "08:12 AM", Date: "2025-10-13"},
				{Sender: patient.HistoryPatient, Text: "No, I measured it fasting. I also feel a bit thirsty and tired.", Time: "08:15 AM", Date: "2025-10-13"},
			},
		},
		{
			ID: "2", Name: "Ravi Patel", Desc: "Hypertension Follow-up", ScheduleTime: "11:45 AM",
			MRN: "MRN002", Age: 32, Sex: "M", Allergy: "None", Condition: "Asthma",
			Vitals:      patient.Vitals{HR: 82, SpO2: "95%", BP: "118/78", Temp: "98.9°F"},
			Labs:        map[string]float64{"glucose": 110, "cholesterol": 170},
			Medications: []string{"Salbutamol"},
			PreviousCheckups: []patient.Checkup{
				{
					Date: "2025-09-10", Vitals: patient.Vitals{HR: 80, BP: "120/80", Temp: "98.7°F"},
					Labs:        map[string]float64{"glucose": 108, "cholesterol": 165},
					Medications: []string{"Salbutamol"}, Notes: "Stable, continue current meds.",
				},
				{
					Date: "2025-07-25", Vitals: patient.Vitals{HR: 85, BP: "122/82", Temp: "98.9°F"},
					Labs:        map[string]float64{"glucose": 112, "cholesterol": 168},
					Medications: []string{"Salbutamol"}, Notes: "Mild asthma flare, advised inhaler use.",
				},
			},
			History: []patient.HistoryMessage{
				{Sender: patient.HistoryPatient, Text: "I took my meds", Time: "10:10 AM", Date: "2025-10-09"},
			},
		},
	}
}
