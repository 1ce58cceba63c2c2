// Package deps reports on the external programs the daemon shells out to.
package deps

import (
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Installed bool
	Path      string
	Version   string
}

// Requirement is an external tool needed by an enabled feature.
type Requirement struct {
	Name       string
	VersionArg string
	// Feature names what breaks without the tool.
	Feature string
}

var (
	PwRecord   = Requirement{Name: "pw-record", VersionArg: "--version", Feature: "pipewire recording backend"}
	NotifySend = Requirement{Name: "notify-send", VersionArg: "--version", Feature: "desktop notifications"}
)

// Check looks the tool up in PATH and reads the first line of its version
// output.
func Check(r Requirement) Status {
	path, err := exec.LookPath(r.Name)
	if err != nil {
		return Status{Name: r.Name}
	}

	status := Status{
		Name:      r.Name,
		Installed: true,
		Path:      path,
	}

	if r.VersionArg == "" {
		return status
	}
	output, err := exec.Command(path, r.VersionArg).Output()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}
	return status
}

// Required returns the tools needed by the given backend and notification
// type.
func Required(recordingBackend, notificationType string) []Requirement {
	var reqs []Requirement
	if recordingBackend == "pipewire" {
		reqs = append(reqs, PwRecord)
	}
	if notificationType == "desktop" {
		reqs = append(reqs, NotifySend)
	}
	return reqs
}

// Missing checks reqs and returns the ones not installed, logging a warning
// for each.
func Missing(reqs []Requirement) []Requirement {
	var missing []Requirement
	for _, r := range reqs {
		st := Check(r)
		if st.Installed {
			log.Debug().Str("tool", r.Name).Str("path", st.Path).Str("version", st.Version).Msg("Deps: found")
			continue
		}
		log.Warn().Str("tool", r.Name).Str("feature", r.Feature).Msg("Deps: not found in PATH")
		missing = append(missing, r)
	}
	return missing
}
