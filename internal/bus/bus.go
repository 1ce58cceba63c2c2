package bus

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const SockName = "control.sock"
const PidName = "medscribe.pid"
const ProtoVer = "0.2"

// Command bytes accepted on the control socket.
const (
	CmdStart   = 'r'
	CmdStop    = 'x'
	CmdStatus  = 's'
	CmdSend    = 'm'
	CmdApprove = 'a'
	CmdVersion = 'v'
	CmdQuit    = 'q'
)

var ErrEmptyCommand = errors.New("empty command")

// Command is one parsed control line: "<op> [patient] [text...]".
type Command struct {
	Op        byte
	PatientID string
	Text      string
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteByte(c.Op)
	if c.PatientID != "" {
		b.WriteByte(' ')
		b.WriteString(c.PatientID)
	}
	if c.Text != "" {
		b.WriteByte(' ')
		b.WriteString(c.Text)
	}
	return b.String()
}

func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Command{}, ErrEmptyCommand
	}

	op, rest, _ := strings.Cut(strings.TrimLeft(line, " "), " ")
	if len(op) != 1 {
		return Command{}, fmt.Errorf("unknown command %q", op)
	}
	cmd := Command{Op: op[0]}

	rest = strings.TrimLeft(rest, " ")
	switch cmd.Op {
	case CmdSend:
		id, text, _ := strings.Cut(rest, " ")
		if id == "" {
			return Command{}, fmt.Errorf("send: patient id required")
		}
		cmd.PatientID = id
		cmd.Text = strings.TrimSpace(text)
	case CmdStart, CmdApprove:
		cmd.PatientID = strings.TrimSpace(rest)
		if cmd.Op == CmdApprove && cmd.PatientID == "" {
			return Command{}, fmt.Errorf("approve: patient id required")
		}
	}
	return cmd, nil
}

func runtimeDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "medscribe"), nil
}

// ~/.cache/medscribe/control.sock
func SockPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/medscribe/medscribe.pid
func PidPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

type socketManager struct {
	path string
}

func (m *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(m.path) // stale socket from last run
	return net.Listen("unix", m.path)
}

func (m *socketManager) dial() (net.Conn, error) {
	return net.Dial("unix", m.path)
}

func defaultSocketManager() (*socketManager, error) {
	p, err := SockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: p}, nil
}

func Listen() (net.Listener, error) {
	m, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return m.listen()
}

func Dial() (net.Conn, error) {
	m, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return m.dial()
}

// SendCommand writes one command line and returns the single-line reply.
func SendCommand(cmd Command) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()
	return roundTrip(c, cmd)
}

func roundTrip(c net.Conn, cmd Command) (string, error) {
	if _, err := fmt.Fprintf(c, "%s\n", cmd); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

type pidManager struct {
	path string
}

func defaultPidManager() (*pidManager, error) {
	p, err := PidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: p}, nil
}

// checkExisting fails when the PID file names a live process. Stale or
// unreadable PID files are removed.
func (m *pidManager) checkExisting() error {
	pidData, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || !m.isProcessAlive(pid) {
		_ = os.Remove(m.path)
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (m *pidManager) isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without delivering anything
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (m *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(m.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (m *pidManager) remove() error {
	return os.Remove(m.path)
}

func CheckExistingDaemon() error {
	m, err := defaultPidManager()
	if err != nil {
		return err
	}
	return m.checkExisting()
}

func CreatePidFile() error {
	m, err := defaultPidManager()
	if err != nil {
		return err
	}
	return m.create()
}

func RemovePidFile() error {
	m, err := defaultPidManager()
	if err != nil {
		return err
	}
	return m.remove()
}
