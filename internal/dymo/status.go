package dymo

import "fmt"

// Status is the coarse printer state carried by a status frame.
type Status int

const (
	StatusUnavailable Status = iota
	StatusReady
	StatusBusy
	StatusOutOfPaper
	StatusJammed
)

var statusNames = map[Status]string{
	StatusUnavailable: "unavailable",
	StatusReady:       "ready",
	StatusBusy:        "busy",
	StatusOutOfPaper:  "out_of_paper",
	StatusJammed:      "jammed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText lets Status appear by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for st, n := range statusNames {
		if n == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown printer status %q", text)
}

// HostState maps a printer status to the state advertised to print clients.
func (s Status) HostState() string {
	switch s {
	case StatusReady:
		return "idle"
	case StatusBusy:
		return "busy"
	default:
		return "unavailable"
	}
}

// ProtocolError reports a malformed frame or command.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Msg }

// DecodeStatus interprets a 32-byte status frame. Only bytes 0 (busy) and
// 15 (paper) are examined; busy wins over the paper flag.
func DecodeStatus(frame []byte) (Status, error) {
	if len(frame) != StatusFrameSize {
		return StatusUnavailable, &ProtocolError{
			Msg: fmt.Sprintf("cannot decode status from %d bytes, expected %d", len(frame), StatusFrameSize),
		}
	}
	busy := frame[statusBusyOffset]
	paper := frame[statusPaperOffset]
	switch {
	case busy != 0:
		return StatusBusy, nil
	case paper == 0:
		return StatusReady, nil
	case paper != 0:
		return StatusOutOfPaper, nil
	default:
		return StatusJammed, nil
	}
}
