// internal/upload/machine.go
package upload

import (
	"errors"
	"fmt"
)

type State string

const (
	StateIdle      State = "idle"
	StateUploading State = "uploading"
	StateResolving State = "resolving"
	StateWriting   State = "writing"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Machine is the upload session state machine. Each method applies one
// external event and reports whether it changed anything; events that do not
// fit the current state are ignored, which makes terminal states sticky.
// Machine is not safe for concurrent use.
type Machine struct {
	state       State
	path        string
	transferred int64
	total       int64
	percent     float64
	reason      error
}

type Progress struct {
	State            State   `json:"state"`
	Path             string  `json:"path,omitempty"`
	BytesTransferred int64   `json:"bytes_transferred"`
	BytesTotal       int64   `json:"bytes_total"`
	Percent          float64 `json:"percent"`
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Reason() error {
	return m.reason
}

func (m *Machine) Terminal() bool {
	return m.state == StateSucceeded || m.state == StateFailed
}

// InFlight reports whether a cycle has started and not yet finished.
func (m *Machine) InFlight() bool {
	return m.state == StateUploading || m.state == StateResolving || m.state == StateWriting
}

func (m *Machine) Snapshot() Progress {
	return Progress{
		State:            m.state,
		Path:             m.path,
		BytesTransferred: m.transferred,
		BytesTotal:       m.total,
		Percent:          m.percent,
	}
}

// Begin opens a new session. Allowed from idle or any terminal state.
func (m *Machine) Begin(path string, total int64) bool {
	if m.InFlight() {
		return false
	}
	*m = Machine{
		state: StateUploading,
		path:  path,
		total: total,
	}
	return true
}

// Progress records a transfer sample. Samples that go backwards, or that
// claim the whole payload before the transfer has completed, are dropped so
// that percent stays below 100 until TransferSucceeded.
func (m *Machine) Progress(transferred, total int64) bool {
	if m.state != StateUploading {
		return false
	}
	if total > 0 {
		m.total = total
	}
	if m.total <= 0 || transferred <= m.transferred || transferred >= m.total {
		return false
	}
	m.transferred = transferred
	m.percent = float64(transferred) / float64(m.total) * 100
	return true
}

func (m *Machine) TransferSucceeded() bool {
	if m.state != StateUploading {
		return false
	}
	m.state = StateResolving
	m.transferred = m.total
	m.percent = 100
	return true
}

// TransferFailed ends the session. A cancellation cause is kept as is, any
// other cause is classified as ErrUploadFailed.
func (m *Machine) TransferFailed(err error) bool {
	if m.state != StateUploading {
		return false
	}
	if errors.Is(err, ErrUploadCancelled) {
		return m.fail(err)
	}
	return m.fail(fmt.Errorf("%w: %v", ErrUploadFailed, err))
}

func (m *Machine) Resolved() bool {
	if m.state != StateResolving {
		return false
	}
	m.state = StateWriting
	return true
}

func (m *Machine) ResolutionFailed(err error) bool {
	if m.state != StateResolving {
		return false
	}
	return m.fail(fmt.Errorf("%w: %v", ErrURLResolutionFailed, err))
}

func (m *Machine) Written() bool {
	if m.state != StateWriting {
		return false
	}
	m.state = StateSucceeded
	return true
}

func (m *Machine) WriteFailed(err error) bool {
	if m.state != StateWriting {
		return false
	}
	if errors.Is(err, ErrJobCreationFailed) {
		return m.fail(err)
	}
	return m.fail(fmt.Errorf("%w: %v", ErrJobCreationFailed, err))
}

// Reset returns a terminal machine to idle.
func (m *Machine) Reset() bool {
	if m.InFlight() {
		return false
	}
	*m = Machine{state: StateIdle}
	return true
}

func (m *Machine) fail(reason error) bool {
	m.state = StateFailed
	m.reason = reason
	return true
}
