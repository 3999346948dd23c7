// internal/sensor/result.go
package sensor

import "fmt"

// Step identifies the protocol step a run was in when it ended.
type Step string

const (
	StepConnect       Step = "connect"
	StepReset         Step = "reset"
	StepRegisterWrite Step = "register_write"
	StepFlashBackup   Step = "flash_backup"
)

// Outcome classifies the terminal state of a configuration run.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeConnectionFailure Outcome = "connection_failure"
	OutcomeProtocolError     Outcome = "protocol_error"
	OutcomeTimeout           Outcome = "timeout"
)

// Result is the terminal outcome of one configuration run. It is
// created once when the run ends and never mutated afterwards; no
// error value escapes the sequencer in any other form.
type Result struct {
	RunID   string
	Outcome Outcome

	// Step is the protocol step the run ended in; empty on success.
	Step Step

	// Detail is a short human-readable description of the failure.
	Detail string

	// DeviceCode carries a device-reported status byte for protocol
	// errors that have one (flash backup status, register echo).
	DeviceCode byte

	// Identity holds the sensor identity when the run read it.
	Identity *Identity

	// Err is the underlying error; nil on success.
	Err error
}

// OK reports whether the run succeeded
func (r *Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// String renders the result for operator-facing summaries
func (r *Result) String() string {
	if r.OK() {
		return "success"
	}
	if r.Detail != "" {
		return fmt.Sprintf("%s at step %q: %s", r.Outcome, r.Step, r.Detail)
	}
	return fmt.Sprintf("%s at step %q", r.Outcome, r.Step)
}
