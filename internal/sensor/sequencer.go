// internal/sensor/sequencer.go
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sensor-autostart/internal/transport"
	"sensor-autostart/internal/utils"
)

// Options holds the per-run knobs of the Sequencer. Timings come from
// the application configuration rather than package constants so tests
// can shrink them per run.
type Options struct {
	// SettleDelay is the wait after the reset command while the sensor
	// reboots. The reset produces no response.
	SettleDelay time.Duration

	// BackupTimeout bounds the whole flash-backup poll loop.
	BackupTimeout time.Duration

	// PollInterval is the wait between flash-backup status polls.
	PollInterval time.Duration

	// ReadIdentity reads the product ID and serial number registers
	// after the reset settles. Identity failures do not fail the run.
	ReadIdentity bool
}

// Sequencer drives a Transport through the fixed auto-start
// configuration sequence: reset, UART_CTRL write with echo check,
// flash backup trigger, completion poll and status verification. It
// owns the Transport for the duration of one run and closes it on
// every exit path. There is no retry across steps; a caller wanting a
// retry re-runs the whole sequence, which is a safe no-op against an
// already-configured sensor.
type Sequencer struct {
	transport transport.Transport
	opts      Options
	logger    *zap.Logger
}

// NewSequencer creates a new configuration sequencer
func NewSequencer(tr transport.Transport, opts Options, logger *zap.Logger) *Sequencer {
	return &Sequencer{
		transport: tr,
		opts:      opts,
		logger:    logger.With(zap.String("component", "sequencer")),
	}
}

// Run executes the full configuration sequence and classifies the
// outcome. It never returns a raw error; every failure is folded into
// the Result together with the step it occurred in.
func (s *Sequencer) Run(ctx context.Context) *Result {
	rl := utils.NewRunLogger(s.logger)
	rl.Start(
		zap.Duration("backup_timeout", s.opts.BackupTimeout),
		zap.Duration("poll_interval", s.opts.PollInterval),
	)

	result := s.run(ctx, rl)
	result.RunID = rl.RunID()

	if result.OK() {
		rl.Success()
	} else {
		rl.Failure(string(result.Step), result.Err,
			zap.String("outcome", string(result.Outcome)),
			zap.String("detail", result.Detail),
		)
	}

	return result
}

func (s *Sequencer) run(ctx context.Context, rl *utils.RunLogger) *Result {
	// Deferred before Open so the close runs exactly once on every
	// exit path; closing a transport that never opened is a no-op.
	defer s.closeTransport(rl)

	if err := s.transport.Open(ctx); err != nil {
		return &Result{
			Outcome: OutcomeConnectionFailure,
			Step:    StepConnect,
			Detail:  "failed to open serial port",
			Err:     err,
		}
	}

	if res := s.reset(ctx); res != nil {
		return res
	}
	rl.Step(string(StepReset))

	var identity *Identity
	if s.opts.ReadIdentity {
		ident, err := s.readIdentity(ctx)
		if err != nil {
			rl.Logger().Warn("Identity read failed", zap.Error(err))
		} else {
			identity = ident
			rl.Logger().Info("Sensor identified",
				zap.String("product_id", ident.ProductID),
				zap.String("serial_number", ident.SerialNumber),
			)
		}
	}

	if res := s.writeAutoStart(ctx); res != nil {
		res.Identity = identity
		return res
	}
	rl.Step(string(StepRegisterWrite), zap.Uint8("value", UARTCtrlAutoStart))

	if res := s.flashBackup(ctx); res != nil {
		res.Identity = identity
		return res
	}
	rl.Step(string(StepFlashBackup))

	return &Result{
		Outcome:  OutcomeSuccess,
		Identity: identity,
	}
}

// reset issues the software reset frames and waits the settle delay.
// The sensor sends no acknowledgement; the only failure mode here is a
// write-level error.
func (s *Sequencer) reset(ctx context.Context) *Result {
	for i := 0; i < 3; i++ {
		if err := s.transport.Send(ctx, ResetFrame()); err != nil {
			return &Result{
				Outcome: OutcomeProtocolError,
				Step:    StepReset,
				Detail:  "failed to send reset command",
				Err:     err,
			}
		}
	}

	if err := sleepContext(ctx, s.opts.SettleDelay); err != nil {
		return &Result{
			Outcome: OutcomeTimeout,
			Step:    StepReset,
			Detail:  "canceled during settle delay",
			Err:     err,
		}
	}

	return nil
}

// writeAutoStart writes UART_CTRL = 0x03 and verifies the value by
// reading the register back.
func (s *Sequencer) writeAutoStart(ctx context.Context) *Result {
	frames := [][]byte{
		SelectWindow(Window1),
		WriteRegister(RegUARTCtrl, UARTCtrlAutoStart),
	}
	for _, frame := range frames {
		if err := s.transport.Send(ctx, frame); err != nil {
			return &Result{
				Outcome: OutcomeProtocolError,
				Step:    StepRegisterWrite,
				Detail:  "failed to send UART control write",
				Err:     err,
			}
		}
	}

	word, err := s.readRegister(ctx, Window1, RegUARTCtrl)
	if err != nil {
		return s.classifyReadError(StepRegisterWrite, "no echo for UART control write", err)
	}

	echo := byte(word)
	if echo != UARTCtrlAutoStart {
		return &Result{
			Outcome:    OutcomeProtocolError,
			Step:       StepRegisterWrite,
			Detail:     fmt.Sprintf("UART control echo 0x%02X, want 0x%02X", echo, UARTCtrlAutoStart),
			DeviceCode: echo,
			Err:        fmt.Errorf("register echo mismatch: got 0x%02X, want 0x%02X", echo, UARTCtrlAutoStart),
		}
	}

	return nil
}

// flashBackup triggers non-volatile backup, polls GLOB_CMD until the
// busy bit clears or the backup timeout elapses, then verifies the
// result via DIAG_STAT1.
func (s *Sequencer) flashBackup(ctx context.Context) *Result {
	frames := [][]byte{
		SelectWindow(Window1),
		WriteRegister(RegGlobCmd, GlobCmdFlashBackup),
	}
	for _, frame := range frames {
		if err := s.transport.Send(ctx, frame); err != nil {
			return &Result{
				Outcome: OutcomeProtocolError,
				Step:    StepFlashBackup,
				Detail:  "failed to send flash backup command",
				Err:     err,
			}
		}
	}

	// The backup runs on the device; poll for completion with a
	// bounded attempt budget instead of an unbounded spin.
	attempts := int(s.opts.BackupTimeout / s.opts.PollInterval)
	if attempts < 1 {
		attempts = 1
	}

	completed := false
	for i := 0; i < attempts; i++ {
		if err := sleepContext(ctx, s.opts.PollInterval); err != nil {
			return &Result{
				Outcome: OutcomeTimeout,
				Step:    StepFlashBackup,
				Detail:  "canceled while waiting for backup completion",
				Err:     err,
			}
		}

		word, err := s.readRegister(ctx, Window1, RegGlobCmd)
		if err != nil {
			return s.classifyReadError(StepFlashBackup, "failed to poll backup status", err)
		}

		if word&uint16(GlobCmdFlashBackup) == 0 {
			completed = true
			break
		}
	}

	if !completed {
		return &Result{
			Outcome: OutcomeTimeout,
			Step:    StepFlashBackup,
			Detail:  fmt.Sprintf("backup still in progress after %d polls", attempts),
			Err:     fmt.Errorf("flash backup did not complete within %s", s.opts.BackupTimeout),
		}
	}

	word, err := s.readRegister(ctx, Window0, RegDiagStat1)
	if err != nil {
		return s.classifyReadError(StepFlashBackup, "failed to read backup result", err)
	}

	if code := byte(word); code != 0 {
		return &Result{
			Outcome:    OutcomeProtocolError,
			Step:       StepFlashBackup,
			Detail:     fmt.Sprintf("device reported backup error status 0x%02X", code),
			DeviceCode: code,
			Err:        fmt.Errorf("flash backup error status 0x%02X", code),
		}
	}

	return nil
}

// readRegister selects the window, requests the register and parses
// the fixed-length response.
func (s *Sequencer) readRegister(ctx context.Context, window, addr byte) (uint16, error) {
	if err := s.transport.Send(ctx, SelectWindow(window)); err != nil {
		return 0, fmt.Errorf("window select: %w", err)
	}
	if err := s.transport.Send(ctx, ReadRegister(addr)); err != nil {
		return 0, fmt.Errorf("read request: %w", err)
	}

	resp, err := s.transport.Receive(ctx, ReadResponseLength)
	if err != nil {
		return 0, err
	}

	return ParseReadResponse(addr, resp)
}

// classifyReadError folds a register read failure into a Result:
// missing bytes are a Timeout, everything else a ProtocolError.
func (s *Sequencer) classifyReadError(step Step, detail string, err error) *Result {
	outcome := OutcomeProtocolError
	if errors.Is(err, transport.ErrReadTimeout) || errors.Is(err, context.DeadlineExceeded) {
		outcome = OutcomeTimeout
	}
	return &Result{
		Outcome: outcome,
		Step:    step,
		Detail:  detail,
		Err:     err,
	}
}

// closeTransport releases the serial port. It runs deferred on every
// exit path of run, so the connection is closed exactly once per run.
func (s *Sequencer) closeTransport(rl *utils.RunLogger) {
	if err := s.transport.Close(); err != nil {
		rl.Logger().Warn("Failed to close transport", zap.Error(err))
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
