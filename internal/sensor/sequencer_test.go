// internal/sensor/sequencer_test.go
package sensor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensor-autostart/internal/transport"
)

// simDevice simulates the sensor behind the Transport interface. It
// interprets the frames the sequencer sends, keeps register state
// across runs and queues read responses.
type simDevice struct {
	opened     bool
	closeCalls int
	openErr    error
	sendErr    error

	window    byte
	registers map[uint16]uint16
	pending   []byte

	// behavior knobs
	silent          bool          // never answer reads
	uartEcho        *byte         // override the UART_CTRL read-back value
	backupBusyPolls int           // GLOB_CMD reads back busy for this many polls
	backupStatus    byte          // DIAG_STAT1 low byte after completion
	receiveTimeout  time.Duration // simulated read deadline for unanswered reads

	remainingBusy int
}

func newSimDevice() *simDevice {
	return &simDevice{
		registers:      make(map[uint16]uint16),
		receiveTimeout: 20 * time.Millisecond,
	}
}

func (d *simDevice) regKey(window, addr byte) uint16 {
	return uint16(window)<<8 | uint16(addr)
}

func (d *simDevice) Open(ctx context.Context) error {
	if d.openErr != nil {
		return d.openErr
	}
	d.opened = true
	return nil
}

func (d *simDevice) Close() error {
	d.closeCalls++
	d.opened = false
	return nil
}

func (d *simDevice) IsOpen() bool {
	return d.opened
}

func (d *simDevice) Send(ctx context.Context, frame []byte) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	if !d.opened {
		return transport.ErrPortClosed
	}
	if len(frame) != 3 {
		return fmt.Errorf("unexpected frame length %d", len(frame))
	}

	addr, value := frame[0], frame[1]
	switch {
	case addr == 0xFF:
		// reset frame, no response
	case addr&0x80 != 0:
		reg := addr &^ 0x80
		if reg == RegWindowCtrl {
			d.window = value
			return nil
		}
		d.writeRegister(reg, value)
	default:
		d.queueReadResponse(addr)
	}
	return nil
}

func (d *simDevice) writeRegister(reg, value byte) {
	d.registers[d.regKey(d.window, reg)] = uint16(value)
	if d.window == Window1 && reg == RegGlobCmd && value&GlobCmdFlashBackup != 0 {
		d.remainingBusy = d.backupBusyPolls
	}
}

func (d *simDevice) queueReadResponse(addr byte) {
	if d.silent {
		return
	}

	var word uint16
	switch {
	case d.window == Window1 && addr == RegUARTCtrl && d.uartEcho != nil:
		word = uint16(*d.uartEcho)
	case d.window == Window1 && addr == RegGlobCmd:
		if d.remainingBusy > 0 {
			d.remainingBusy--
			word = uint16(GlobCmdFlashBackup)
		}
	case d.window == Window0 && addr == RegDiagStat1:
		word = uint16(d.backupStatus)
	default:
		word = d.registers[d.regKey(d.window, addr)]
	}

	d.pending = append(d.pending, addr, byte(word>>8), byte(word), 0x0D)
}

func (d *simDevice) Receive(ctx context.Context, length int) ([]byte, error) {
	if !d.opened {
		return nil, transport.ErrPortClosed
	}
	if len(d.pending) < length {
		// Model the transport read deadline expiring.
		time.Sleep(d.receiveTimeout)
		return nil, fmt.Errorf("%w: received %d of %d bytes", transport.ErrReadTimeout, len(d.pending), length)
	}
	resp := d.pending[:length]
	d.pending = d.pending[length:]
	return resp, nil
}

func testOptions() Options {
	return Options{
		SettleDelay:   time.Millisecond,
		BackupTimeout: 100 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	}
}

func newTestSequencer(dev *simDevice, opts Options) *Sequencer {
	return NewSequencer(dev, opts, zap.NewNop())
}

func TestSequencerSuccess(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	dev.backupBusyPolls = 1

	result := newTestSequencer(dev, testOptions()).Run(context.Background())

	require.True(result.OK(), "result: %s", result)
	require.Equal(OutcomeSuccess, result.Outcome)
	require.NoError(result.Err)
	require.NotEmpty(result.RunID)
	require.Equal(1, dev.closeCalls)
	require.False(dev.IsOpen())
}

func TestSequencerSupportedBaudRates(t *testing.T) {
	for _, baud := range transport.SupportedBaudRates {
		t.Run(fmt.Sprintf("baud_%d", baud), func(t *testing.T) {
			require := require.New(t)

			// The simulated port accepts any of the supported rates;
			// the sequencer reaches CONNECTED and completes.
			dev := newSimDevice()
			result := newTestSequencer(dev, testOptions()).Run(context.Background())

			require.True(result.OK(), "result: %s", result)
			require.Equal(1, dev.closeCalls)
		})
	}
}

func TestSequencerIdempotent(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	seq := newTestSequencer(dev, testOptions())

	first := seq.Run(context.Background())
	require.True(first.OK(), "first run: %s", first)

	second := seq.Run(context.Background())
	require.True(second.OK(), "second run: %s", second)

	// The second run rewrote the same value; the register still echoes
	// the auto-start setting.
	require.Equal(uint16(UARTCtrlAutoStart), dev.registers[dev.regKey(Window1, RegUARTCtrl)])
	require.Equal(2, dev.closeCalls)
}

func TestSequencerConnectionFailure(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	dev.openErr = errors.New("no such port")

	result := newTestSequencer(dev, testOptions()).Run(context.Background())

	require.Equal(OutcomeConnectionFailure, result.Outcome)
	require.Equal(StepConnect, result.Step)
	require.ErrorContains(result.Err, "no such port")
	// No protocol step ran and no response was ever queued.
	require.Empty(dev.pending)
	require.Equal(1, dev.closeCalls)
}

func TestSequencerRegisterWriteTimeout(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	dev.silent = true
	dev.receiveTimeout = 50 * time.Millisecond

	start := time.Now()
	result := newTestSequencer(dev, testOptions()).Run(context.Background())
	elapsed := time.Since(start)

	require.Equal(OutcomeTimeout, result.Outcome)
	require.Equal(StepRegisterWrite, result.Step)
	require.ErrorIs(result.Err, transport.ErrReadTimeout)

	// One receive deadline, not earlier and not unbounded.
	require.GreaterOrEqual(elapsed, 50*time.Millisecond)
	require.Less(elapsed, 500*time.Millisecond)
	require.Equal(1, dev.closeCalls)
}

func TestSequencerRegisterWriteEchoMismatch(t *testing.T) {
	require := require.New(t)

	echo := byte(0x01)
	dev := newSimDevice()
	dev.uartEcho = &echo

	result := newTestSequencer(dev, testOptions()).Run(context.Background())

	require.Equal(OutcomeProtocolError, result.Outcome)
	require.Equal(StepRegisterWrite, result.Step)
	require.Equal(echo, result.DeviceCode)
	require.Equal(1, dev.closeCalls)
}

func TestSequencerFlashBackupDeviceError(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	dev.backupBusyPolls = 2 // busy twice, complete on the third poll
	dev.backupStatus = 2

	result := newTestSequencer(dev, testOptions()).Run(context.Background())

	require.Equal(OutcomeProtocolError, result.Outcome)
	require.Equal(StepFlashBackup, result.Step)
	require.Equal(byte(2), result.DeviceCode)
	require.Equal(1, dev.closeCalls)
	require.False(dev.IsOpen())
}

func TestSequencerFlashBackupTimeout(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	dev.backupBusyPolls = 1000 // never completes within the budget

	opts := testOptions()
	opts.BackupTimeout = 50 * time.Millisecond
	opts.PollInterval = 10 * time.Millisecond

	result := newTestSequencer(dev, opts).Run(context.Background())

	require.Equal(OutcomeTimeout, result.Outcome)
	require.Equal(StepFlashBackup, result.Step)
	require.Equal(1, dev.closeCalls)
}

func TestSequencerResetSendError(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	dev.sendErr = errors.New("input/output error")

	result := newTestSequencer(dev, testOptions()).Run(context.Background())

	require.Equal(OutcomeProtocolError, result.Outcome)
	require.Equal(StepReset, result.Step)
	require.Equal(1, dev.closeCalls)
}

func TestSequencerReadsIdentity(t *testing.T) {
	require := require.New(t)

	dev := newSimDevice()
	loadIdentity(dev, "A342VD10", "X1234567")

	opts := testOptions()
	opts.ReadIdentity = true

	result := newTestSequencer(dev, opts).Run(context.Background())

	require.True(result.OK(), "result: %s", result)
	require.NotNil(result.Identity)
	require.Equal("M-A542VR1", result.Identity.ProductID)
	require.Equal("A342VD10", result.Identity.ProductIDRaw)
	require.Equal("X1234567", result.Identity.SerialNumber)
}

func TestSequencerIdentityFailureIsNonFatal(t *testing.T) {
	require := require.New(t)

	// No identity registers loaded: the reads return zero words, which
	// decode to empty strings, and the run still succeeds.
	dev := newSimDevice()

	opts := testOptions()
	opts.ReadIdentity = true

	result := newTestSequencer(dev, opts).Run(context.Background())

	require.True(result.OK(), "result: %s", result)
	require.NotNil(result.Identity)
	require.Empty(result.Identity.ProductIDRaw)
	require.Equal(1, dev.closeCalls)
}

// loadIdentity stores ASCII strings into the simulated identity
// registers, little endian within each word.
func loadIdentity(dev *simDevice, product, serial string) {
	store := func(registers []byte, s string) {
		for i, reg := range registers {
			var word uint16
			if 2*i < len(s) {
				word = uint16(s[2*i])
			}
			if 2*i+1 < len(s) {
				word |= uint16(s[2*i+1]) << 8
			}
			dev.registers[dev.regKey(Window1, reg)] = word
		}
	}
	store(prodIDRegisters, product)
	store(serialRegisters, serial)
}
