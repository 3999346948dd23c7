// cmd/sensor-autostart/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"sensor-autostart/internal/config"
	"sensor-autostart/internal/discovery"
	"sensor-autostart/internal/sensor"
	"sensor-autostart/internal/transport"
	"sensor-autostart/internal/utils"
)

// Application wires configuration, logging and the sensor sequencer
type Application struct {
	config *config.Config
	logger *zap.Logger
}

var (
	flagListPorts    = pflag.Bool("list-ports", false, "list candidate serial ports and exit")
	flagBaud         = pflag.Int("baud", 0, "baud rate (overrides config, default 460800)")
	flagConfig       = pflag.String("config", "", "path to a config file")
	flagSkipIdentity = pflag.Bool("skip-identity", false, "skip the product ID / serial number read")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <port> [baud]

Configures the sensor to start sampling automatically after power-on
by enabling UART auto-start mode and persisting it to flash.

Examples:
  %s /dev/ttyUSB0
  %s /dev/ttyUSB0 460800
  %s COM3
  %s --list-ports

Flags:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	pflag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	pflag.Usage = usage
	pflag.Parse()

	app, err := NewApplication(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer utils.CloseLogger(app.logger)

	if *flagListPorts {
		return app.listPorts()
	}

	port := pflag.Arg(0)
	if port == "" {
		usage()
		fmt.Fprintln(os.Stderr, "\nError: port is required (use --list-ports to see candidates)")
		return 1
	}

	baud := app.config.Serial.BaudRate
	if pflag.NArg() > 1 {
		baud, err = strconv.Atoi(pflag.Arg(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid baud rate %q\n", pflag.Arg(1))
			return 1
		}
	}
	if *flagBaud != 0 {
		baud = *flagBaud
	}

	return app.configure(port, baud)
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Application{
		config: cfg,
		logger: logger.With(zap.String("app", cfg.App.Name)),
	}, nil
}

// listPorts prints candidate serial ports and any known USB serial
// adapters seen on the bus
func (app *Application) listPorts() int {
	ports, err := discovery.ListPorts(app.logger)
	if err != nil {
		app.logger.Error("Failed to list serial ports", zap.Error(err))
		return 1
	}

	fmt.Printf("Detected OS: %s\n", runtime.GOOS)
	fmt.Printf("Valid port examples: %s\n\n", discovery.PortExamples(runtime.GOOS))

	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Make sure the sensor is connected")
		fmt.Println("  - Check the USB cable")
		fmt.Println("  - Try unplugging and replugging the device")
		return 0
	}

	fmt.Println("Available serial ports:")
	for i, port := range ports {
		fmt.Printf("  %d. %s\n", i+1, port)
	}
	fmt.Printf("\nTotal: %d port(s) found\n", len(ports))

	adapters, err := discovery.ListAdapters(app.logger)
	if err != nil {
		app.logger.Debug("USB adapter scan unavailable", zap.Error(err))
		return 0
	}
	if len(adapters) > 0 {
		fmt.Println("\nUSB serial adapters:")
		for _, a := range adapters {
			fmt.Printf("  %s %s (%s:%s) at %s\n",
				a.Vendor, a.Model, a.VendorID, a.ProductID, a.Location())
		}
	}

	return 0
}

// configure runs the full configuration sequence against one sensor
func (app *Application) configure(port string, baud int) int {
	logger := app.logger.With(zap.String("port", port))

	if !discovery.ValidatePort(runtime.GOOS, port) {
		logger.Error("Invalid port name",
			zap.String("examples", discovery.PortExamples(runtime.GOOS)),
		)
		return 1
	}

	if !transport.IsSupportedBaud(baud) {
		logger.Error("Unsupported baud rate",
			zap.Int("baud_rate", baud),
			zap.Ints("supported", transport.SupportedBaudRates),
		)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr := transport.NewSerialTransport(&transport.Config{
		Port:     port,
		BaudRate: baud,
		Timeout:  app.config.Serial.CommandTimeout,
	}, logger)

	seq := sensor.NewSequencer(tr, sensor.Options{
		SettleDelay:   app.config.Serial.SettleDelay,
		BackupTimeout: app.config.Serial.BackupTimeout,
		PollInterval:  app.config.Serial.PollInterval,
		ReadIdentity:  !*flagSkipIdentity,
	}, logger)

	result := seq.Run(ctx)
	if result.OK() {
		logger.Info("Sensor configured in UART auto-start mode",
			zap.String("run_id", result.RunID),
		)
		fmt.Println("Configuration completed successfully.")
		fmt.Println("After the next power cycle or reset the sensor will start sampling automatically.")
		return 0
	}

	logger.Error("Configuration failed",
		zap.String("run_id", result.RunID),
		zap.String("result", result.String()),
	)
	app.explainFailure(result)
	return 1
}

// explainFailure translates a failure classification into remediation
// hints. The sequencer itself carries no presentation logic.
func (app *Application) explainFailure(result *sensor.Result) {
	fmt.Fprintf(os.Stderr, "Configuration failed: %s\n", result)

	switch result.Outcome {
	case sensor.OutcomeConnectionFailure:
		var portErr *serial.PortError
		if errors.As(result.Err, &portErr) {
			switch portErr.Code() {
			case serial.PermissionDenied:
				fmt.Fprintln(os.Stderr, discovery.PermissionHelp(runtime.GOOS))
				return
			case serial.PortNotFound:
				fmt.Fprintln(os.Stderr, "Port not found. Use --list-ports to see available ports.")
				return
			case serial.PortBusy:
				fmt.Fprintln(os.Stderr, "Port is busy. Close other programs using the port and retry.")
				return
			}
		}
		fmt.Fprintln(os.Stderr, "Could not open the port. Use --list-ports to see available ports.")
	case sensor.OutcomeTimeout:
		fmt.Fprintln(os.Stderr, "No response from the sensor. Check wiring, power, and that the baud rate matches the sensor.")
	case sensor.OutcomeProtocolError:
		fmt.Fprintln(os.Stderr, "The sensor responded unexpectedly. Power-cycle the sensor and retry.")
	}
}
