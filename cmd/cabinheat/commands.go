package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/brodvik/cabinheat/internal/bridge"
	"github.com/brodvik/cabinheat/internal/config"
	"github.com/brodvik/cabinheat/internal/discovery"
	"github.com/brodvik/cabinheat/internal/heater"
	"github.com/brodvik/cabinheat/internal/protocol"
	"github.com/brodvik/cabinheat/internal/transport"
	"github.com/brodvik/cabinheat/internal/ui"
)

// Command flags
var (
	deviceFlag   string
	passwordFlag string
	protocolFlag string
	logLevel     string
	scanTimeout  int
	saveScan     bool
	jsonOutput   bool
	listenAddr   string
)

// commandBudget bounds a one-shot command end to end: scan, connect,
// write, settle and the verification refresh.
const commandBudget = 90 * time.Second

func init() {
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Heater address or nickname (default: configured default heater)")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", `Device PIN; "ask" prompts without echo (default: stored or factory PIN)`)
	rootCmd.PersistentFlags().StringVar(&protocolFlag, "protocol", "", "Protocol variant override (aa55, legacy)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(onCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(setTempCmd)
	rootCmd.AddCommand(setLevelCmd)
	rootCmd.AddCommand(setFanCmd)
	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// scanCmd discovers heaters over BLE
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for heater control boxes",
	Long: `Scan for BLE heater control boxes in range.

Devices advertising a known heater service or a heater-like name are
marked as likely heaters. Use --save to record them in the config file
so later commands can address them by nickname.`,
	Example: `  # Scan for 10 seconds (default)
  cabinheat scan

  # Longer scan, record findings in the config
  cabinheat scan --timeout 30 --save`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
	scanCmd.Flags().BoolVar(&saveScan, "save", false, "Record likely heaters in the config file")
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for heaters (timeout: %ds)...\n\n", scanTimeout)

	devices, err := discovery.ScanForDevices(cmd.Context(), time.Duration(scanTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the heater control box is powered")
		fmt.Println("  - Move closer; the boxes have weak antennas")
		fmt.Println("  - Disconnect the vendor phone app (the box accepts one central)")
		fmt.Println("  - Try increasing --timeout")
		return nil
	}

	likely := 0
	for i, dev := range devices {
		marker := " "
		if dev.LikelyHeater() {
			marker = "*"
			likely++
		}
		fmt.Printf("%s %d. %s\n", marker, i+1, dev)
	}
	fmt.Printf("\n%d device(s), %d likely heater(s) (*)\n", len(devices), likely)

	if saveScan && likely > 0 {
		reg, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		for _, dev := range devices {
			if !dev.LikelyHeater() {
				continue
			}
			h := reg.EnsureHeater(dev.Address)
			if h.Nickname == "" && dev.Name != "" {
				h.Nickname = dev.Name
			}
			reg.UpdateLastSeen(dev.Address)
		}
		if err := reg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Saved likely heaters to config.")
	}

	fmt.Println("\nUse 'cabinheat status --device <address>' to query a heater")
	return nil
}

// statusCmd fetches and prints one status snapshot
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch and print the heater status",
	Example: `  # Human-readable status of the default heater
  cabinheat status

  # JSON for scripting
  cabinheat status --device AA:BB:CC:DD:EE:FF --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the snapshot as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	coord, _, err := buildCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandBudget)
	defer cancel()

	snap := coord.Refresh(ctx)
	if snap.Connection != heater.ConnectionConnected {
		return fmt.Errorf("status fetch failed: %s", snap.ConnectionError)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printSnapshot(snap)
	return nil
}

// onCmd switches the heater on
var onCmd = &cobra.Command{
	Use:   "on",
	Short: "Switch the heater on",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, "Heater switched on", func(ctx context.Context, c *heater.Coordinator) error {
			return c.SetPower(ctx, true)
		})
	},
}

// offCmd switches the heater off
var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Switch the heater off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, "Heater switched off", func(ctx context.Context, c *heater.Coordinator) error {
			return c.SetPower(ctx, false)
		})
	},
}

// setTempCmd sets the thermostat target
var setTempCmd = &cobra.Command{
	Use:   "set-temp <celsius>",
	Short: "Set the target temperature",
	Long: fmt.Sprintf(`Set the thermostat target temperature in °C.

Valid range is %d to %d. The thermostat target only takes effect in
thermostat mode (run mode 2); see 'cabinheat set-mode'.`,
		protocol.MinTemperature, protocol.MaxTemperature),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		celsius, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", args[0], err)
		}
		return runCommand(cmd, fmt.Sprintf("Target temperature set to %d°C", celsius),
			func(ctx context.Context, c *heater.Coordinator) error {
				return c.SetTemperature(ctx, celsius)
			})
	},
}

// setLevelCmd sets the power level
var setLevelCmd = &cobra.Command{
	Use:   "set-level <level>",
	Short: "Set the power level",
	Long: fmt.Sprintf(`Set the heater power level.

Valid range is %d to %d. The level applies in the level run modes
(0 and 1); see 'cabinheat set-mode'.`, protocol.MinLevel, protocol.MaxLevel),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid level %q: %w", args[0], err)
		}
		return runCommand(cmd, fmt.Sprintf("Power level set to %d", level),
			func(ctx context.Context, c *heater.Coordinator) error {
				return c.SetLevel(ctx, level)
			})
	},
}

// setFanCmd sets the fan speed (legacy protocol only)
var setFanCmd = &cobra.Command{
	Use:   "set-fan <speed>",
	Short: "Set the fan speed (legacy protocol only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speed, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid fan speed %q: %w", args[0], err)
		}
		return runCommand(cmd, fmt.Sprintf("Fan speed set to %d", speed),
			func(ctx context.Context, c *heater.Coordinator) error {
				return c.SetFanSpeed(ctx, speed)
			})
	},
}

// setModeCmd selects the run mode
var setModeCmd = &cobra.Command{
	Use:   "set-mode <mode>",
	Short: "Select the run mode",
	Long: `Select the heater run mode:

  0, 1  level modes (fixed power level)
  2     thermostat mode (holds a target temperature)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid mode %q: %w", args[0], err)
		}
		return runCommand(cmd, fmt.Sprintf("Run mode set to %d", mode),
			func(ctx context.Context, c *heater.Coordinator) error {
				return c.SetMode(ctx, mode)
			})
	},
}

// watchCmd shows the live terminal view
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the heater live in the terminal",
	Long: `Show a live terminal view of the heater.

The view polls the heater in the background and offers single-key
controls: p toggles power, the arrow keys step the target temperature,
+/- step the power level.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	coord, title, err := buildCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go coord.Run(ctx)

	return ui.RunWatch(coord, title.name, title.address)
}

// serveCmd runs the HTTP/WebSocket bridge
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the home automation bridge",
	Long: `Run an HTTP and WebSocket bridge for home automation.

GET /status returns the latest snapshot; POST /power, /temperature,
/level, /fan and /mode issue commands; GET /ws streams every snapshot.
The bridge keeps the heater connection alive and polls in the
background.`,
	Example: `  # Bind the configured (or default localhost) address
  cabinheat serve

  # Explicit bind address
  cabinheat serve --listen 0.0.0.0:8537`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Bridge listen address (default from config, else 127.0.0.1:8537)")
}

func runServe(cmd *cobra.Command, args []string) error {
	reg, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	listen := listenAddr
	if listen == "" && reg.Preferences != nil {
		listen = reg.Preferences.Listen
	}
	if listen == "" {
		listen = "127.0.0.1:8537"
	}

	coord, _, err := buildCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go coord.Run(ctx)

	srv := bridge.New(&bridge.Config{Listen: listen}, coord)
	return srv.Run(ctx)
}

// runCommand executes a one-shot device command and reports the result.
func runCommand(cmd *cobra.Command, success string, fn func(context.Context, *heater.Coordinator) error) error {
	coord, _, err := buildCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandBudget)
	defer cancel()

	if err := fn(ctx, coord); err != nil {
		return err
	}

	fmt.Printf("✓ %s\n\n", success)
	printSnapshot(coord.LatestSnapshot())
	return nil
}

// target identifies the heater a command addresses, for display.
type target struct {
	name    string // nickname, or the address when none is set
	address string
}

// resolveTarget picks the heater to talk to: the --device flag (address
// or nickname), else the configured default.
func resolveTarget() (target, *config.Heater, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return target{}, nil, fmt.Errorf("failed to load config: %w", err)
	}

	name := deviceFlag
	if name == "" {
		addr, entry := reg.Default()
		if addr == "" {
			return target{}, nil, fmt.Errorf("no heater configured; run 'cabinheat scan --save' or pass --device")
		}
		return makeTarget(addr, entry), entry, nil
	}

	// Exact address key first, then nickname lookup.
	if entry := reg.GetHeater(name); entry != nil {
		return makeTarget(name, entry), entry, nil
	}
	for addr, entry := range reg.Heaters {
		if strings.EqualFold(entry.Nickname, name) {
			return makeTarget(addr, entry), entry, nil
		}
	}

	// An address the config has never seen; use it with defaults.
	return target{name: name, address: name}, nil, nil
}

func makeTarget(address string, entry *config.Heater) target {
	name := address
	if entry != nil && entry.Nickname != "" {
		name = entry.Nickname
	}
	return target{name: name, address: address}
}

// resolvePassword picks the device PIN: --password (with "ask" prompting
// without echo), else the stored or factory PIN.
func resolvePassword(entry *config.Heater) (uint16, error) {
	switch passwordFlag {
	case "":
		return entry.PasswordOrDefault(), nil
	case "ask":
		fmt.Fprint(os.Stderr, "Device PIN: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return 0, fmt.Errorf("failed to read PIN: %w", err)
		}
		return parsePIN(strings.TrimSpace(string(raw)))
	default:
		return parsePIN(passwordFlag)
	}
}

func parsePIN(s string) (uint16, error) {
	pin, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid PIN %q: must be a number up to 65535", s)
	}
	return uint16(pin), nil
}

// resolveVersion picks the protocol variant: --protocol flag, else the
// stored entry, else the current AA55 format.
func resolveVersion(entry *config.Heater) (protocol.Version, error) {
	if protocolFlag != "" {
		return protocol.ParseVersion(protocolFlag)
	}
	return entry.ProtocolVersion()
}

// buildCoordinator wires a transport session and coordinator for the
// resolved heater. The caller owns Close.
func buildCoordinator() (*heater.Coordinator, target, error) {
	tgt, entry, err := resolveTarget()
	if err != nil {
		return nil, target{}, err
	}

	pin, err := resolvePassword(entry)
	if err != nil {
		return nil, target{}, err
	}

	ver, err := resolveVersion(entry)
	if err != nil {
		return nil, target{}, err
	}

	session := transport.NewSession(tgt.address)
	opts := heater.Options{
		PollInterval:           entry.PollInterval(),
		DisableLevelCorrection: !entry.CorrectionEnabled(),
	}

	coord, err := heater.New(session, tgt.address, ver, protocol.AuthState{Password: pin}, opts)
	if err != nil {
		return nil, target{}, err
	}
	return coord, tgt, nil
}

// printSnapshot renders a snapshot as aligned key/value lines.
func printSnapshot(snap heater.Snapshot) {
	power := "off"
	if snap.On {
		power = "on"
	}
	fmt.Printf("  %-12s %s (%s)\n", "State:", power, snap.RunStateName)
	switch snap.RunMode {
	case 2:
		fmt.Printf("  %-12s thermostat, target %d°C\n", "Mode:", snap.TargetTemperature)
	default:
		fmt.Printf("  %-12s level %d\n", "Mode:", snap.RunMode)
	}
	fmt.Printf("  %-12s %d/%d\n", "Level:", snap.TargetLevel, protocol.MaxLevel)
	if snap.FanSpeed > 0 {
		fmt.Printf("  %-12s %d\n", "Fan:", snap.FanSpeed)
	}
	fmt.Printf("  %-12s %.1f°C\n", "Room:", snap.RoomTemperature)
	fmt.Printf("  %-12s %.1f°C\n", "Chamber:", snap.ChamberTemperature)
	if snap.Voltage > 0 {
		fmt.Printf("  %-12s %.1fV\n", "Voltage:", snap.Voltage)
	}
	if snap.ErrorCode != 0 {
		fmt.Printf("  %-12s 0x%02x\n", "Fault:", snap.ErrorCode)
	}
	fmt.Printf("  %-12s %s\n", "Link:", snap.Connection)
}
