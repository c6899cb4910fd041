// Command touch-scale turns a pressure-sensing touch surface into a kitchen
// scale and publishes weighing results to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/touch-scale/internal/gpio"
	"github.com/sweeney/touch-scale/internal/logic"
	"github.com/sweeney/touch-scale/internal/mqtt"
	"github.com/sweeney/touch-scale/internal/session"
	"github.com/sweeney/touch-scale/internal/status"
	"github.com/sweeney/touch-scale/internal/ticker"
	"github.com/sweeney/touch-scale/internal/touch"
	"github.com/sweeney/touch-scale/internal/web"
)

// startRetry is how long to wait before retrying a session start that found
// no sensor.
const startRetry = 2 * time.Second

type options struct {
	broker      string
	httpAddr    string
	sourceTopic string
	heartbeat   time.Duration
	poll        time.Duration
	debounce    time.Duration
	tick        time.Duration
	wait        time.Duration
	pinZero     int
	pinRestart  int
	noGPIO      bool
	demo        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options

	root := &cobra.Command{
		Use:   "touch-scale",
		Short: "Weigh small items on a pressure-sensing touch surface",
		Long: `touch-scale reads touch pressure batches from the sensor driver over MQTT
and runs a guided weighing flow: rest a finger on the surface, place the
item on top, hold still, and the settled weight is published.

Use --demo to run with a synthetic sensor.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o, session.ModeGuided)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	pf.StringVar(&o.sourceTopic, "source-topic", mqtt.TopicBatches, "MQTT topic the sensor driver publishes batches on")
	pf.BoolVar(&o.demo, "demo", false, "Use a synthetic sensor instead of the MQTT source")

	addDaemonFlags(root.Flags(), &o)

	weigh := &cobra.Command{
		Use:   "weigh",
		Short: "Run the guided weighing flow (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o, session.ModeGuided)
		},
	}
	addDaemonFlags(weigh.Flags(), &o)

	scale := &cobra.Command{
		Use:   "scale",
		Short: "Show live pressure minus a zero offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o, session.ModeScale)
		},
	}
	addDaemonFlags(scale.Flags(), &o)

	devices := &cobra.Command{
		Use:   "devices",
		Short: "List the sensing devices publishing batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd.OutOrStdout(), o)
		},
	}
	devices.Flags().DurationVar(&o.wait, "wait", 3*time.Second, "How long to listen for devices")

	root.AddCommand(weigh, scale, devices)
	return root
}

// addDaemonFlags registers the flags shared by the long-running commands.
func addDaemonFlags(f *pflag.FlagSet, o *options) {
	f.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	f.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	f.DurationVar(&o.poll, "poll", 50*time.Millisecond, "Button polling interval")
	f.DurationVar(&o.debounce, "debounce", 30*time.Millisecond, "Button debounce duration")
	f.DurationVar(&o.tick, "tick", ticker.DefaultPeriod, "Progress timer tick period")
	f.IntVar(&o.pinZero, "pin-zero", gpio.PinZero, "BCM pin number for the ZERO button")
	f.IntVar(&o.pinRestart, "pin-restart", gpio.PinRestart, "BCM pin number for the RESTART button")
	f.BoolVar(&o.noGPIO, "no-gpio", false, "Disable the GPIO buttons")
}

func newClient(o options) *mqtt.RealClient {
	topic := o.sourceTopic
	if o.demo {
		topic = ""
	}
	return mqtt.NewRealClient(mqtt.Options{
		Broker:      o.broker,
		ClientID:    "touch-scale-" + uuid.NewString()[:8],
		SourceTopic: topic,
	})
}

func newSource(o options, client *mqtt.RealClient) touch.Source {
	if o.demo {
		return touch.NewDemoSource()
	}
	return client
}

func run(o options, mode session.Mode) error {
	if o.tick <= 0 {
		return fmt.Errorf("invalid --tick %v", o.tick)
	}

	// Initialize buttons
	var buttons gpio.Reader
	if !o.noGPIO {
		r, err := gpio.NewRealReader(o.pinZero, o.pinRestart)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		buttons = r
	}

	// Initialize MQTT
	client := newClient(o)
	defer client.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Mode:        string(mode),
		TickMs:      o.tick.Milliseconds(),
		PollMs:      o.poll.Milliseconds(),
		DebounceMs:  o.debounce.Milliseconds(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		SourceTopic: o.sourceTopic,
		HTTPAddr:    o.httpAddr,
		Demo:        o.demo,
		Buttons:     buttons != nil,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	cfg := session.DefaultConfig()
	cfg.Mode = mode
	cfg.Weighing.TickPeriod = o.tick
	sess := session.New(newSource(o, client), client, tracker, clockwork.NewRealClock(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sess.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, sess)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: mode=%s broker=%s source=%s tick=%v heartbeat=%v buttons=%v",
		mode, o.broker, sourceName(o), o.tick, o.heartbeat, buttons != nil)

	poll := time.NewTicker(o.poll)
	defer poll.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lc := loopConfig{
		debounce:  o.debounce,
		heartbeat: o.heartbeat,
		autoStart: true,
	}
	return runLoop(buttons, sess, client, client, tracker, lc, time.Now, poll.C, sigCh)
}

func sourceName(o options) string {
	if o.demo {
		return "demo"
	}
	return o.sourceTopic
}

// controller is the part of the session the run loop drives.
type controller interface {
	Start() error
	Restart() error
	Zero() (bool, error)
	Counts() (logic.EventCounts, error)
}

type loopConfig struct {
	debounce  time.Duration
	heartbeat time.Duration

	// autoStart begins a session on the first tick and keeps retrying until
	// the sensor is available.
	autoStart bool
}

func runLoop(buttons gpio.Reader, ctl controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, cfg loopConfig, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	heartbeat := logic.NewHeartbeat(now())
	detector := logic.NewButtonDetector(cfg.debounce)
	pendingStart := cfg.autoStart
	var nextStart time.Time

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			if pendingStart && !t.Before(nextStart) {
				if err := ctl.Start(); err != nil {
					log.Printf("start failed, retrying in %v: %v", startRetry, err)
					nextStart = t.Add(startRetry)
				} else {
					pendingStart = false
				}
			}

			if buttons != nil {
				b, err := buttons.Read()
				if err != nil {
					log.Printf("gpio read error: %v", err)
				} else {
					pressed := detector.Process(logic.ButtonInput{Zero: b.Zero, Restart: b.Restart, Time: t})
					for _, btn := range pressed {
						if !handleButton(ctl, btn) {
							pendingStart = true
							nextStart = t.Add(startRetry)
						}
					}
				}
			}

			counts, err := ctl.Counts()
			if err != nil {
				log.Printf("session counts: %v", err)
			}

			if hbData := heartbeat.Check(t, cfg.heartbeat, counts); hbData != nil {
				log.Printf("heartbeat: uptime=%v attempts=%d results=%d aborted=%d",
					hbData.Uptime, hbData.Counts.Attempts, hbData.Counts.Results, hbData.Counts.Aborted)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// handleButton acts on a debounced press. It returns false if a restart
// could not begin a new session.
func handleButton(ctl controller, btn logic.Button) bool {
	log.Printf("button: %s", btn)
	switch btn {
	case logic.ButtonZero:
		if _, err := ctl.Zero(); err != nil {
			log.Printf("zero failed: %v", err)
		}
	case logic.ButtonRestart:
		if err := ctl.Restart(); err != nil {
			log.Printf("restart failed: %v", err)
			return true
		}
		if err := ctl.Start(); err != nil {
			log.Printf("start failed: %v", err)
			return !errors.Is(err, touch.ErrSourceUnavailable)
		}
	}
	return true
}

func runDevices(w io.Writer, o options) error {
	client := newClient(o)
	defer client.Close()

	source := newSource(o, client)
	if !o.demo && !waitConnected(client, o.wait) {
		return fmt.Errorf("list devices: broker %s: %w", o.broker, touch.ErrSourceUnavailable)
	}
	return listDevices(w, source, o.wait)
}

// waitConnected polls until the client connects or timeout elapses.
func waitConnected(c mqtt.ConnectionStatus, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !c.IsConnected() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return true
}

// listDevices listens to source for wait so devices can announce themselves,
// then prints them. The selected device is marked with '*'.
func listDevices(w io.Writer, source touch.Source, wait time.Duration) error {
	sub, err := source.Subscribe()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	defer sub.Close()

	timer := time.NewTimer(wait)
	defer timer.Stop()
listen:
	for {
		select {
		case _, ok := <-sub.Batches():
			if !ok {
				break listen
			}
		case <-timer.C:
			break listen
		}
	}

	devs := source.Devices()
	if len(devs) == 0 {
		fmt.Fprintln(w, "no devices")
		return nil
	}
	for _, d := range devs {
		mark := " "
		if d.Selected {
			mark = "*"
		}
		kind := "external"
		if d.BuiltIn {
			kind = "built-in"
		}
		fmt.Fprintf(w, "%s %s\t%s\t%s\n", mark, d.ID, d.Name, kind)
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
