// GyroBird motion-control service.
// Streams phone orientation over UDP into a stabilized on-screen aim.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/BilGameDev/GyroBird/internal/api"
	"github.com/BilGameDev/GyroBird/internal/config"
	"github.com/BilGameDev/GyroBird/internal/dispatch"
	"github.com/BilGameDev/GyroBird/internal/gyro"
	"github.com/BilGameDev/GyroBird/internal/network"
	"github.com/BilGameDev/GyroBird/internal/pipeline"
	"github.com/BilGameDev/GyroBird/internal/protocol"
	"github.com/BilGameDev/GyroBird/internal/tray"
)

var (
	version  = "1.1.0"
	cfgPath  = flag.String("config", "", "Path to config file (default: platform config dir)")
	role     = flag.String("role", "", "Override configured role: receiver or sender")
	dest     = flag.String("dest", "", "Sender destination as ip:port (skips discovery)")
	noTray   = flag.Bool("no-tray", false, "Run without the system tray icon")
	showVer  = flag.Bool("version", false, "Show version")
	showAddr = flag.Bool("addrs", false, "List local IPv4 addresses and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("gyrobird version %s\n", version)
		return
	}

	if *showAddr {
		ips, err := network.GetLocalIPs()
		if err != nil {
			log.Fatalf("Failed to list addresses: %v", err)
		}
		for _, ip := range ips {
			fmt.Println(ip)
		}
		return
	}

	cfgMgr, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg := cfgMgr.Get()
	if *role != "" {
		cfg.General.Role = *role
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	switch cfg.General.Role {
	case "sender":
		runSender(cfg)
	default:
		runReceiver(cfg)
	}
}

func loadConfig() (*config.Manager, error) {
	if *cfgPath != "" {
		m := config.NewManagerAt(*cfgPath)
		return m, m.Load()
	}
	m, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	if err := m.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}
	return m, nil
}

// aimState owns the receiver-side calibration offset and the smoothed aim.
// The aim loop, the dispatcher, and the API server all touch it, so it is
// mutex guarded.
type aimState struct {
	mu          sync.Mutex
	calibration gyro.Quaternion
	smoothed    pipeline.SmoothedTarget
	cfg         pipeline.Config
}

func newAimState(cfg pipeline.Config) *aimState {
	return &aimState{calibration: gyro.Identity, cfg: cfg}
}

// step advances the smoothed aim toward the latest orientation's target.
func (a *aimState) step(q gyro.Quaternion, ok bool, dt float64) pipeline.Offset {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ok {
		a.smoothed.SetTarget(pipeline.Process(q, a.calibration, a.cfg))
	}
	return a.smoothed.Step(dt, a.cfg.SmoothRate)
}

// calibrate stores the given orientation as the new zero attitude and snaps
// the aim back to center.
func (a *aimState) calibrate(q gyro.Quaternion) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calibration = q
	a.smoothed.Snap(pipeline.Offset{})
}

// recenter snaps the aim to screen center without touching calibration.
func (a *aimState) recenter() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.smoothed.Snap(pipeline.Offset{})
}

// current returns the smoothed aim as of the last step.
func (a *aimState) current() pipeline.Offset {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.smoothed.Current
}

func runReceiver(cfg *config.Config) {
	log.Printf("GyroBird receiver %s starting", version)

	timeout := time.Duration(cfg.Network.TimeoutSeconds * float64(time.Second))
	tracker := network.NewConnectionTracker(timeout)
	receiver := network.NewReceiver(tracker)
	aim := newAimState(cfg.Pipeline)

	queue := dispatch.NewQueue(dispatch.Sinks{
		Fire: func() bool {
			// Stand-in for the game's fire collaborator.
			log.Printf("Game: Fire at %+v", aim.current())
			return true
		},
		Restart: func() {
			log.Printf("Game: Restart")
			aim.recenter()
		},
		Calibrate: func() {
			if q, ok := receiver.LatestOrientation(); ok {
				aim.calibrate(q)
				log.Printf("Game: Calibrated")
			}
		},
	})
	queue.Start()
	defer queue.Stop()

	receiver.OnCommand = queue.Enqueue
	if err := receiver.Listen(cfg.Network.ListenPort); err != nil {
		log.Fatalf("Failed to start receiver: %v", err)
	}
	defer receiver.Stop()

	if cfg.Network.DiscoveryEnabled {
		responder := network.NewResponder(cfg.Network.ListenPort)
		if err := responder.Start(cfg.Network.DiscoveryPort); err != nil {
			log.Printf("Warning: discovery disabled: %v", err)
		} else {
			defer responder.Stop()
		}
	}

	// Liveness poll, decoupled from packet rate.
	pollDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Network.PollIntervalMS) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				tracker.Tick(now)
			case <-pollDone:
				return
			}
		}
	}()
	defer close(pollDone)

	// Aim loop at render-ish rate; the network loop never blocks on it.
	aimDone := make(chan struct{})
	go func() {
		const dt = 1.0 / 60
		ticker := time.NewTicker(time.Second / 60)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q, ok := receiver.LatestOrientation()
				aim.step(q, ok, dt)
			case <-aimDone:
				return
			}
		}
	}()
	defer close(aimDone)

	if cfg.General.APIEnabled {
		srv := api.NewServer(receiver, tracker)
		srv.Aim = aim.current
		go srv.Start(cfg.General.APIPort)
		defer srv.Stop()
	}

	if ips, err := network.GetLocalIPs(); err == nil {
		for _, ip := range ips {
			log.Printf("Receiver reachable at %s:%d", ip, cfg.Network.ListenPort)
		}
	}

	if cfg.General.TrayEnabled && !*noTray {
		runWithTray(tracker, queue)
		return
	}
	waitForSignal()
}

// runWithTray blocks in the systray event loop (it must own the main
// thread) while the status line follows tracker transitions.
func runWithTray(tracker *network.ConnectionTracker, queue *dispatch.Queue) {
	t := tray.New("GyroBird: waiting for connection")
	statusID := t.AddMenuItem("Status: disconnected", nil)
	t.AddSeparator()
	t.AddMenuItem("Calibrate", func() {
		queue.Enqueue(protocol.MsgCalibrate)
	})
	t.AddMenuItem("Quit", func() {
		t.Stop()
	})

	tracker.Subscribe(trayListener{t: t, statusID: statusID})
	t.Run()
}

type trayListener struct {
	t        *tray.Tray
	statusID int
}

func (l trayListener) Connected(remoteAddr string) {
	l.t.SetItemTitle(l.statusID, "Status: connected to "+remoteAddr)
	l.t.SetStatus(true, remoteAddr)
}

func (l trayListener) Disconnected() {
	l.t.SetItemTitle(l.statusID, "Status: disconnected")
	l.t.SetStatus(false, "")
}

func runSender(cfg *config.Config) {
	log.Printf("GyroBird sender %s starting (synthetic source)", version)

	rate := time.Second / time.Duration(cfg.Network.SendRateHz)
	source := gyro.NewSyntheticSource()
	sender := network.NewSender(source, rate)

	if err := sender.Start(); err != nil {
		log.Fatalf("Failed to start sender: %v", err)
	}
	defer sender.Stop()

	if *dest != "" {
		host, portStr, err := net.SplitHostPort(*dest)
		if err != nil {
			log.Fatalf("Invalid -dest %q: %v", *dest, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Fatalf("Invalid -dest port %q: %v", portStr, err)
		}
		if err := sender.SetDestination(host, port); err != nil {
			log.Fatalf("Invalid destination: %v", err)
		}
	} else {
		go discoverLoop(sender, cfg.Network.DiscoveryPort)
	}

	// Zero the stream against the source's startup attitude.
	if q, err := source.Current(); err == nil {
		sender.Calibrate(q)
	}

	waitForSignal()
}

// discoverLoop retries discovery until a receiver answers.
func discoverLoop(sender *network.Sender, discoveryPort int) {
	for {
		addr, port, err := network.Discover(discoveryPort, 2*time.Second)
		if err == nil {
			if err := sender.SetDestination(addr, port); err == nil {
				return
			}
		}
		log.Printf("Discovery: No receiver yet, retrying")
		time.Sleep(2 * time.Second)
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("Shutting down")
}
