// Command nearfilter reads an LD-series ranging sensor, removes near-range
// noise from every revolution and fans the result out to SQLite, MQTT,
// PNG plots and an HTTP monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/nearfilter/internal/config"
	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/network"
	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/parse"
	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/serialport"
	"github.com/banshee-data/nearfilter/internal/lidar/l2frames"
	"github.com/banshee-data/nearfilter/internal/lidar/monitor"
	"github.com/banshee-data/nearfilter/internal/lidar/pipeline"
	"github.com/banshee-data/nearfilter/internal/lidar/publish"
	"github.com/banshee-data/nearfilter/internal/lidar/storage/sqlite"
	"github.com/banshee-data/nearfilter/internal/monitoring"
	"github.com/banshee-data/nearfilter/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to tuning JSON (default: config/tuning.defaults.json)")
	serialPath  = flag.String("serial", "", "Serial device of the sensor, e.g. /dev/ttyUSB0")
	baudRate    = flag.Int("baud", serialport.DefaultBaudRate, "Serial baud rate")
	udpAddr     = flag.String("udp", "", "Listen for frames forwarded over UDP on this address, e.g. :2368")
	pcapFile    = flag.String("pcap", "", "Replay frames from a PCAP/PCAPNG capture")
	pcapPort    = flag.Int("pcap-port", 2368, "UDP destination port carrying frames in the capture (0 = any)")
	dbFile      = flag.String("db", "", "SQLite database for per-revolution statistics (disabled when empty)")
	listen      = flag.String("listen", ":8082", "HTTP listen address (disabled when empty)")
	mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (disabled when empty)")
	mqttPrefix  = flag.String("mqtt-prefix", "", "MQTT topic prefix (default from config)")
	plotDir     = flag.String("plot-dir", "", "Directory for revolution PNG plots (disabled when empty)")
	strict      = flag.Bool("strict", true, "Strict policy: middle-confidence points must cluster to survive")
	debug       = flag.Bool("debug", false, "Verbose per-revolution logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// sourceFlags are the mutually exclusive inputs.
type sourceFlags struct {
	serial string
	baud   int
	udp    string
	pcap   string
	port   int
}

// newSource returns the one configured source.
func newSource(f sourceFlags) (pipeline.Source, error) {
	var sources []pipeline.Source
	if f.serial != "" {
		sources = append(sources, serialport.NewSource(f.serial, serialport.PortOptions{BaudRate: f.baud}, nil))
	}
	if f.udp != "" {
		sources = append(sources, network.NewUDPSource(network.UDPSourceConfig{Address: f.udp}))
	}
	if f.pcap != "" {
		sources = append(sources, network.NewReplaySource(f.pcap, f.port))
	}
	switch len(sources) {
	case 0:
		return nil, errors.New("one of -serial, -udp or -pcap is required")
	case 1:
		return sources[0], nil
	default:
		return nil, errors.New("-serial, -udp and -pcap are mutually exclusive")
	}
}

// loadConfig reads the tuning file, then applies flags the user set
// explicitly on top of it.
func loadConfig(path string, set map[string]bool) (*config.TuningConfig, error) {
	cfg := config.EmptyTuningConfig()
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(path); err != nil {
			return nil, err
		}
	}
	if set["strict"] {
		v := *strict
		cfg.StrictPolicy = &v
	}
	if set["mqtt-prefix"] {
		v := *mqttPrefix
		cfg.PublishPrefix = &v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}
	return cfg, nil
}

func setupLogging(debug bool) {
	monitoring.SetLogger(log.Printf)
	monitoring.SetDebug(debug)

	var trace io.Writer
	if debug {
		trace = os.Stderr
	}
	parse.SetLogWriters(os.Stderr, os.Stderr, trace)
	l2frames.SetLogWriters(os.Stderr, os.Stderr, trace)
	pipeline.SetLogWriters(os.Stderr, os.Stderr, trace)
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	setupLogging(*debug)
	log.Print(version.String())

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	cfg, err := loadConfig(*configFile, set)
	if err != nil {
		return err
	}

	src, err := newSource(sourceFlags{serial: *serialPath, baud: *baudRate, udp: *udpAddr, pcap: *pcapFile, port: *pcapPort})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := pipeline.NewRuntime(pipeline.Config{
		Filter:        cfg.NearFilterConfig(),
		InitialSpeed:  cfg.GetInitialSpeed(),
		Strict:        cfg.GetStrictPolicy(),
		WrapTolerance: cfg.GetWrapToleranceDeg(),
	})
	if err != nil {
		return err
	}

	var store *sqlite.Store
	if *dbFile != "" {
		if store, err = sqlite.Open(*dbFile); err != nil {
			return err
		}
		defer store.Close()
		if _, err := store.StartRun(ctx, src.Name(), cfg.NearFilterConfig(), cfg.GetStrictPolicy()); err != nil {
			return err
		}
		rt.AddSink(store)
	}

	if *mqttBroker != "" {
		client, err := publish.Connect(ctx, publish.ConnectOptions{Broker: *mqttBroker})
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		rt.AddSink(publish.NewPublisher(client, cfg.GetPublishPrefix()))
	}

	if *plotDir != "" {
		plotter, err := monitor.NewPlotter(*plotDir, cfg.GetPlotEvery())
		if err != nil {
			return err
		}
		rt.AddSink(plotter)
	}

	// The source ending (e.g. a finished replay) stops everything else.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if *listen != "" {
		mux := http.NewServeMux()
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		ws := monitor.NewWebServer(monitor.WebServerConfig{Address: *listen, Controller: rt, Mux: mux})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(runCtx); err != nil {
				log.Printf("HTTP server error: %v", err)
				cancel()
			}
		}()
	}

	runErr := rt.Run(runCtx, src)
	cancel()
	wg.Wait()

	if store != nil {
		if err := store.EndRun(context.Background()); err != nil {
			log.Printf("failed to close run: %v", err)
		}
	}

	totals := rt.Totals()
	log.Printf("processed %d packets, %d revolutions, kept %d of %d points",
		totals.Packets, totals.Revolutions, totals.Output, totals.Input)
	return runErr
}
