// Command ov5640d runs the OV5640 sensor control daemon.
// Run with --mock to use a simulated sensor (no I2C device required).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/micro-nova/ov5640-go/internal/api"
	"github.com/micro-nova/ov5640-go/internal/config"
	"github.com/micro-nova/ov5640-go/internal/controller"
	"github.com/micro-nova/ov5640-go/internal/events"
	"github.com/micro-nova/ov5640-go/internal/hardware"
	"github.com/micro-nova/ov5640-go/internal/models"
	"github.com/micro-nova/ov5640-go/internal/sensor"
	"github.com/micro-nova/ov5640-go/internal/zeroconf"
)

var version = "0.1.0-dev"

func main() {
	var (
		mock   = flag.Bool("mock", false, "use a simulated sensor (no I2C device required)")
		addr   = flag.String("addr", ":8640", "HTTP listen address")
		cfgDir = flag.String("config-dir", "", "config directory (default: ~/.config/ov5640)")
		debug  = flag.Bool("debug", false, "enable debug logging")
		noAF   = flag.Bool("no-af", false, "skip the autofocus firmware download")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Resolve config directory
	if *cfgDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*cfgDir = filepath.Join(home, ".config", "ov5640")
	}
	if err := os.MkdirAll(*cfgDir, 0755); err != nil {
		slog.Error("cannot create config directory", "path", *cfgDir, "err", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config store
	store := config.NewFileStore(*cfgDir)
	settings, err := store.Load()
	if err != nil {
		slog.Error("cannot load config", "path", store.Path(), "err", err)
		os.Exit(1)
	}

	// Hardware
	var hw hwHandles
	if *mock {
		slog.Info("using simulated sensor")
		hw = openMock()
	} else {
		slog.Info("opening sensor bus", "backend", settings.Backend, "bus", settings.Bus, "addr", fmt.Sprintf("0x%02x", settings.Address))
		hw, err = openHardware(*settings)
		if err != nil {
			slog.Error("hardware initialization failed", "err", err)
			os.Exit(1)
		}
	}
	defer hw.close()
	if hw.power != nil {
		if err := hw.power.PowerOn(ctx); err != nil {
			slog.Error("sensor power-up failed", "err", err)
			os.Exit(1)
		}
	}

	// Sensor device
	opts := []sensor.Option{sensor.WithMCLKDivider(settings.MCLKDivider)}
	initAF := !*noAF
	switch {
	case *noAF:
		slog.Info("autofocus disabled by flag")
	case *mock:
		opts = append(opts, sensor.WithFirmware(mockFirmware))
	case settings.Firmware == "":
		slog.Info("no af_firmware configured, autofocus disabled")
		initAF = false
	default:
		img, err := loadFirmware(*cfgDir, settings.Firmware)
		if err != nil {
			slog.Error("cannot read AF firmware", "err", err)
			os.Exit(1)
		}
		opts = append(opts, sensor.WithFirmware(img))
	}
	dev := sensor.New(hw.bus, hw.power, opts...)

	// Event bus
	bus := events.NewBus()

	// Controller
	info := models.Info{Version: version, Mock: *mock, Backend: settings.Backend}
	if *mock {
		info.Backend = "mock"
	}
	ctrl, err := controller.New(dev, store, bus, info)
	if err != nil {
		slog.Error("controller initialization failed", "err", err)
		os.Exit(1)
	}
	if err := ctrl.Start(ctx, initAF); err != nil {
		slog.Error("sensor initialization failed", "err", err)
		os.Exit(1)
	}

	// Background goroutines
	go ctrl.RunFocusPoller(ctx)
	go func() {
		err := config.Watch(ctx, store.Path(), func(next config.Settings) {
			if err := ctrl.ApplySettings(ctx, next); err != nil {
				slog.Warn("config reload rejected", "err", err)
			}
		})
		if err != nil {
			slog.Warn("config watch stopped", "err", err)
		}
	}()

	// Zeroconf mDNS registration
	hostname, _ := os.Hostname()
	zc := zeroconf.New(hostname, listenPort(*addr), txtRecords(ctrl.State()))
	go func() {
		if err := zc.Start(ctx); err != nil {
			slog.Warn("zeroconf failed", "err", err)
		}
	}()
	go advertiseSettings(ctx, bus, zc)

	// HTTP server
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewRouter(ctrl, bus),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("ov5640d listening", "addr", *addr, "mock", *mock, "config", *cfgDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	// Flush pending config writes
	if err := store.Flush(); err != nil {
		slog.Warn("failed to flush config", "err", err)
	}

	// Graceful HTTP shutdown
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	if hw.power != nil {
		if err := hw.power.PowerOff(shutCtx); err != nil {
			slog.Warn("sensor power-down failed", "err", err)
		}
	}

	slog.Info("shutdown complete")
}

// hwHandles is the opened sensor bus and optional power sequencer.
type hwHandles struct {
	bus   hardware.Bus
	power hardware.Power
	close func()
}

// loadFirmware reads the AF microcode image. Relative paths are resolved
// against the config directory.
func loadFirmware(cfgDir, path string) ([]byte, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfgDir, path)
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded AF firmware", "path", path, "bytes", len(img))
	return img, nil
}

func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 80
	}
	return port
}

func txtRecords(st models.Snapshot) []string {
	return []string{
		"version=" + st.Info.Version,
		"model=OV5640",
		"backend=" + st.Info.Backend,
		fmt.Sprintf("frame=%dx%d", st.Settings.FrameWidth, st.Settings.FrameHeight),
		fmt.Sprintf("fps=%d", st.Settings.FrameRate),
	}
}

// advertiseSettings keeps the mDNS TXT records in step with the active
// frame configuration.
func advertiseSettings(ctx context.Context, bus *events.Bus, zc *zeroconf.Service) {
	const id = "zeroconf"
	ch := bus.Subscribe(id)
	defer bus.Unsubscribe(id)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind != models.EventSettings {
				continue
			}
			if err := zc.UpdateTXT(txtRecords(ev.State)); err != nil {
				slog.Debug("zeroconf: TXT update skipped", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
