// Package zeroconf advertises the sensor control API as an mDNS/DNS-SD
// service so clients can find it on the LAN.
package zeroconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD type the daemon registers under.
const ServiceType = "_ov5640._tcp"

var errNotStarted = errors.New("zeroconf: server not started")

// Service manages mDNS service registration.
type Service struct {
	name string // instance name, e.g. the hostname
	port int

	mu     sync.Mutex
	txt    []string
	server *zeroconf.Server
}

// New creates a Service that will advertise port with the given TXT records.
func New(name string, port int, txt []string) *Service {
	return &Service{
		name: name,
		port: port,
		txt:  slices.Clone(txt),
	}
}

func (s *Service) register() (*zeroconf.Server, error) {
	server, err := zeroconf.Register(
		s.name,      // instance name
		ServiceType, // service type
		"local.",    // domain
		s.port,      // port
		s.txt,       // TXT records
		nil,         // ifaces, nil means all interfaces
	)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	return server, nil
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	server, err := s.register()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.server = server
	slog.Info("zeroconf: registered mDNS service",
		"name", s.name,
		"type", ServiceType,
		"port", s.port,
		"txt", s.txt,
	)
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.server.Shutdown()
	s.server = nil
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}

// UpdateTXT replaces the advertised TXT records. The service is registered
// again so that browsers see the new records. Unchanged records are a no-op.
func (s *Service) UpdateTXT(records []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return errNotStarted
	}
	if slices.Equal(s.txt, records) {
		return nil
	}
	s.txt = slices.Clone(records)
	s.server.Shutdown()
	server, err := s.register()
	if err != nil {
		s.server = nil
		return err
	}
	s.server = server
	slog.Info("zeroconf: TXT records updated", "txt", s.txt)
	return nil
}

// TXT returns the records currently advertised.
func (s *Service) TXT() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.txt)
}
