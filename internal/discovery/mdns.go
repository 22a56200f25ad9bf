// ABOUTME: mDNS service discovery for WebSDR receivers
// ABOUTME: Handles both advertisement (simulator) and browsing (player)
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/h1sdr/websdr-go/pkg/protocol"
	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the mDNS service receivers advertise
const ServiceType = "_websdr._tcp"

// ErrNotFound is returned by Discover when no receiver answered in time
var ErrNotFound = errors.New("no websdr server found")

const queryTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// Paths are advertised as TXT records, one per channel
	Paths  map[protocol.ChannelKind]string
	Logger logrus.FieldLogger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     logrus.FieldLogger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered receiver
type ServerInfo struct {
	Name  string
	Host  string
	Port  int
	Paths map[protocol.ChannelKind]string
}

// Address returns host:port
func (s *ServerInfo) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Manager{
		config:  config,
		log:     config.Logger.WithField("component", "mdns"),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise announces a receiver via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config.Paths),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"name": m.config.ServiceName,
		"port": m.config.Port,
		"type": ServiceType,
	}).Info("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for receivers until Stop
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for receivers
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		forwarded := make(chan struct{})

		go func() {
			defer close(forwarded)
			for entry := range entries {
				server := entryToServer(entry)
				if server == nil {
					continue
				}

				m.log.WithFields(logrus.Fields{
					"name": server.Name,
					"addr": server.Address(),
				}).Info("Discovered server")

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = queryTimeout
		params.Entries = entries
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			m.log.WithError(err).Debug("mDNS query failed")
		}
		close(entries)
		<-forwarded

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Servers returns the channel of discovered receivers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Discover browses until the first receiver answers or ctx ends
func (m *Manager) Discover(ctx context.Context) (*ServerInfo, error) {
	if err := m.Browse(); err != nil {
		return nil, err
	}
	select {
	case server := <-m.servers:
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotFound, ctx.Err())
	}
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

func txtRecords(paths map[protocol.ChannelKind]string) []string {
	var txt []string
	for _, kind := range protocol.AllChannels {
		path, ok := paths[kind]
		if !ok {
			path = kind.Path()
		}
		txt = append(txt, kind.String()+"="+path)
	}
	return txt
}

func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	server := &ServerInfo{
		Name:  strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host:  entry.AddrV4.String(),
		Port:  entry.Port,
		Paths: make(map[protocol.ChannelKind]string),
	}
	for _, field := range entry.InfoFields {
		name, path, ok := strings.Cut(field, "=")
		if !ok || !strings.HasPrefix(path, "/") {
			continue
		}
		if kind, err := protocol.ParseChannelKind(name); err == nil {
			server.Paths[kind] = path
		}
	}
	return server
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
