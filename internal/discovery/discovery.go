// Package discovery implements the Discovery service (C10): mDNS
// publishing of the bridge's presence on the local network, plus a
// concurrent browser that decodes and deduplicates beacons from peers.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS/DNS-SD service type advertised for the bridge.
const ServiceType = "_clawdbot-bridge._tcp"

const (
	domainLocal    = "local."
	domainWideArea = "clawdbot.internal."
)

const watchdogInterval = 30 * time.Second

// TXT keys.
const (
	TXTRole        = "role"
	TXTDisplayName = "displayName"
	TXTLANHost     = "lanHost"
	TXTGatewayPort = "gatewayPort"
	TXTBridgePort  = "bridgePort"
	TXTCanvasPort  = "canvasPort"
	TXTSSHPort     = "sshPort"
	TXTTransport   = "transport"
	TXTCLIPath     = "cliPath"
	TXTTailnetDNS  = "tailnetDns"
)

// Info describes the instance this node advertises.
type Info struct {
	InstanceName string
	Role         string
	DisplayName  string
	LANHost      string
	GatewayPort  int
	BridgePort   int
	CanvasPort   int
	SSHPort      int
	Transport    string
	CLIPath      string
	TailnetDNS   string
}

func (info Info) txtRecords() []string {
	return []string{
		TXTRole + "=" + info.Role,
		TXTDisplayName + "=" + info.DisplayName,
		TXTLANHost + "=" + info.LANHost,
		TXTGatewayPort + "=" + strconv.Itoa(info.GatewayPort),
		TXTBridgePort + "=" + strconv.Itoa(info.BridgePort),
		TXTCanvasPort + "=" + strconv.Itoa(info.CanvasPort),
		TXTSSHPort + "=" + strconv.Itoa(info.SSHPort),
		TXTTransport + "=" + info.Transport,
		TXTCLIPath + "=" + info.CLIPath,
		TXTTailnetDNS + "=" + info.TailnetDNS,
	}
}

// Beacon is one decoded, deduplicated advertisement seen by the browser.
type Beacon struct {
	InstanceName string
	Domain       string
	Info         Info
	SeenAtMs     int64
}

// Publisher advertises this node's bridge service over mDNS on the local.
// domain, with a watchdog that re-registers when no server is held. Only
// local. is registered: setting WideArea adds no clawdbot.internal.
// advertisement.
type Publisher struct {
	Info       Info
	Port       int
	WideArea   bool
	Log        *slog.Logger

	mu      sync.Mutex
	server  *zeroconf.Server
	name    string
	cancel  context.CancelFunc
}

// NewPublisher constructs a Publisher for info on the given service port.
func NewPublisher(info Info, port int, wideArea bool, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{Info: info, Port: port, WideArea: wideArea, Log: log, name: info.InstanceName}
}

// Start registers the service and launches the watchdog loop. Cancel ctx to
// stop advertising.
func (p *Publisher) Start(ctx context.Context) error {
	if err := p.registerWithBackoff(); err != nil {
		return err
	}
	wctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	go p.watchdog(wctx)
	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop withdraws the advertisement.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.server != nil {
		p.server.Shutdown()
		p.server = nil
	}
}

// registerWithBackoff registers the mDNS service, retrying with a
// conflict-suffixed instance name "(N)" on failure.
func (p *Publisher) registerWithBackoff() error {
	domains := []string{domainLocal}
	if p.WideArea {
		domains = append(domains, domainWideArea)
	}

	var lastErr error
	for attempt := 0; attempt < 8; attempt++ {
		name := p.name
		if attempt > 0 {
			name = fmt.Sprintf("%s (%d)", p.name, attempt)
		}
		server, err := zeroconf.Register(name, ServiceType, domains[0], p.Port, p.Info.txtRecords(), nil)
		if err == nil {
			p.mu.Lock()
			p.server = server
			p.name = name
			p.mu.Unlock()
			return nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 250 * time.Millisecond)
	}
	return fmt.Errorf("discovery: registering %s after retries: %w", p.Info.InstanceName, lastErr)
}

// watchdog checks every 30s that a registered server is held and
// re-registers when none is. It does not probe whether the advertisement
// is still visible on the network.
func (p *Publisher) watchdog(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			registered := p.server != nil
			p.mu.Unlock()
			if !registered {
				if err := p.registerWithBackoff(); err != nil {
					p.Log.Warn("discovery: watchdog re-register failed", "err", err)
				}
			}
		}
	}
}

// Browser discovers peers concurrently on local. and clawdbot.internal.,
// deduplicating by instance name and preferring the freshest advertisement.
type Browser struct {
	Log *slog.Logger

	mu      sync.Mutex
	beacons map[string]Beacon
}

// NewBrowser constructs a Browser.
func NewBrowser(log *slog.Logger) *Browser {
	if log == nil {
		log = slog.Default()
	}
	return &Browser{Log: log, beacons: make(map[string]Beacon)}
}

// Start launches concurrent browse loops on both domains until ctx is done.
// onBeacon is invoked for every newly-seen or refreshed beacon.
func (b *Browser) Start(ctx context.Context, onBeacon func(Beacon)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: new resolver: %w", err)
	}

	var wg sync.WaitGroup
	for _, domain := range []string{domainLocal, domainWideArea} {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			b.browseDomain(ctx, resolver, domain, onBeacon)
		}(domain)
	}
	go func() {
		wg.Wait()
	}()
	return nil
}

func (b *Browser) browseDomain(ctx context.Context, resolver *zeroconf.Resolver, domain string, onBeacon func(Beacon)) {
	entries := make(chan *zeroconf.ServiceEntry, 16)
	go func() {
		for entry := range entries {
			beacon := decodeEntry(entry, domain)
			if b.recordIfFreshest(beacon) && onBeacon != nil {
				onBeacon(beacon)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		b.Log.Warn("discovery: browse failed", "domain", domain, "err", err)
	}
	<-ctx.Done()
}

// recordIfFreshest deduplicates by stable instance name, keeping only the
// freshest advertisement.
func (b *Browser) recordIfFreshest(beacon Beacon) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.beacons[beacon.InstanceName]
	if ok && existing.SeenAtMs > beacon.SeenAtMs {
		return false
	}
	b.beacons[beacon.InstanceName] = beacon
	return true
}

// Beacons returns a snapshot of all currently known beacons.
func (b *Browser) Beacons() []Beacon {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Beacon, 0, len(b.beacons))
	for _, v := range b.beacons {
		out = append(out, v)
	}
	return out
}

func decodeEntry(entry *zeroconf.ServiceEntry, domain string) Beacon {
	info := Info{InstanceName: DecodeDNSSDEscape(entry.Instance)}
	for _, rec := range entry.Text {
		k, v, ok := strings.Cut(rec, "=")
		if !ok {
			continue
		}
		switch k {
		case TXTRole:
			info.Role = v
		case TXTDisplayName:
			info.DisplayName = v
		case TXTLANHost:
			info.LANHost = v
		case TXTGatewayPort:
			info.GatewayPort, _ = strconv.Atoi(v)
		case TXTBridgePort:
			info.BridgePort, _ = strconv.Atoi(v)
		case TXTCanvasPort:
			info.CanvasPort, _ = strconv.Atoi(v)
		case TXTSSHPort:
			info.SSHPort, _ = strconv.Atoi(v)
		case TXTTransport:
			info.Transport = v
		case TXTCLIPath:
			info.CLIPath = v
		case TXTTailnetDNS:
			info.TailnetDNS = v
		}
	}
	return Beacon{
		InstanceName: info.InstanceName,
		Domain:       domain,
		Info:         info,
		SeenAtMs:     nowMs(),
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
