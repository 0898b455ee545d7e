package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service advertised by brokers such as Mosquitto with Avahi.
const (
	ServiceType = "_mqtt._tcp"
	Domain      = "local"
)

// DefaultDiscoveryTimeout bounds a broker lookup.
const DefaultDiscoveryTimeout = 3 * time.Second

// ErrNoBroker is returned when no broker answered the mDNS query in time.
var ErrNoBroker = errors.New("no mqtt broker found via mdns")

// Discover browses the local network for an MQTT broker and returns its URL.
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed); err != nil {
			slog.Debug("mdns browse ended", "error", err)
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoBroker
			}
			if u := entryURL(entry); u != "" {
				slog.Info("mqtt broker discovered", "instance", entry.Instance, "url", u)
				return u, nil
			}
		case _, ok := <-removed:
			if !ok {
				removed = nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("%w within %s", ErrNoBroker, timeout)
		}
	}
}

// entryURL builds mqtt://host:port from a service entry, preferring IPv4.
func entryURL(entry *zeroconf.ServiceEntry) string {
	if entry == nil || entry.Port <= 0 {
		return ""
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		host = strings.TrimSuffix(entry.HostName, ".")
	}
	if host == "" {
		return ""
	}

	return "mqtt://" + net.JoinHostPort(host, strconv.Itoa(entry.Port))
}
