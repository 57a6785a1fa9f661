package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

var errNoServer = errors.New("no room server found on the local network")

// discover browses for a room server advertised under service and returns the
// base URL of the first one that answers.
func discover(ctx context.Context, service string, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return "", fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", errNoServer
			}
			if u, ok := entryURL(entry); ok {
				return u, nil
			}
		case <-ctx.Done():
			return "", errNoServer
		}
	}
}

// entryURL builds the http base URL of a discovered server. IPv4 addresses
// are preferred.
func entryURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port == 0 {
		return "", false
	}
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return "", false
	}
	return "http://" + net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)), true
}

// relayURL turns the server base URL into the websocket URL of a room.
func relayURL(base, roomID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(roomID)
	return u.String(), nil
}
