package main

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
	"go.uber.org/zap"
)

const (
	mqttServiceType = "_mqtt._tcp"
	mdnsDomain      = "local"
)

var errNoBrokerFound = errors.New("no MQTT broker announced via mDNS")

// brokerAddress picks a dialable host:port from a service entry, preferring IPv4
func brokerAddress(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port == 0 {
		return "", false
	}
	port := strconv.Itoa(entry.Port)
	switch {
	case len(entry.AddrIPv4) > 0:
		return net.JoinHostPort(entry.AddrIPv4[0].String(), port), true
	case len(entry.AddrIPv6) > 0:
		return net.JoinHostPort(entry.AddrIPv6[0].String(), port), true
	case entry.HostName != "":
		return net.JoinHostPort(strings.TrimSuffix(entry.HostName, "."), port), true
	}
	return "", false
}

// discoverBroker browses for an MQTT broker on the local network and returns
// the first usable address
func discoverBroker(ctx context.Context, logger *zap.Logger, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	logger.Info("Browsing for MQTT broker", zap.String("service", mqttServiceType), zap.Duration("timeout", timeout))

	browseErr := make(chan error, 1)
	go func() {
		browseErr <- zeroconf.Browse(ctx, mqttServiceType, mdnsDomain, entries, removed)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", errNoBrokerFound
			}
			addr, ok := brokerAddress(entry)
			if !ok {
				logger.Debug("Ignoring broker announcement without address", zap.String("instance", entry.Instance))
				continue
			}
			logger.Info("Discovered MQTT broker",
				zap.String("instance", entry.Instance),
				zap.String("address", addr))
			return addr, nil

		case _, ok := <-removed:
			// Only the first announcement matters
			if !ok {
				removed = nil
			}

		case err := <-browseErr:
			if err != nil {
				return "", err
			}
			browseErr = nil

		case <-ctx.Done():
			return "", errNoBrokerFound
		}
	}
}
