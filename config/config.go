// Package config loads the node's TOML configuration and keeps its
// logging section live-reloadable, grounded on the teacher's
// cmd/dtnd/configuration.go tomlConfig/logConf pair.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// Config is the root of the TOML document.
type Config struct {
	Core      CoreConfig
	Logging   LoggingConfig
	Discovery DiscoveryConfig
	Agents    AgentsConfig
	Listen    ListenConfig
	Peer      []PeerConfig
}

// CoreConfig names this node and its storage/custody/redundancy tuning,
// the runtime-configurable form of spec.md §6's compile-time table.
type CoreConfig struct {
	NodeID   uint32 `toml:"node-id"`
	Store    string
	Capacity int

	DtnEpoch string `toml:"dtn-epoch"`

	CustodyMaxEntries         int    `toml:"custody-max-entries"`
	CustodyRetransmitInterval uint32 `toml:"custody-retransmit-interval"`
	CustodyRetransmitLimit    int    `toml:"custody-retransmit-limit"`

	RedundancyFilters    int `toml:"redundancy-filters"`
	RedundancyBytes      int `toml:"redundancy-bytes"`
	RedundancyRotateAt   int `toml:"redundancy-rotate-at"`
	EventQueueDepth      int `toml:"event-queue-depth"`
}

// LoggingConfig mirrors the teacher's logConf block exactly.
type LoggingConfig struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// DiscoveryConfig mirrors the teacher's discoveryConf block.
type DiscoveryConfig struct {
	IPv4     bool
	IPv6     bool
	Interval uint
}

// AgentsConfig selects which local application agents to start.
type AgentsConfig struct {
	Ping      bool
	PingSvcID uint32 `toml:"ping-service-id"`

	Webserver WebserverConfig
}

// WebserverConfig mirrors the teacher's agentsWebserverConfig block.
type WebserverConfig struct {
	Address   string
	Websocket bool
	Rest      bool
	ServiceID uint32 `toml:"service-id"`
}

// ListenConfig configures the inbound side of this node's network transports.
type ListenConfig struct {
	Quicl string
	Rf95  string
}

// PeerConfig is a statically configured neighbor: a node id and the
// address a transport should dial to reach it.
type PeerConfig struct {
	Node uint32
	Addr string
}

// Load reads and parses filename into a Config, applying the Logging
// section immediately.
func Load(filename string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", filename, err)
	}

	if c.Core.Store == "" {
		return nil, fmt.Errorf("config: core.store must be set")
	}
	if c.Core.Capacity <= 0 {
		c.Core.Capacity = 256
	}
	if c.Core.DtnEpoch == "" {
		c.Core.DtnEpoch = "2000-01-01T00:00:00Z"
	}
	if c.Core.CustodyMaxEntries <= 0 {
		c.Core.CustodyMaxEntries = 64
	}
	if c.Core.CustodyRetransmitInterval == 0 {
		c.Core.CustodyRetransmitInterval = 1000
	}
	if c.Core.CustodyRetransmitLimit <= 0 {
		c.Core.CustodyRetransmitLimit = 5
	}
	if c.Core.RedundancyFilters <= 0 {
		c.Core.RedundancyFilters = 2
	}
	if c.Core.RedundancyBytes <= 0 {
		c.Core.RedundancyBytes = 64
	}
	if c.Core.RedundancyRotateAt <= 0 {
		c.Core.RedundancyRotateAt = 100
	}
	if c.Core.EventQueueDepth <= 0 {
		c.Core.EventQueueDepth = 16
	}
	if c.Discovery.Interval == 0 {
		c.Discovery.Interval = 10
	}

	applyLogging(c.Logging)

	return &c, nil
}

// DiscoveryIntervalDuration is Discovery.Interval expressed as a time.Duration.
func (c *Config) DiscoveryIntervalDuration() time.Duration {
	return time.Duration(c.Discovery.Interval) * time.Second
}

// applyLogging reconfigures the global logrus logger, exactly as the
// teacher's parseCore does for its Logging block.
func applyLogging(lc LoggingConfig) {
	if lc.Level != "" {
		if lvl, err := log.ParseLevel(lc.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    lc.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("config: failed to set log level")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(lc.ReportCaller)

	switch lc.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		log.Warn("config: unknown logging format")
	}
}
