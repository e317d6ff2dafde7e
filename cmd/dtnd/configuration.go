// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2019, 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-core/agent"
	"github.com/dtn7/dtn7-core/appagent"
	"github.com/dtn7/dtn7-core/bundle"
	"github.com/dtn7/dtn7-core/config"
	"github.com/dtn7/dtn7-core/cron"
	"github.com/dtn7/dtn7-core/custody"
	"github.com/dtn7/dtn7-core/discovery"
	"github.com/dtn7/dtn7-core/network/quicl"
	"github.com/dtn7/dtn7-core/network/rf95"
	"github.com/dtn7/dtn7-core/redundancy"
	"github.com/dtn7/dtn7-core/storage"
)

// node is the composition root: everything startNode wires together and
// everything Close needs to shut down, mirroring the teacher's Core as the
// single object main.go holds onto.
type node struct {
	agent        *agent.Agent
	storage      *storage.FileStore
	custody      *custody.Module
	custodyStore *custody.BadgerStore

	cron *cron.Scheduler

	quicl *quicl.Transport
	rf95  *rf95.Transport

	discovery *discovery.Service
	watcher   *config.Watcher

	httpServer *http.Server

	stop chan struct{}
}

// multiNetwork fans Send out across every configured transport, trying
// each in turn, mirroring the teacher's cla.Manager picking whichever
// Convergable can reach a given neighbor.
type multiNetwork struct {
	transports []agent.Network
}

func (m *multiNetwork) Send(neighbor uint32, frame []byte) error {
	var lastErr error
	for _, t := range m.transports {
		if err := t.Send(neighbor, frame); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func nowSeconds() uint32 {
	return uint32(time.Now().Unix())
}

// startNode builds a fully wired node from a TOML configuration file, the
// runtime equivalent of the teacher's parseCore.
func startNode(filename string) (*node, error) {
	conf, err := config.Load(filename)
	if err != nil {
		return nil, err
	}

	self := bundle.EndpointID{Node: conf.Core.NodeID, Service: 0}

	store, err := storage.NewFileStore(conf.Core.Store, conf.Core.Capacity)
	if err != nil {
		return nil, err
	}

	custodyStore, err := custody.NewBadgerStore(conf.Core.Store + "/custody")
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	custodyModule := custody.NewModule(
		self,
		conf.Core.CustodyMaxEntries,
		conf.Core.CustodyRetransmitInterval,
		conf.Core.CustodyRetransmitLimit,
		custodyStore,
		store,
	)

	filter := redundancy.NewRotatingBloom(
		conf.Core.RedundancyFilters,
		conf.Core.RedundancyBytes,
		conf.Core.RedundancyRotateAt,
	)

	n := &node{storage: store, custody: custodyModule, custodyStore: custodyStore, stop: make(chan struct{})}

	var transports []agent.Network

	onReceive := func(frame []byte) {
		b, err := bundle.FromBytes(frame)
		if err != nil {
			log.WithField("error", err).Debug("dtnd: discarding malformed inbound frame")
			return
		}
		n.agent.Post(agent.Event{Kind: agent.EvReceiveBundle, Bundle: &b})
	}

	if conf.Listen.Quicl != "" {
		peers := make(map[uint32]string)
		for _, p := range conf.Peer {
			peers[p.Node] = p.Addr
		}

		t := quicl.NewTransport(conf.Listen.Quicl, peers, onReceive)
		if err := t.Start(); err != nil {
			return nil, err
		}
		n.quicl = t
		transports = append(transports, t)
	}

	if conf.Listen.Rf95 != "" {
		t, err := rf95.NewTransport(conf.Listen.Rf95, onReceive)
		if err != nil {
			return nil, err
		}
		n.rf95 = t
		transports = append(transports, t)
	}

	n.agent = agent.New(self, store, custodyModule, filter, &multiNetwork{transports: transports})

	custodyModule.Forward = func(b bundle.Bundle) {
		n.agent.Post(agent.Event{Kind: agent.EvSendBundle, Bundle: &b})
	}
	custodyModule.EmitSignal = func(dest bundle.EndpointID, signal *bundle.CustodySignal) {
		payload, err := bundle.EncodeAdministrativeRecord(signal)
		if err != nil {
			log.WithField("error", err).Warn("dtnd: failed to encode custody signal")
			return
		}
		b := bundle.New(bundle.AdministrativeRecordPayload, dest, self, nowSeconds(), 0, 3600)
		b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, payload))
		n.agent.Post(agent.Event{Kind: agent.EvSendAdminRecord, Bundle: &b})
	}
	custodyModule.EmitStatusReport = func(dest bundle.EndpointID, report *bundle.StatusReport) {
		payload, err := bundle.EncodeAdministrativeRecord(report)
		if err != nil {
			log.WithField("error", err).Warn("dtnd: failed to encode status report")
			return
		}
		b := bundle.New(bundle.AdministrativeRecordPayload, dest, self, nowSeconds(), 0, 3600)
		b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, payload))
		n.agent.Post(agent.Event{Kind: agent.EvSendAdminRecord, Bundle: &b})
	}

	n.cron = cron.New(time.Second)
	_ = n.cron.Register("storage-sweep", 30*time.Second, func() {
		n.agent.Post(agent.Event{Kind: agent.EvStorageSweep})
	})
	custody.NewRetransmitTimer(n.cron, custodyModule, time.Second, nowSeconds)

	if err := registerAgents(n, conf.Agents, self); err != nil {
		return nil, err
	}

	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		listenPort := uint32(0)
		ds, err := discovery.NewService(
			conf.Core.NodeID, listenPort, n.agent.Post,
			conf.DiscoveryIntervalDuration(), conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return nil, err
		}
		n.discovery = ds
	}

	if w, err := config.WatchLogging(filename); err == nil {
		n.watcher = w
	}

	go n.agent.Run(n.stop, nowSeconds)

	return n, nil
}

// registerAgents wires the configured local applications onto the agent's
// registration table and pumps each one's outgoing events back in.
func registerAgents(n *node, conf config.AgentsConfig, self bundle.EndpointID) error {
	if conf.Ping {
		p := appagent.NewPingAgent(self, conf.PingSvcID, nowSeconds)
		n.agent.Post(agent.Event{Kind: agent.EvApplicationRegistration, ServiceID: p.ServiceID(), Queue: p.Inbox(), Active: true})
		go appagent.Pump(n.agent, p)
	}

	wc := conf.Webserver
	if wc == (config.WebserverConfig{}) {
		return nil
	}

	r := mux.NewRouter()

	if wc.Websocket {
		ws := appagent.NewWebSocketAgent(self, wc.ServiceID, nowSeconds)
		r.HandleFunc("/ws", ws.ServeHTTP)
		n.agent.Post(agent.Event{Kind: agent.EvApplicationRegistration, ServiceID: ws.ServiceID(), Queue: ws.Inbox(), Active: true})
		go appagent.Pump(n.agent, ws)
	}

	if wc.Rest {
		restRouter := r.PathPrefix("/rest").Subrouter()
		ra := appagent.NewRESTAgent(restRouter, self, wc.ServiceID, nowSeconds)
		n.agent.Post(agent.Event{Kind: agent.EvApplicationRegistration, ServiceID: ra.ServiceID(), Queue: ra.Inbox(), Active: true})
		go appagent.Pump(n.agent, ra)
	}

	n.httpServer = &http.Server{Addr: wc.Address, Handler: r}
	go func() {
		if err := n.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Warn("dtnd: webserver agent stopped")
		}
	}()

	return nil
}

// Close tears every wired component down.
func (n *node) Close() {
	close(n.stop)

	n.cron.Stop()

	if n.discovery != nil {
		n.discovery.Stop()
	}
	if n.watcher != nil {
		_ = n.watcher.Close()
	}
	if n.httpServer != nil {
		_ = n.httpServer.Close()
	}
	if n.quicl != nil {
		_ = n.quicl.Close()
	}
	if n.rf95 != nil {
		_ = n.rf95.Close()
	}

	_ = n.custodyStore.Close()
	_ = n.storage.Close()
}
