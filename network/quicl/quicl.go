// Package quicl is a QUIC-based point-to-point Network implementation:
// every frame handed to Send travels down its own length-prefixed stream.
package quicl

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/lucas-clemente/quic-go"
	log "github.com/sirupsen/logrus"
)

// Transport satisfies agent.Network over QUIC. It is a narrowed-down
// version of the teacher's Endpoint/Listener pair, collapsed from a full
// peer-handshake session lifecycle down to this profile's "hand a frame to
// a neighbor" boundary: there is no endpoint-id handshake here, neighbor
// identity comes from the static address table instead.
type Transport struct {
	listenAddr string
	peers      map[uint32]string // node id -> dial address
	onReceive  func(frame []byte)

	mu    sync.Mutex
	conns map[uint32]quic.Connection

	listener quic.Listener
}

// NewTransport creates a Transport listening on listenAddr (empty to
// disable inbound connections) and dialing peers by node id as needed.
// onReceive is invoked once per frame read off an inbound (accepted)
// connection; connections dialed by Send are never read from.
func NewTransport(listenAddr string, peers map[uint32]string, onReceive func(frame []byte)) *Transport {
	return &Transport{
		listenAddr: listenAddr,
		peers:      peers,
		onReceive:  onReceive,
		conns:      make(map[uint32]quic.Connection),
	}
}

// Start begins accepting inbound connections. A no-op if listenAddr is empty.
func (t *Transport) Start() error {
	if t.listenAddr == "" {
		return nil
	}

	lst, err := quic.ListenAddr(t.listenAddr, listenerTLSConfig(), quicConfig())
	if err != nil {
		return fmt.Errorf("quicl: listen %s: %w", t.listenAddr, err)
	}
	t.listener = lst

	go t.acceptLoop()
	return nil
}

// Close shuts down the listener, if any.
func (t *Transport) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

func (t *Transport) acceptLoop() {
	for {
		conn, err := t.listener.Accept(context.Background())
		if err != nil {
			log.WithField("error", err).Info("quicl: listener closed")
			return
		}
		go t.handleConn(conn)
	}
}

func (t *Transport) handleConn(conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		go t.handleStream(stream)
	}
}

func (t *Transport) handleStream(stream quic.Stream) {
	defer stream.Close()

	var length uint32
	if err := binary.Read(stream, binary.BigEndian, &length); err != nil {
		log.WithField("error", err).Debug("quicl: reading frame length failed")
		return
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(stream, frame); err != nil {
		log.WithField("error", err).Debug("quicl: reading frame body failed")
		return
	}

	if t.onReceive != nil {
		t.onReceive(frame)
	}
}

// Send implements agent.Network: dial (or reuse) a connection to neighbor
// and push frame down a fresh stream.
func (t *Transport) Send(neighbor uint32, frame []byte) error {
	conn, err := t.connFor(neighbor)
	if err != nil {
		return err
	}

	stream, err := conn.OpenStreamSync(context.Background())
	if err != nil {
		t.mu.Lock()
		delete(t.conns, neighbor)
		t.mu.Unlock()
		return fmt.Errorf("quicl: open stream to neighbor %d: %w", neighbor, err)
	}
	defer stream.Close()

	if err := binary.Write(stream, binary.BigEndian, uint32(len(frame))); err != nil {
		return err
	}
	_, err = stream.Write(frame)
	return err
}

func (t *Transport) connFor(neighbor uint32) (quic.Connection, error) {
	t.mu.Lock()
	if conn, ok := t.conns[neighbor]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	addr, ok := t.peers[neighbor]
	if !ok {
		return nil, fmt.Errorf("quicl: no known address for neighbor %d", neighbor)
	}

	conn, err := quic.DialAddr(addr, dialerTLSConfig(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quicl: dial neighbor %d at %s: %w", neighbor, addr, err)
	}

	t.mu.Lock()
	t.conns[neighbor] = conn
	t.mu.Unlock()

	return conn, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 1 * time.Second,
		MaxIdleTimeout:  5 * time.Second,
	}
}

// listenerTLSConfig generates a self-signed certificate; the dialer side
// skips verification to match, same trust model the teacher's internal
// package uses for its QUIC listener.
func listenerTLSConfig() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.WithField("error", err).Fatal("quicl: generating private key")
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		log.WithField("error", err).Fatal("quicl: generating certificate")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		log.WithField("error", err).Fatal("quicl: combining certificate and key")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"dtn7-core-quicl"},
		MinVersion:   tls.VersionTLS13,
	}
}

func dialerTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"dtn7-core-quicl"},
	}
}
