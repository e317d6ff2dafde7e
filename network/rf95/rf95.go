// Package rf95 is a LoRa radio Network implementation over a rf95modem
// serial device, grounded on the teacher's bbc.Rf95Modem wrapper around
// github.com/dtn7/rf95modem-go.
package rf95

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rf95modem-go/rf95"
)

// Transport satisfies agent.Network over a single rf95modem serial device.
// LoRa is a shared broadcast medium: Send ignores its neighbor argument and
// transmits to every receiver in range, leaving final addressing to the
// bundle's own destination endpoint once the frame is decoded.
type Transport struct {
	device    string
	modem     *rf95.Modem
	onReceive func(frame []byte)
	stop      chan struct{}
}

// NewTransport opens device (e.g. "/dev/ttyUSB0") and starts a background
// reader delivering every received frame to onReceive.
func NewTransport(device string, onReceive func(frame []byte)) (*Transport, error) {
	modem, err := rf95.OpenSerial(device)
	if err != nil {
		return nil, fmt.Errorf("rf95: opening %s: %w", device, err)
	}

	t := &Transport{
		device:    device,
		modem:     modem,
		onReceive: onReceive,
		stop:      make(chan struct{}),
	}
	go t.receiveLoop()

	return t, nil
}

func (t *Transport) receiveLoop() {
	mtu, err := t.modem.Mtu()
	if err != nil || mtu <= 0 {
		mtu = 255
	}
	buf := make([]byte, mtu)

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.modem.Read(buf)
		if err != nil {
			log.WithFields(log.Fields{"device": t.device, "error": err}).Debug("rf95: read failed")
			continue
		}
		if n == 0 || t.onReceive == nil {
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		t.onReceive(frame)
	}
}

// Send implements agent.Network.
func (t *Transport) Send(neighbor uint32, frame []byte) error {
	_, err := t.modem.Write(frame)
	return err
}

// Close shuts down the reader and the underlying serial connection.
func (t *Transport) Close() error {
	close(t.stop)
	return t.modem.Close()
}
