// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	applog "tuner/internal/log"
	"tuner/internal/tuner"
)

// ResultProvider supplies the most recent tuner reading. The boolean is
// false when no block has been processed yet.
type ResultProvider interface {
	Latest() (tuner.Result, bool)
}

// Publisher periodically fetches the latest tuner result, packs it into
// a fixed binary format, and sends it over UDP using a Sender.
// It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	sender   *Sender
	provider ResultProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop

	sequenceNum uint32

	// Reusable buffer for constructing the binary packet.
	packetBuffer *bytes.Buffer
}

// NewPublisher creates and initializes a Publisher.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender, provider ResultProvider) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("udp publisher: result provider cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDP Publisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDP Publisher: Initializing (Interval: %s)", interval)

	return &Publisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process. It launches a goroutine
// that ticks at the configured interval until Stop is called. Calling
// Start while already running is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDP Publisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture locals to avoid races on p.ticker/p.doneChan in the goroutine.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDP Publisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				applog.Infof("UDP Publisher: Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. Safe to call multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("UDP Publisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		applog.Infof("UDP Publisher: Initiating stop sequence...")
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDP Publisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------+
| Field           | Data Type | Size (Bytes) | Description               |
|-----------------|-----------|--------------|---------------------------|
| Sequence Number | uint32    | 4            | Monotonically increasing  |
| Timestamp       | int64     | 8            | Nanoseconds since epoch   |
| Pitch           | float32   | 4            | Estimated pitch in Hz     |
| Note            | int16     | 2            | Scale degree, -1 if none  |
| Cents           | float32   | 4            | Raw intonation error      |
| CentsAdj        | float32   | 4            | Smoothed intonation error |
| Tunable         | uint8     | 1            | 1 when a note is sounding |
+------------------------------------------------------------------------+
*/

// buildAndSendPacket fetches the latest result, packs it, and sends it.
// Skips the tick entirely when no result is available yet.
func (p *Publisher) buildAndSendPacket() {
	res, ok := p.provider.Latest()
	if !ok {
		return
	}

	p.sequenceNum++
	timestamp := time.Now().UnixNano()

	var tunable uint8
	if res.Tunable {
		tunable = 1
	}

	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, timestamp)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(res.Pitch))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, int16(res.Note))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(res.Cents))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(res.CentsAdj))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, tunable)
	}

	if err != nil {
		applog.Errorf("UDP Publisher: Error packing data into binary buffer: %v", err)
		return
	}

	packetBytes := p.packetBuffer.Bytes()

	if err := p.sender.Send(packetBytes); err == nil {
		applog.Debugf("UDP Publisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packetBytes))
	}
}

// Close implements the io.Closer interface. It gracefully stops the
// publisher goroutine.
func (p *Publisher) Close() error {
	applog.Debugf("UDP Publisher: Close called, stopping publisher...")
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)
