package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ConnectionProbe reports whether the realtime link is up. The drainer uses
// it to avoid burning flush attempts while the device is offline.
type ConnectionProbe interface {
	Connected() bool
}

// Drainer periodically flushes the queue while the device is online. Kick
// forces an immediate attempt, used when connectivity is restored.
type Drainer struct {
	queue    *Queue
	probe    ConnectionProbe
	interval time.Duration

	kickCh   chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewDrainer creates a drainer.
func NewDrainer(q *Queue, probe ConnectionProbe, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Drainer{
		queue:    q,
		probe:    probe,
		interval: interval,
		kickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the drain loop.
func (d *Drainer) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop halts the drain loop.
func (d *Drainer) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

// Kick requests an immediate drain attempt without waiting for the ticker.
func (d *Drainer) Kick() {
	select {
	case d.kickCh <- struct{}{}:
	default:
	}
}

func (d *Drainer) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.drain()
		case <-d.kickCh:
			d.drain()
		}
	}
}

func (d *Drainer) drain() {
	if d.probe != nil && !d.probe.Connected() {
		return
	}
	n, err := d.queue.Depth()
	if err != nil || n == 0 {
		return
	}

	// A manual sync may hold the flush lock; the next tick retries.
	if _, err := d.queue.Flush(context.Background()); err != nil && !errors.Is(err, ErrFlushInProgress) {
		log.Printf("queue: drain: %v", err)
	}
}
