// Package kernel is the engine-internal event bus: a ZeroMQ PUB socket
// the batch engine publishes coalesced events onto, and a SUB-side
// subscription the session server's per-connection goroutines read
// from. It decouples "the engine produced an event" from "some
// connection forwards it to a socket", the same separation the
// teacher's Jupyter kernel draws between its IOPub socket and any
// consumer of it.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-zeromq/zmq4"
)

// cellsTopic is the single ZeroMQ topic key every published frame is
// prefixed with; subscribers filter on it the way a real multi-topic
// bus would, even though this engine only ever has one topic.
const cellsTopic = "cells"

// Bus owns the PUB socket the engine writes to. It binds to an
// in-process endpoint: the session server lives in the same process,
// so there is no need for a real tcp:// port the way the teacher's
// Jupyter ports are — zmq4's inproc:// transport is the same socket
// type used over a process-local rendezvous address instead.
type Bus struct {
	ctx context.Context
	pub zmq4.Socket
	ep  string
}

// NewBus creates and binds a PUB socket on ep (e.g.
// "inproc://gridcore-events"). The bus must be closed with Close when
// the engine shuts down.
func NewBus(ctx context.Context, endpoint string) (*Bus, error) {
	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(endpoint); err != nil {
		return nil, fmt.Errorf("bus: bind %s: %w", endpoint, err)
	}
	return &Bus{ctx: ctx, pub: pub, ep: endpoint}, nil
}

// Endpoint returns the address new subscribers should Dial.
func (b *Bus) Endpoint() string { return b.ep }

// Publish marshals v to JSON and sends it as a two-frame message: the
// topic key, then the payload, mirroring zmq4's standard pub/sub
// envelope convention.
func (b *Bus) Publish(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("kernel: marshal event: %v", err)
		return
	}
	msg := zmq4.NewMsgFrom([]byte(cellsTopic), payload)
	if err := b.pub.Send(msg); err != nil {
		log.Printf("kernel: publish: %v", err)
	}
}

// Close releases the PUB socket.
func (b *Bus) Close() error { return b.pub.Close() }

// Subscriber is a SUB-side connection to a Bus, used by session
// server connection goroutines that want the raw event stream in
// addition to (or instead of) the per-connection bridge reply path.
type Subscriber struct {
	sock zmq4.Socket
}

// NewSubscriber dials endpoint and subscribes to the cells topic.
func NewSubscriber(ctx context.Context, endpoint string) (*Subscriber, error) {
	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("kernel: dial %s: %w", endpoint, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, cellsTopic); err != nil {
		return nil, fmt.Errorf("kernel: subscribe: %w", err)
	}
	return &Subscriber{sock: sock}, nil
}

// Recv blocks for the next published payload and unmarshals it into v.
func (s *Subscriber) Recv(v interface{}) error {
	msg, err := s.sock.Recv()
	if err != nil {
		return err
	}
	if len(msg.Frames) < 2 {
		return fmt.Errorf("kernel: short message: %d frames", len(msg.Frames))
	}
	return json.Unmarshal(msg.Frames[1], v)
}

// Close releases the SUB socket.
func (s *Subscriber) Close() error { return s.sock.Close() }
