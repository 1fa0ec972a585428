//go:build linux || darwin
// +build linux darwin

package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CANReader delivers received frames one at a time.
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// SocketCANReader pumps frames from a SocketCAN interface. Error frames are dropped.
type SocketCANReader struct {
	conn   net.Conn
	recv   *socketcan.Receiver
	frames chan can.Frame
	errc   chan error
	done   chan struct{}
	once   sync.Once
}

func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	r := &SocketCANReader{
		conn:   conn,
		recv:   socketcan.NewReceiver(conn),
		frames: make(chan can.Frame, 64),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go r.pump()
	return r, nil
}

func (r *SocketCANReader) pump() {
	for r.recv.Receive() {
		if r.recv.HasErrorFrame() {
			continue
		}
		select {
		case r.frames <- r.recv.Frame():
		case <-r.done:
			return
		}
	}
	err := r.recv.Err()
	if err == nil {
		err = io.EOF
	}
	r.errc <- err
}

// ReadFrame blocks until a frame arrives, the socket fails or ctx is done.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-r.frames:
		return f, nil
	case err := <-r.errc:
		r.errc <- err
		return can.Frame{}, fmt.Errorf("receive: %w", err)
	case <-r.done:
		return can.Frame{}, net.ErrClosed
	}
}

func (r *SocketCANReader) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.conn.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
