package utils

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type SocketCANWriter struct {
	mu   sync.Mutex
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

// WriteFrame is called from the control task and the safety task, so writes are serialized.
func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// FramePublisher encodes named frames from a CANMap and writes them to a CANWriter.
type FramePublisher struct {
	cmap   *CANMap
	writer CANWriter
}

func NewFramePublisher(cmap *CANMap, writer CANWriter) *FramePublisher {
	return &FramePublisher{cmap: cmap, writer: writer}
}

func (p *FramePublisher) Publish(ctx context.Context, frameName string, values map[string]float64) error {
	frame, err := p.cmap.EncodeEinrideFrame(frameName, values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frameName, err)
	}
	if err := p.writer.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("transmit %s: %w", frameName, err)
	}
	return nil
}
