package utils

import (
	"fmt"

	"go.einride.tech/can"
)

func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) ([]byte, uint32, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return nil, 0, err
	}
	if fd.DLC <= 0 || fd.DLC > 8 {
		return nil, 0, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}

	var payload uint64
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		payload = s.Encode(payload, v)
	}

	out := make([]byte, fd.DLC)
	for i := 0; i < fd.DLC; i++ {
		out[i] = byte((payload >> (8 * i)) & 0xFF)
	}
	return out, fd.ID, nil
}

// EncodeEinrideFrame produces a can.Frame ready to transmit.
func (m *CANMap) EncodeEinrideFrame(frameName string, values map[string]float64) (can.Frame, error) {
	payload, id, err := m.EncodeFrame(frameName, values)
	if err != nil {
		return can.Frame{}, err
	}

	var f can.Frame
	f.ID = id
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)
	return f, nil
}

func (m *CANMap) DecodeFrame(frameID uint32, data []byte) (map[string]float64, error) {
	fd, err := m.FrameByID(frameID)
	if err != nil {
		return nil, err
	}
	if len(data) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", frameID, fd.DLC, len(data))
	}

	var payload uint64
	for i := 0; i < fd.DLC && i < 8; i++ {
		payload |= uint64(data[i]) << (8 * i)
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		out[s.Name] = s.Decode(payload)
	}
	return out, nil
}

// DecodeEinrideFrame decodes a received can.Frame and returns the frame name with its signals.
func (m *CANMap) DecodeEinrideFrame(f can.Frame) (string, map[string]float64, error) {
	if f.IsRemote {
		return "", nil, fmt.Errorf("frame 0x%X: remote frames carry no data", f.ID)
	}
	values, err := m.DecodeFrame(f.ID, f.Data[:f.Length])
	if err != nil {
		return "", nil, err
	}
	return m.ByID[f.ID].Name, values, nil
}
