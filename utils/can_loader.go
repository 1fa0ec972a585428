package utils

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

//go:embed can_map.csv
var defaultCANMap string

// LoadCANMap reads a signal map from csvPath. An empty path selects the built-in map.
func LoadCANMap(csvPath string) (*CANMap, error) {
	if csvPath == "" {
		return ParseCANMap(strings.NewReader(defaultCANMap))
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCANMap(f)
}

func ParseCANMap(src io.Reader) (*CANMap, error) {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	req := []string{
		"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
		"signal_name", "start_bit", "bit_length", "signed",
		"factor", "offset", "min", "max", "default",
	}
	for _, k := range req {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can map missing required column: %q", k)
		}
	}
	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	m := &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		frameID, err := parseHexOrDecUint32(col(rec, "frame_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid frame_id %q: %w", col(rec, "frame_id"), err)
		}

		frameName := col(rec, "frame_name")
		dlc := mustInt(col(rec, "dlc"))

		sig := SignalDef{
			Name:      col(rec, "signal_name"),
			StartBit:  mustInt(col(rec, "start_bit")),
			BitLength: mustInt(col(rec, "bit_length")),
			Signed:    mustBool(col(rec, "signed")),
			Factor:    mustFloat(col(rec, "factor")),
			Offset:    mustFloat(col(rec, "offset")),
			Min:       mustFloat(col(rec, "min")),
			Max:       mustFloat(col(rec, "max")),
			Default:   mustFloat(col(rec, "default")),
			Unit:      col(rec, "unit"),
		}

		if sig.BitLength <= 0 || sig.BitLength > 64 {
			return nil, fmt.Errorf("frame %s signal %s: invalid bit_length %d", frameName, sig.Name, sig.BitLength)
		}
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", frameName, frameID, dlc)
		}
		if sig.StartBit < 0 || sig.StartBit+sig.BitLength > dlc*8 {
			return nil, fmt.Errorf("frame %s signal %s: bits %d..%d exceed dlc %d",
				frameName, sig.Name, sig.StartBit, sig.StartBit+sig.BitLength-1, dlc)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("frame %s signal %s: factor must not be zero", frameName, sig.Name)
		}

		fd, ok := m.ByID[frameID]
		if !ok {
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				DLC:       dlc,
				Direction: col(rec, "direction"),
				CycleMS:   mustInt(col(rec, "cycle_ms")),
			}
			m.ByID[frameID] = fd
			m.ByName[frameName] = fd
		}

		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}

		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}

	return m, nil
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

// Require fails unless every named frame is present.
func (m *CANMap) Require(names ...string) error {
	for _, n := range names {
		if _, err := m.FrameByName(n); err != nil {
			return err
		}
	}
	return nil
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

func mustInt(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func mustBool(s string) bool {
	ss := strings.TrimSpace(strings.ToLower(s))
	return ss == "true" || ss == "1" || ss == "yes"
}
