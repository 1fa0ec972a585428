package sensors

import "quad-flight-core/utils"

// OpticalFlow is the reading of the downward optical-flow and range sensor. Distances are in
// millimetres, velocities in mm/s. It is accepted and reported, but no controller uses it yet.
type OpticalFlow struct {
	Online   bool
	Valid    bool
	HeightMM float64
	Quality  uint8 // percent
	VelX     float64
	VelY     float64
}

// FlowTimeoutMS is how long a flow reading stays current.
const FlowTimeoutMS = 200

// FlowCurrent reports whether a reading taken at stamp is still online at now.
func FlowCurrent(f OpticalFlow, stamp, now uint32, ok bool) bool {
	return ok && f.Online && utils.Elapsed(stamp, now) <= FlowTimeoutMS
}
