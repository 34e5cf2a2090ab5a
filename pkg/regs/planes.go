package regs

// VoltagePlane is a voltage domain addressable through the OC mailbox.
// The constant values are the mailbox plane indexes.
type VoltagePlane int

const (
	VoltageCore VoltagePlane = iota
	VoltageGPU
	VoltageCache
	VoltageUncore
	VoltageAnalogIO
)

// VoltagePlanes lists every voltage plane in mailbox index order.
var VoltagePlanes = []VoltagePlane{
	VoltageCore, VoltageGPU, VoltageCache, VoltageUncore, VoltageAnalogIO,
}

func (p VoltagePlane) String() string {
	switch p {
	case VoltageCore:
		return "CORE"
	case VoltageGPU:
		return "GPU"
	case VoltageCache:
		return "CACHE"
	case VoltageUncore:
		return "UNCORE"
	case VoltageAnalogIO:
		return "ANALOGIO"
	default:
		return "UNKNOWN"
	}
}

// CurrentPlane is a current domain addressable through the OC mailbox.
// Only a subset of the voltage planes carry a current limit.
type CurrentPlane int

const (
	CurrentCore CurrentPlane = iota
	CurrentGPU
	CurrentCache
)

// CurrentPlanes lists every current plane in mailbox index order.
var CurrentPlanes = []CurrentPlane{CurrentCore, CurrentGPU, CurrentCache}

func (p CurrentPlane) String() string {
	switch p {
	case CurrentCore:
		return "CORE"
	case CurrentGPU:
		return "GPU"
	case CurrentCache:
		return "CACHE"
	default:
		return "UNKNOWN"
	}
}
