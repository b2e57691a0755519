package metrics

// Field identifies one slot of the snapshot.
type Field uint8

const (
	EnergyUsed Field = iota
	EnergyProduced
	PowerPhase1
	PowerPhase2
	PowerPhase3
	PowerTotal
	StatusCode
	SerialNumber
	CustomerNumber
)

// Number of float slots; float fields occupy the first indices.
const floatFieldCount = int(PowerTotal) + 1

// Kind is the value type stored in a field.
type Kind uint8

const (
	KindText Kind = iota
	KindFloat
	KindUint8
)

func (f Field) Kind() Kind {
	switch {
	case f <= PowerTotal:
		return KindFloat
	case f == StatusCode:
		return KindUint8
	default:
		return KindText
	}
}

func (f Field) String() string {
	switch f {
	case EnergyUsed:
		return "energy_used"
	case EnergyProduced:
		return "energy_produced"
	case PowerPhase1:
		return "power_phase_1"
	case PowerPhase2:
		return "power_phase_2"
	case PowerPhase3:
		return "power_phase_3"
	case PowerTotal:
		return "power_total"
	case StatusCode:
		return "status_code"
	case SerialNumber:
		return "serial_number"
	case CustomerNumber:
		return "customer_number"
	}
	return "unknown"
}

// Reading is a point-in-time copy of the snapshot, used for the JSON views.
type Reading struct {
	Timestamp      string `json:"timestamp"`
	SerialNumber   string `json:"serial_number"`
	CustomerNumber string `json:"customer_number"`

	// Totals
	EnergyUsedKWH     float64 `json:"energy_used_kwh"`
	EnergyProducedKWH float64 `json:"energy_produced_kwh"`

	// Current power
	PowerPhase1W float64 `json:"power_phase_1_w"`
	PowerPhase2W float64 `json:"power_phase_2_w"`
	PowerPhase3W float64 `json:"power_phase_3_w"`
	PowerTotalW  float64 `json:"power_total_w"`

	StatusCode uint8 `json:"status_code"`
}
