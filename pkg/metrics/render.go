package metrics

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const ContentType = "text/plain; charset=utf-8"

// Render produces the exposition document for the current values.
// Returns ErrNoContent until a serial number has been decoded.
func (s *Snapshot) Render() ([]byte, error) {
	if !s.Ready() {
		return nil, ErrNoContent
	}

	var buf bytes.Buffer
	for i, mf := range s.families() {
		if i > 0 {
			buf.WriteByte('\n')
		}
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("render %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// families lists the exported metric families in document order.
func (s *Snapshot) families() []*dto.MetricFamily {
	// Serial numbers come straight off the wire; keep the label parseable.
	sn := strings.ToValidUTF8(s.Text(SerialNumber), "\uFFFD")

	perPhase := make([]*dto.Metric, 0, 3)
	for i, f := range []Field{PowerPhase1, PowerPhase2, PowerPhase3} {
		perPhase = append(perPhase, gauge(s.Float(f), sn, strconv.Itoa(i+1)))
	}

	return []*dto.MetricFamily{
		family("smartmeter_total_energy_used", "The total energy used in kWh.", dto.MetricType_COUNTER,
			counter(s.Float(EnergyUsed), sn)),
		family("smartmeter_total_energy_produced", "The total energy produced in kWh.", dto.MetricType_COUNTER,
			counter(s.Float(EnergyProduced), sn)),
		family("smartmeter_power_per_phase", "The current power per phase in W.", dto.MetricType_GAUGE,
			perPhase...),
		family("smartmeter_power_all_phases", "The current power on all phases in W.", dto.MetricType_GAUGE,
			gauge(s.Float(PowerTotal), sn, "")),
		family("smartmeter_status_code", "The current status of the smartmeter.", dto.MetricType_GAUGE,
			gauge(float64(s.StatusCode()), sn, "")),
	}
}

func family(name, help string, typ dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: metrics,
	}
}

func counter(v float64, sn string) *dto.Metric {
	return &dto.Metric{
		Label:   labels(sn, ""),
		Counter: &dto.Counter{Value: proto.Float64(v)},
	}
}

func gauge(v float64, sn, phase string) *dto.Metric {
	return &dto.Metric{
		Label: labels(sn, phase),
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

// sn always comes first; phase only on the per-phase family.
func labels(sn, phase string) []*dto.LabelPair {
	pairs := []*dto.LabelPair{{Name: proto.String("sn"), Value: proto.String(sn)}}
	if phase != "" {
		pairs = append(pairs, &dto.LabelPair{Name: proto.String("phase"), Value: proto.String(phase)})
	}
	return pairs
}
