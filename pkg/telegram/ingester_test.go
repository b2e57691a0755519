package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
)

const sampleTelegram = "/KFM5KAIFA-METER\r\n" +
	"\r\n" +
	"1-3:0.2.8(42)\r\n" +
	"0-0:96.1.255*255(1KFM0200001234)\r\n" +
	"1-0:0.0.0*255(123456789)\r\n" +
	"1-0:1.8.0*255(001234.567*kWh)\r\n" +
	"1-0:2.8.0*255(000012.000*kWh)\r\n" +
	"1-0:21.7.0*255(000100*W)\r\n" +
	"1-0:41.7.0*255(000200*W)\r\n" +
	"1-0:61.7.0*255(000300*W)\r\n" +
	"1-0:1.7.0*255(000600*W)\r\n" +
	"1-0:96.5.5*255(02)\r\n" +
	"!\r\n"

func TestIngester_FullTelegram(t *testing.T) {
	s := metrics.NewSnapshot()
	i := NewIngester(s, nil)

	_, err := i.Write([]byte(sampleTelegram))
	require.NoError(t, err)

	assert.True(t, s.Ready())
	assert.Equal(t, 1234.567, s.Float(metrics.EnergyUsed))
	assert.Equal(t, 600.0, s.Float(metrics.PowerTotal))

	stats := i.Stats()
	assert.Equal(t, uint64(strings.Count(sampleTelegram, "\n")), stats.LinesCompleted)
	assert.Equal(t, uint64(9), stats.FieldsDecoded)
	assert.Equal(t, uint64(1), stats.Unknown)
	assert.Equal(t, uint64(3), stats.Malformed)
	assert.Equal(t, uint64(0), stats.Overflows)
}

func TestIngester_RecoversAfterGarbage(t *testing.T) {
	s := metrics.NewSnapshot()
	i := NewIngester(s, nil)

	garbage := strings.Repeat("\xfe", 3*LineCapacity)
	i.Write([]byte(garbage + "\n" + sampleTelegram))

	assert.True(t, s.Ready())
	assert.Equal(t, uint64(3), i.Stats().Overflows)
	assert.Equal(t, uint64(9), i.Stats().FieldsDecoded)
}
