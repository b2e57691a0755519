package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
	"github.com/NotCoffee418/smartmeter_exporter/pkg/telegram"
)

type fakeSolar struct {
	configured bool
	power      int32
	err        error
}

func (f *fakeSolar) IsConfigured() bool { return f.configured }
func (f *fakeSolar) ReadPower(context.Context) (int32, error) {
	return f.power, f.err
}

func newTestServer(t *testing.T, solar SolarReader) (*Server, *metrics.Snapshot, *telegram.Ingester, *httptest.Server) {
	t.Helper()
	snapshot := metrics.NewSnapshot()
	ingester := telegram.NewIngester(snapshot, nil)
	srv := NewServer(Options{
		Hostname:          "smartmeter-test",
		BroadcastInterval: 20 * time.Millisecond,
		KeepaliveInterval: 20 * time.Millisecond,
	}, snapshot, ingester, solar, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, snapshot, ingester, ts
}

func feed(t *testing.T, i *telegram.Ingester, lines ...string) {
	t.Helper()
	_, err := i.Write([]byte(strings.Join(lines, "\r\n") + "\r\n"))
	require.NoError(t, err)
}

func TestMetrics_NoContentBeforeFirstTelegram(t *testing.T) {
	_, _, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, body)
}

func TestMetrics_Document(t *testing.T) {
	_, _, ingester, ts := newTestServer(t, nil)
	feed(t, ingester,
		"0-0:96.1.255*255(SN42)",
		"1-0:1.8.0*255(001234.567*kWh)",
		"1-0:96.5.5*255(02)",
	)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `smartmeter_total_energy_used{sn="SN42"} 1234.567`)
	assert.Contains(t, string(body), `smartmeter_status_code{sn="SN42"} 2`)
}

func TestLatest(t *testing.T) {
	_, _, ingester, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	feed(t, ingester, "0-0:96.1.255*255(SN42)", "1-0:1.7.0*255(000321*W)")

	resp, err = http.Get(ts.URL + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reading metrics.Reading
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reading))
	assert.Equal(t, "SN42", reading.SerialNumber)
	assert.Equal(t, 321.0, reading.PowerTotalW)
}

func TestStatus(t *testing.T) {
	_, _, ingester, ts := newTestServer(t, nil)
	feed(t, ingester, "0-0:96.1.255*255(SN42)", "garbage", "9-9:9.9.9*255(1)")

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "smartmeter-test", status.Hostname)
	assert.True(t, status.Ready)
	assert.NotNil(t, status.Updated)
	assert.Equal(t, uint64(3), status.Stats.LinesCompleted)
	assert.Equal(t, uint64(1), status.Stats.FieldsDecoded)
	assert.Equal(t, uint64(1), status.Stats.Malformed)
	assert.Equal(t, uint64(1), status.Stats.Unknown)

	resp404, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp404.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)
}

func TestSolar(t *testing.T) {
	tests := map[string]struct {
		solar  SolarReader
		status int
	}{
		"disabled":       {solar: nil, status: http.StatusServiceUnavailable},
		"not configured": {solar: &fakeSolar{}, status: http.StatusServiceUnavailable},
		"read failure":   {solar: &fakeSolar{configured: true, err: errors.New("timeout")}, status: http.StatusInternalServerError},
		"ok":             {solar: &fakeSolar{configured: true, power: 1800}, status: http.StatusOK},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, _, ts := newTestServer(t, tc.solar)

			resp, err := http.Get(ts.URL + "/solar")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			if tc.status == http.StatusOK {
				var body map[string]int32
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, int32(1800), body["currentProduction"])
			}
		})
	}
}

func TestWebSocket_InitialAndBroadcast(t *testing.T) {
	srv, snapshot, ingester, ts := newTestServer(t, nil)
	feed(t, ingester, "0-0:96.1.255*255(SN42)", "1-0:1.7.0*255(000100*W)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.RunBroadcast(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	first := metrics.ReadingFromJsonBytes(msg)
	require.NotNil(t, first)
	assert.Equal(t, 100.0, first.PowerTotalW)

	require.NoError(t, snapshot.SetFloat(metrics.PowerTotal, 200))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		if r := metrics.ReadingFromJsonBytes(msg); r != nil && r.PowerTotalW == 200 {
			break
		}
	}

	conn.Close()
	assert.Eventually(t, func() bool { return srv.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_KeepaliveBeforeReady(t *testing.T) {
	srv, snapshot, _, ts := newTestServer(t, nil)
	require.False(t, snapshot.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.RunBroadcast(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	pings := make(chan struct{}, 16)
	conn.SetPingHandler(func(string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return nil
	})
	data := make(chan []byte, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			data <- msg
		}
	}()

	for range 2 {
		select {
		case <-pings:
		case msg := <-data:
			t.Fatalf("unexpected data before first telegram: %s", msg)
		case <-time.After(2 * time.Second):
			t.Fatal("no keepalive ping received")
		}
	}
	assert.Equal(t, 1, srv.hub.Len())
}
