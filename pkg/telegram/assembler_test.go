package telegram

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect() (*Assembler, *[]string) {
	var lines []string
	a := NewAssembler(func(line string) { lines = append(lines, line) })
	return a, &lines
}

func TestAssembler_SplitsLines(t *testing.T) {
	a, lines := collect()

	_, err := a.Write([]byte("1-0:1.8.0*255(1*kWh)\r\n\x00\x00/HEADER\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"1-0:1.8.0*255(1*kWh)", "/HEADER", ""}, *lines)
	assert.Equal(t, 0, a.pending())
}

func TestAssembler_LineSpanningWrites(t *testing.T) {
	a, lines := collect()

	a.Write([]byte("1-0:1.7"))
	assert.Empty(t, *lines)
	assert.Equal(t, 7, a.pending())

	a.Write([]byte(".0*255(00.5*kW)\n"))
	assert.Equal(t, []string{"1-0:1.7.0*255(00.5*kW)"}, *lines)
}

func TestAssembler_LineEventsMatchNewlines(t *testing.T) {
	inputs := []string{
		"",
		"\n",
		"a\nb\nc",
		strings.Repeat("x", 200) + "\n" + "short\n",
		strings.Repeat("y", 63) + "\n" + strings.Repeat("z", 64) + "\n",
		"\r\r\x00\n\n\n",
	}
	for _, in := range inputs {
		a, lines := collect()
		a.Write([]byte(in))
		assert.Equal(t, strings.Count(in, "\n"), len(*lines), "input %q", in)
	}
}

func TestAssembler_MaxLineFits(t *testing.T) {
	a, lines := collect()
	line := strings.Repeat("a", LineCapacity-1)

	for i := 0; i < len(line); i++ {
		require.NoError(t, a.Feed(line[i]))
	}
	require.NoError(t, a.Feed('\n'))

	assert.Equal(t, []string{line}, *lines)
	assert.Equal(t, uint64(0), a.overflows.Load())
}

func TestAssembler_OverflowRecovery(t *testing.T) {
	a, lines := collect()
	overflows := 0
	a.OnOverflow(func() { overflows++ })

	long := strings.Repeat("a", LineCapacity-1) + "XYZ"
	var errs []error
	for i := 0; i < len(long); i++ {
		if err := a.Feed(long[i]); err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrLineOverflow)
	assert.Equal(t, 1, overflows)

	a.Feed('\n')
	a.Write([]byte("next(1)\n"))

	// The overflowed prefix is gone; only the tail after the overflow byte remains.
	assert.Equal(t, []string{"YZ", "next(1)"}, *lines)
	assert.Equal(t, uint64(1), a.overflows.Load())
	assert.Equal(t, uint64(2), a.lines.Load())
}

type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestAssembler_DrainReportsActivity(t *testing.T) {
	a, lines := collect()
	var transitions []bool
	a.OnActivity(func(active bool) { transitions = append(transitions, active) })

	r := &chunkReader{chunks: [][]byte{[]byte("a(1)\n"), []byte("b(2)\n"), {}}}
	buf := make([]byte, 16)

	n, err := a.Drain(r, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, a.Activity().Active)
	assert.False(t, a.Activity().LastByte.IsZero())

	a.Drain(r, buf)
	a.Drain(r, buf)
	_, err = a.Drain(r, buf)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []bool{true, false}, transitions)
	assert.False(t, a.Activity().Active)
	assert.Equal(t, []string{"a(1)", "b(2)"}, *lines)
}

func TestAssembler_CopyFromReader(t *testing.T) {
	a, lines := collect()

	n, err := io.Copy(a, bytes.NewReader([]byte("x(1)\ny(2)\n")))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Len(t, *lines, 2)
}
