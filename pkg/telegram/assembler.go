package telegram

import (
	"io"
	"sync/atomic"
	"time"
)

// Assembler groups a raw byte stream into lines. It is owned by a single
// goroutine; only the counters and the activity state may be read elsewhere.
type Assembler struct {
	buf [LineCapacity]byte
	n   int

	onLine     func(line string)
	onOverflow func()
	onActivity func(active bool)

	lines     atomic.Uint64
	overflows atomic.Uint64
	active    atomic.Bool
	lastByte  atomic.Int64
}

// NewAssembler calls onLine synchronously for every line terminator seen.
func NewAssembler(onLine func(line string)) *Assembler {
	return &Assembler{onLine: onLine}
}

// OnOverflow registers a hook fired after each overflow recovery.
func (a *Assembler) OnOverflow(fn func()) {
	a.onOverflow = fn
}

// OnActivity registers a hook fired when the source starts or stops delivering bytes.
func (a *Assembler) OnActivity(fn func(active bool)) {
	a.onActivity = fn
}

// Feed advances the assembler by one byte. It returns ErrLineOverflow when
// the byte did not fit; the partial line is then dropped and accumulation
// restarts with the next byte.
func (a *Assembler) Feed(b byte) error {
	switch b {
	case 0, '\r':
		return nil
	case '\n':
		line := string(a.buf[:a.n])
		a.n = 0
		a.lines.Add(1)
		if a.onLine != nil {
			a.onLine(line)
		}
		return nil
	}

	if a.n == LineCapacity-1 {
		a.n = 0
		a.overflows.Add(1)
		if a.onOverflow != nil {
			a.onOverflow()
		}
		return ErrLineOverflow
	}
	a.buf[a.n] = b
	a.n++
	return nil
}

// Write feeds p byte by byte. Overflows are recovered internally, so it never fails.
func (a *Assembler) Write(p []byte) (int, error) {
	for _, b := range p {
		_ = a.Feed(b)
	}
	return len(p), nil
}

// Drain performs a single read from r into buf and feeds whatever arrived.
// A read that yields no bytes marks the source idle.
func (a *Assembler) Drain(r io.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if n > 0 {
		a.lastByte.Store(time.Now().UnixNano())
		a.setActive(true)
		a.Write(buf[:n])
	} else {
		a.setActive(false)
	}
	return n, err
}

// pending is the length of the line currently being accumulated. Only the
// goroutine feeding the assembler may call it.
func (a *Assembler) pending() int {
	return a.n
}

func (a *Assembler) Activity() Activity {
	act := Activity{Active: a.active.Load()}
	if ns := a.lastByte.Load(); ns != 0 {
		act.LastByte = time.Unix(0, ns)
	}
	return act
}

func (a *Assembler) setActive(active bool) {
	if a.active.Swap(active) == active {
		return
	}
	if a.onActivity != nil {
		a.onActivity(active)
	}
}
