package chat

import "time"

// StreamSpeed is how fast a finished answer is typed out in the transcript.
// The answer itself arrives in one piece; only the display is progressive.
type StreamSpeed int

const (
	StreamInstant StreamSpeed = iota
	StreamFast
	StreamNormal
)

var speedNames = [...]string{StreamInstant: "instant", StreamFast: "fast", StreamNormal: "normal"}

func (s StreamSpeed) String() string {
	if s < 0 || int(s) >= len(speedNames) {
		return "unknown"
	}
	return speedNames[s]
}

// next is the /speed toggle order: normal, fast, instant, normal.
func (s StreamSpeed) next() StreamSpeed {
	if s == StreamInstant {
		return StreamNormal
	}
	return s - 1
}

// StreamConfig reveals ChunkSize runes every TickRate. A zero ChunkSize
// shows the whole answer at once.
type StreamConfig struct {
	Speed     StreamSpeed
	ChunkSize int
	TickRate  time.Duration
}

const frame = 16 * time.Millisecond

// StreamConfigForSpeed returns the preset for s; unknown speeds get normal.
func StreamConfigForSpeed(s StreamSpeed) StreamConfig {
	switch s {
	case StreamInstant:
		return StreamConfig{Speed: s}
	case StreamFast:
		return StreamConfig{Speed: s, ChunkSize: 32, TickRate: frame}
	}
	return StreamConfig{Speed: StreamNormal, ChunkSize: 8, TickRate: frame}
}

// reveal returns the new cursor into buf and whether it reached the end.
func (c StreamConfig) reveal(buf []rune, pos int) (int, bool) {
	if c.ChunkSize > 0 && pos+c.ChunkSize < len(buf) {
		return pos + c.ChunkSize, false
	}
	return len(buf), true
}
