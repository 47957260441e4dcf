// Package effects holds the master bus stages applied after voices are summed.
package effects

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessBuffer runs the chain over interleaved stereo samples in place.
func (c *Chain) ProcessBuffer(buf []float32) {
	if c == nil || len(c.effects) == 0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = c.Process(buf[i], buf[i+1])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

// Clipper hard-limits each sample to [-ceiling, ceiling].
type Clipper struct {
	Ceiling float32
}

func (c Clipper) Process(l, r float32) (float32, float32) {
	return clip(l, c.Ceiling), clip(r, c.Ceiling)
}

func (Clipper) Reset() {}

func clip(v, ceiling float32) float32 {
	if ceiling <= 0 {
		ceiling = 1
	}
	if v > ceiling {
		return ceiling
	}
	if v < -ceiling {
		return -ceiling
	}
	return v
}

// MasterBus is the shared dynamics stage: compressor then a unity clipper.
func MasterBus(sampleRate int) *Chain {
	return NewChain(
		NewCompressor(sampleRate, MasterBusParams()),
		Clipper{Ceiling: 1},
	)
}
