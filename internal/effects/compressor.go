package effects

import "math"

// CompressorParams configures a Compressor. Times are in milliseconds, levels in dB.
type CompressorParams struct {
	ThresholdDB float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
	MakeupDB    float64
}

// MasterBusParams is the shared limiting stage every voice passes through
// before output.
func MasterBusParams() CompressorParams {
	return CompressorParams{
		ThresholdDB: -20,
		Ratio:       12,
		AttackMs:    3,
		ReleaseMs:   250,
		MakeupDB:    0,
	}
}

// Compressor is a feed-forward stereo-linked compressor: one envelope follows
// the louder channel and the same gain is applied to both, so the image does
// not shift under reduction.
type Compressor struct {
	threshold float32
	ratio     float32
	attack    float32 // coefficient
	release   float32 // coefficient
	makeup    float32
	env       float32
}

func NewCompressor(sampleRate int, p CompressorParams) *Compressor {
	sr := float64(sampleRate)
	ratio := p.Ratio
	if ratio < 1 {
		ratio = 1
	}
	return &Compressor{
		threshold: float32(dbToLinear(p.ThresholdDB)),
		ratio:     float32(ratio),
		attack:    smoothing(p.AttackMs, sr),
		release:   smoothing(p.ReleaseMs, sr),
		makeup:    float32(dbToLinear(p.MakeupDB)),
	}
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }

func smoothing(ms, sr float64) float32 {
	if ms <= 0 || sr <= 0 {
		return 1
	}
	return float32(1.0 - math.Exp(-1.0/(ms*sr/1000.0)))
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	peak := float32(math.Max(math.Abs(float64(l)), math.Abs(float64(r))))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	g := c.gain(c.env) * c.makeup
	return l * g, r * g
}

func (c *Compressor) gain(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	over := env / c.threshold
	return float32(math.Pow(float64(over), float64(1/c.ratio-1)))
}

// GainReduction reports the current reduction in dB (0 when idle, negative when compressing).
func (c *Compressor) GainReduction() float64 {
	g := c.gain(c.env)
	return 20 * math.Log10(float64(g))
}

func (c *Compressor) Reset() {
	c.env = 0
}
