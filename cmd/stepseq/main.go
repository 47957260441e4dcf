package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/cbegin/stepseq-go"
	intlog "github.com/cbegin/stepseq-go/internal/log"
	"github.com/cbegin/stepseq-go/internal/visual"
)

// rulerFPS is how often the terminal checks the playing step. It must beat
// the fastest step rate or cycle starts are missed.
const rulerFPS = 120

// pairs collects repeated -flag key=value arguments.
type pairs map[string]string

func (p pairs) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k+"="+p[k])
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (p pairs) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected track=value, got %q", v)
	}
	p[strings.TrimSpace(k)] = strings.TrimSpace(val)
	return nil
}

func main() {
	samples := pairs{}
	rows := pairs{}
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		kitPath    = flag.String("kit", "", "path to a JSON kit file")
		tempo      = flag.Float64("tempo", 0, "tempo in BPM (overrides the kit)")
		seconds    = flag.Float64("seconds", 0, "stop after N seconds (0 = until interrupted; required with -out)")
		outPath    = flag.String("out", "", "render to this WAV file instead of the audio device")
		logLevel   = flag.String("log-level", "info", "debug|info|warn|error|none")
	)
	flag.Var(samples, "sample", "track=path sample to load (repeatable)")
	flag.Var(rows, "row", "track=pattern such as kick=x...x...x...x... (repeatable)")
	flag.Parse()

	logger := intlog.New(os.Stderr, intlog.LevelFromString(*logLevel))
	kit, err := buildKit(*kitPath, samples, rows, *tempo)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *outPath != "" {
		if *seconds <= 0 {
			log.Fatal("-seconds must be positive when rendering with -out")
		}
		if err := render(ctx, kit, *sampleRate, *seconds, *outPath, logger); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := play(ctx, kit, *sampleRate, *seconds, logger); err != nil {
		log.Fatal(err)
	}
}

func buildKit(path string, samples, rows pairs, tempo float64) (*stepseq.Kit, error) {
	kit := &stepseq.Kit{}
	if strings.TrimSpace(path) != "" {
		k, err := stepseq.LoadKit(path)
		if err != nil {
			return nil, err
		}
		kit = k
	}
	index := make(map[string]int, len(kit.Tracks))
	for i, tr := range kit.Tracks {
		id := strings.TrimSpace(tr.ID)
		kit.Tracks[i].ID = id
		index[id] = i
	}
	track := func(id string) *stepseq.KitTrack {
		if i, ok := index[id]; ok {
			return &kit.Tracks[i]
		}
		kit.Tracks = append(kit.Tracks, stepseq.KitTrack{ID: id})
		index[id] = len(kit.Tracks) - 1
		return &kit.Tracks[len(kit.Tracks)-1]
	}
	for id, p := range samples {
		track(id).Sample = p
	}
	for id, r := range rows {
		track(id).Row = r
	}
	if tempo != 0 {
		kit.Tempo = tempo
	}
	if len(kit.Tracks) == 0 {
		return nil, fmt.Errorf("nothing to play: pass -kit or -sample/-row")
	}
	return kit, kit.Validate()
}

func render(ctx context.Context, kit *stepseq.Kit, sampleRate int, seconds float64, path string, logger *intlog.Logger) error {
	samples, err := stepseq.RenderKit(ctx, kit, sampleRate, seconds, stepseq.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, stepseq.EncodeWAVFloat32LE(samples, sampleRate, 2), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%.2fs)\n", path, seconds)
	return nil
}

func play(ctx context.Context, kit *stepseq.Kit, sampleRate int, seconds float64, logger *intlog.Logger) error {
	halted := make(chan error, 1)
	e, err := stepseq.New(
		stepseq.WithSampleRate(sampleRate),
		stepseq.WithTracks(),
		stepseq.WithLogger(logger),
		stepseq.WithHaltHandler(func(err error) { halted <- err }),
	)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.ApplyKit(ctx, kit); err != nil {
		return err
	}
	if _, err := e.Toggle(); err != nil {
		return err
	}
	fmt.Printf("playing %d tracks at %.1f BPM (ctrl-c to stop)\n", len(e.Tracks()), e.Tempo())

	cycles := 0
	ruler := visual.NewRefresher(e.Latch(), func(step int, ok bool) {
		if ok && step == 0 {
			cycles++
			fmt.Printf("cycle %d\n", cycles)
		}
	})
	if err := ruler.Start(rulerFPS); err != nil {
		return err
	}
	defer ruler.Stop()

	var deadline <-chan time.Time
	if seconds > 0 {
		deadline = time.After(time.Duration(seconds * float64(time.Second)))
	}
	select {
	case err := <-halted:
		return err
	case <-deadline:
	case <-ctx.Done():
	}
	e.Stop()
	st := e.Stats()
	logger.Infof("dispatched %d requests over %d steps: %d missing, %d failed, %d late",
		st.Requests, st.Steps, st.Missing, st.Failed, st.Late)
	return nil
}
