package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"log"
	"math"
	"os"
	"sync"

	"github.com/cbegin/stepseq-go"
	intlog "github.com/cbegin/stepseq-go/internal/log"
	"github.com/cbegin/stepseq-go/internal/samplebank"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const (
	windowW      = 980
	windowH      = 520
	uiSampleRate = 48000

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	labelW  = 120
	padSize = 44
	padGap  = 6
	margin  = 16
)

var (
	bgColor        = color.RGBA{192, 192, 192, 255}
	panelColor     = color.RGBA{192, 192, 192, 255}
	borderColor    = color.RGBA{128, 128, 128, 255}
	bevelLight     = color.RGBA{255, 255, 255, 255}
	bevelDarker    = color.RGBA{64, 64, 64, 255}
	sunkenBgColor  = color.RGBA{24, 24, 32, 255}
	padOffColor    = color.RGBA{60, 60, 72, 255}
	padOnColor     = color.RGBA{0, 0, 128, 255}
	padHitColor    = color.RGBA{255, 200, 0, 255}
	beatMarkColor  = color.RGBA{90, 90, 104, 255}
	rulerIdleColor = color.RGBA{80, 80, 80, 255}
	rulerLitColor  = color.RGBA{255, 64, 32, 255}
	meterColor     = color.RGBA{0, 160, 64, 255}
)

// meter keeps the peak of the most recent mixed block.
type meter struct {
	mu   sync.Mutex
	peak float32
}

// Tap is called from the audio thread.
func (m *meter) Tap(samples []float32) {
	var p float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > p {
			p = s
		}
	}
	m.mu.Lock()
	if p > m.peak {
		m.peak = p
	}
	m.mu.Unlock()
}

// Take returns the peak since the last call and resets it.
func (m *meter) Take() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.peak
	m.peak = 0
	return p
}

type game struct {
	engine   *stepseq.Engine
	logger   *intlog.Logger
	meter    *meter
	halted   chan error
	loadErrs chan error

	level     float64
	status    string
	textCache map[string]*ebiten.Image
}

func newGame(kit *stepseq.Kit) (*game, error) {
	g := &game{
		logger:    intlog.New(os.Stderr, intlog.LevelInfo),
		meter:     &meter{},
		halted:    make(chan error, 1),
		loadErrs:  make(chan error, 8),
		status:    "Space: play/stop  Up/Down: tempo  Click pads, drop samples on rows",
		textCache: make(map[string]*ebiten.Image, 128),
	}
	opts := []stepseq.Option{
		stepseq.WithSampleRate(uiSampleRate),
		stepseq.WithLogger(g.logger),
		stepseq.WithSampleTap(g.meter.Tap),
		stepseq.WithHaltHandler(func(err error) {
			select {
			case g.halted <- err:
			default:
			}
		}),
		stepseq.WithLoadErrorHandler(func(track string, err error) {
			select {
			case g.loadErrs <- err:
			default:
			}
		}),
	}
	if kit != nil {
		opts = append(opts, stepseq.WithTracks())
	}
	e, err := stepseq.New(opts...)
	if err != nil {
		return nil, err
	}
	if kit != nil {
		if err := e.ApplyKit(context.Background(), kit); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	g.engine = e
	return g, nil
}

func (g *game) Close() { _ = g.engine.Close() }

func (g *game) Update() error {
	select {
	case err := <-g.halted:
		g.status = "Stopped: " + err.Error()
	default:
	}
	select {
	case err := <-g.loadErrs:
		g.status = err.Error()
	default:
	}
	g.handleKeys()
	g.handleMouse()
	g.handleDrops()

	peak := float64(g.meter.Take())
	g.level = math.Max(peak, g.level*0.9)
	return nil
}

func (g *game) handleKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.togglePlay()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		g.nudgeTempo(1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		g.nudgeTempo(-1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyD) {
		if g.logger.Level() == intlog.LevelDebug {
			g.logger.SetLevel(intlog.LevelInfo)
		} else {
			g.logger.SetLevel(intlog.LevelDebug)
		}
		g.status = "Log level " + g.logger.Level().String()
	}
}

// handleDrops loads the first dropped file into the track row under the
// cursor. Playback keeps running; the sample is heard on the next pass.
func (g *game) handleDrops() {
	files := ebiten.DroppedFiles()
	if files == nil {
		return
	}
	mx, my := ebiten.CursorPosition()
	track, ok := g.trackAt(mx, my)
	if !ok {
		g.status = "Drop a sample onto a track row"
		return
	}
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		g.status = err.Error()
		return
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		format, err := samplebank.FormatFromPath(ent.Name())
		if err != nil {
			g.status = err.Error()
			return
		}
		f, err := files.Open(ent.Name())
		if err != nil {
			g.status = err.Error()
			return
		}
		g.engine.LoadSampleReaderAsync(context.Background(), track, f, format)
		g.status = fmt.Sprintf("Loading %s into %s", ent.Name(), track)
		return
	}
}

// trackAt maps a point to the track row it falls on.
func (g *game) trackAt(x, y int) (string, bool) {
	grid := g.layoutRects().grid
	if !pointInRect(x, y, grid) {
		return "", false
	}
	row := (y - grid.Min.Y) / (padSize + padGap)
	tracks := g.engine.Tracks()
	if row < 0 || row >= len(tracks) {
		return "", false
	}
	return tracks[row], true
}

func (g *game) handleMouse() {
	if !inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		return
	}
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()
	switch {
	case pointInRect(mx, my, l.play):
		g.togglePlay()
		return
	case pointInRect(mx, my, l.slower):
		g.nudgeTempo(-5)
		return
	case pointInRect(mx, my, l.faster):
		g.nudgeTempo(5)
		return
	}
	for i, track := range g.engine.Tracks() {
		for step := 0; step < stepseq.Steps; step++ {
			if pointInRect(mx, my, padRect(l.grid, i, step)) {
				if _, err := g.engine.ToggleStep(track, step); err != nil {
					g.status = err.Error()
				}
				return
			}
		}
	}
}

func (g *game) togglePlay() {
	playing, err := g.engine.Toggle()
	switch {
	case err != nil:
		g.status = err.Error()
	case playing:
		g.status = "Playing"
	default:
		g.status = "Stopped"
	}
}

func (g *game) nudgeTempo(delta float64) {
	if _, err := g.engine.SetTempo(g.engine.Tempo() + delta); err != nil {
		g.status = err.Error()
	}
}

type uiLayout struct {
	ruler  image.Rectangle
	grid   image.Rectangle
	play   image.Rectangle
	slower image.Rectangle
	faster image.Rectangle
	meter  image.Rectangle
	status image.Rectangle
	stats  image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	gridW := labelW + stepseq.Steps*(padSize+padGap)
	rows := max(1, len(g.engine.Tracks()))
	top := margin + lineH + 8
	ruler := image.Rect(margin, top, margin+gridW, top+16)
	grid := image.Rect(margin, ruler.Max.Y+8, margin+gridW, ruler.Max.Y+8+rows*(padSize+padGap))
	controlsY := grid.Max.Y + 12
	play := image.Rect(margin, controlsY, margin+120, controlsY+40)
	slower := image.Rect(play.Max.X+12, controlsY, play.Max.X+52, controlsY+40)
	faster := image.Rect(slower.Max.X+160, controlsY, slower.Max.X+200, controlsY+40)
	meterR := image.Rect(faster.Max.X+24, controlsY+12, margin+gridW, controlsY+28)
	status := image.Rect(margin, controlsY+52, margin+gridW, controlsY+52+lineH+8)
	stats := image.Rect(margin, status.Max.Y+8, margin+gridW, status.Max.Y+8+lineH)
	return uiLayout{ruler: ruler, grid: grid, play: play, slower: slower, faster: faster, meter: meterR, status: status, stats: stats}
}

// padRect returns the pad for a track row and step within the grid area.
func padRect(grid image.Rectangle, row, step int) image.Rectangle {
	x := grid.Min.X + labelW + step*(padSize+padGap)
	y := grid.Min.Y + row*(padSize+padGap)
	return image.Rect(x, y, x+padSize, y+padSize)
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	l := g.layoutRects()
	current, playing := g.engine.CurrentStep()

	g.drawText(screen, "stepseq", margin, margin)

	for step := 0; step < stepseq.Steps; step++ {
		r := padRect(l.grid, 0, step)
		c := rulerIdleColor
		if playing && step == current {
			c = rulerLitColor
		}
		ebitenutil.DrawRect(screen, float64(r.Min.X+padSize/2-6), float64(l.ruler.Min.Y), 12, 12, c)
	}

	for i, track := range g.engine.Tracks() {
		y := l.grid.Min.Y + i*(padSize+padGap)
		label := track
		if !g.engine.SampleLoaded(track) {
			label += "?"
		}
		g.drawText(screen, shortenEnd(label, labelW/charW), l.grid.Min.X, y+(padSize-lineH)/2)
		for step := 0; step < stepseq.Steps; step++ {
			r := padRect(l.grid, i, step)
			fill := padOffColor
			if step%4 == 0 {
				fill = beatMarkColor
			}
			if g.engine.Armed(track, step) {
				fill = padOnColor
				if playing && step == current {
					fill = padHitColor
				}
			}
			ebitenutil.DrawRect(screen, float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), fill)
			drawSunkenBorder(screen, r)
		}
	}

	g.drawButton(screen, l.play, g.playButtonLabel())
	g.drawButton(screen, l.slower, "-")
	g.drawButton(screen, l.faster, "+")
	g.drawText(screen, fmt.Sprintf("%6.1f BPM", g.engine.Tempo()), l.slower.Max.X+8, l.slower.Min.Y+(l.slower.Dy()-lineH)/2)
	g.drawMeter(screen, l.meter)

	g.drawSunkenPanel(screen, l.status)
	g.drawText(screen, shortenEnd(g.status, l.status.Dx()/charW-1), l.status.Min.X+6, l.status.Min.Y+4)

	st := g.engine.Stats()
	g.drawText(screen, fmt.Sprintf("steps %d  hits %d  missing %d  late %d", st.Steps, st.Requests, st.Missing, st.Late), l.stats.Min.X, l.stats.Min.Y)
}

func (g *game) drawMeter(screen *ebiten.Image, rect image.Rectangle) {
	g.drawSunkenPanel(screen, rect)
	w := int(clamp(g.level, 0, 1) * float64(rect.Dx()-4))
	if w > 0 {
		ebitenutil.DrawRect(screen, float64(rect.Min.X+2), float64(rect.Min.Y+2), float64(w), float64(rect.Dy()-4), meterColor)
	}
}

func (g *game) playButtonLabel() string {
	if g.engine.Running() {
		return "Stop"
	}
	return "Play"
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	return outsideW, outsideH
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
	w := len([]rune(label)) * charW
	g.drawText(screen, label, rect.Min.X+(rect.Dx()-w)/2, rect.Min.Y+(rect.Dy()-lineH)/2)
}

// drawBorder draws a raised bevel.
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

// drawSunkenBorder draws a sunken bevel.
func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		img = ebiten.NewImage(max(1, len([]rune(msg))*7), 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 1000 {
			g.textCache = make(map[string]*ebiten.Image, 128)
		}
		g.textCache[msg] = img
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if maxChars <= 0 || len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:maxChars])
	}
	return string(r[:maxChars-3]) + "..."
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

func main() {
	var kit *stepseq.Kit
	if len(os.Args) > 1 {
		k, err := stepseq.LoadKit(os.Args[1])
		if err != nil {
			log.Fatal(err)
		}
		kit = k
	}

	g, err := newGame(kit)
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowTitle("stepseq-go")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
