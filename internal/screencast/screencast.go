// Package screencast records a low-rate companion video of a recorded tab and
// lines the session's actions up against it.
package screencast

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/gifgen"
	"github.com/v0xg/sessionrec/internal/overlay"
)

// Grabber captures the current viewport
type Grabber interface {
	CaptureFrame(ctx context.Context) (image.Image, error)
}

// Frame is a captured image and its offset from the start of the video
type Frame struct {
	Image  image.Image
	Offset time.Duration
}

// Video is the result of a recording
type Video struct {
	Start  time.Time
	FPS    int
	Frames []Frame
}

// Options configures a Recorder
type Options struct {
	FPS    int // frames per second, default 5
	Clock  clockwork.Clock
	Logger *zap.Logger
}

// Recorder grabs frames at a fixed rate until stopped
type Recorder struct {
	grabber Grabber
	clock   clockwork.Clock
	logger  *zap.Logger
	fps     int
	start   time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	frames []Frame
}

// Start begins grabbing frames. The first frame is taken immediately.
func Start(ctx context.Context, g Grabber, opts Options) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = 5
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Recorder{
		grabber: g,
		clock:   opts.Clock,
		logger:  opts.Logger,
		fps:     opts.FPS,
		start:   opts.Clock.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go r.loop(ctx)
	return r
}

func (r *Recorder) interval() time.Duration {
	return time.Second / time.Duration(r.fps)
}

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)

	r.grab(ctx)
	timer := r.clock.NewTimer(r.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			r.grab(ctx)
			timer.Reset(r.interval())
		}
	}
}

// grab skips the tick on failure; a missing frame only stretches the previous one
func (r *Recorder) grab(ctx context.Context) {
	offset := r.clock.Since(r.start)
	img, err := r.grabber.CaptureFrame(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Debug("frame capture failed", zap.Error(err))
		}
		return
	}
	r.mu.Lock()
	r.frames = append(r.frames, Frame{Image: img, Offset: offset})
	r.mu.Unlock()
}

// Len returns the number of frames captured so far
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Stop ends the recording and returns the video. It is safe to call more than once.
func (r *Recorder) Stop() Video {
	r.cancel()
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	frames := make([]Frame, len(r.frames))
	copy(frames, r.frames)
	return Video{Start: r.start, FPS: r.fps, Frames: frames}
}

// Mark positions one action in the video
type Mark struct {
	Action        int         `json:"action"` // index into the session's actions
	Kind          action.Kind `json:"kind"`
	VideoOffsetMs int64       `json:"videoOffsetMs"`
	Frame         int         `json:"frame"`
}

// Correlate maps every action to its offset into v and the frame on screen at
// that moment. Actions stamped before the video started sit at offset 0.
func Correlate(v Video, actions []action.Record) []Mark {
	marks := make([]Mark, 0, len(actions))
	for i, rec := range actions {
		offset := rec.Timestamp.Sub(v.Start)
		if offset < 0 {
			offset = 0
		}
		marks = append(marks, Mark{
			Action:        i,
			Kind:          rec.Kind,
			VideoOffsetMs: offset.Milliseconds(),
			Frame:         frameAt(v.Frames, offset),
		})
	}
	return marks
}

// frameAt returns the last frame captured at or before offset
func frameAt(frames []Frame, offset time.Duration) int {
	idx := 0
	for i, f := range frames {
		if f.Offset > offset {
			break
		}
		idx = i
	}
	return idx
}

// Render turns v into GIF frames with the actions drawn on top. viewportWidth
// is the page width in CSS pixels, used to scale target boxes onto frames.
func Render(v Video, actions []action.Record, viewportWidth int) []gifgen.Frame {
	if len(v.Frames) == 0 {
		return nil
	}

	scale := 1.0
	if viewportWidth > 0 {
		scale = float64(v.Frames[0].Image.Bounds().Dx()) / float64(viewportWidth)
	}

	var keys []overlay.Keyframe
	for _, m := range Correlate(v, actions) {
		marker, ok := overlay.ForRecord(actions[m.Action], scale)
		if !ok {
			continue
		}
		keys = append(keys, overlay.Keyframe{Frame: m.Frame, Marker: marker})
	}
	markers := overlay.Interpolate(keys, len(v.Frames))

	last := time.Second / time.Duration(max(v.FPS, 1))
	out := make([]gifgen.Frame, len(v.Frames))
	for i, f := range v.Frames {
		delay := last
		if i+1 < len(v.Frames) {
			delay = v.Frames[i+1].Offset - f.Offset
		}
		img := f.Image
		if markers[i].Visible() {
			img = overlay.Draw(img, markers[i])
		}
		out[i] = gifgen.Frame{Image: img, Delay: delay}
	}
	return out
}
