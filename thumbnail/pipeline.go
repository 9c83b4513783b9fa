// CLAUDE:SUMMARY Thumbnail pipeline state machine: validate, inline images, render in an isolated surface, capture; screenshot failures are absorbed into the Result.
// Package thumbnail runs the screenshot pipeline for one template:
//
//	Idle → Validating → Inlining → Rendering → Capturing → Done
//	                 ↘ Aborted (validation failed)
//
// Validation failure aborts the run and is returned as an error. Every
// later failure still ends in Done, with no screenshot and a
// *ScreenshotError on the Result: a missing thumbnail never blocks a save.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/templio/htmldoc"
	"github.com/hazyhaar/templio/inline"
	"github.com/hazyhaar/templio/raster"
	"github.com/hazyhaar/templio/render"
)

// State is a pipeline stage.
type State int

const (
	Idle State = iota
	Validating
	Inlining
	Rendering
	Capturing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Inlining:
		return "inlining"
	case Rendering:
		return "rendering"
	case Capturing:
		return "capturing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrTooLarge is wrapped by a ScreenshotError when the encoded thumbnail
// does not fit in storage.
var ErrTooLarge = errors.New("thumbnail: screenshot exceeds storage limit")

// ScreenshotError reports a non-fatal failure of a pipeline stage.
type ScreenshotError struct {
	Stage State
	Err   error
}

func (e *ScreenshotError) Error() string {
	return fmt.Sprintf("thumbnail: %s: %v", e.Stage, e.Err)
}

func (e *ScreenshotError) Unwrap() error { return e.Err }

// Result is the outcome of a completed run.
type Result struct {
	// Screenshot is the data URI, or "" when none could be produced.
	Screenshot string `json:"screenshot,omitempty"`
	Format     string `json:"format,omitempty"`
	Fallback   bool   `json:"fallback,omitempty"`
	// FullDocument tells whether the source was a complete document.
	FullDocument bool              `json:"full_document"`
	Images       inline.Report     `json:"images"`
	Settlement   render.Settlement `json:"settlement"`
	Warning      *ScreenshotError  `json:"-"`
	Duration     time.Duration     `json:"duration"`
}

// Inliner embeds external images. *inline.Inliner implements it.
type Inliner interface {
	Inline(ctx context.Context, doc string) (string, inline.Report)
}

// Capturer encodes a surface. *raster.Rasterizer implements it.
type Capturer interface {
	Capture(ctx context.Context, s raster.Snapshotter) (*raster.Encoded, error)
}

// Config wires a Pipeline.
type Config struct {
	Inliner  Inliner
	Renderer render.Renderer
	Capturer Capturer
	// MaxStoredBytes is the largest data URI that may be stored.
	// Default 2 MiB.
	MaxStoredBytes int
	// Title is used for the shell of fragments. Default "Template".
	Title string
	// OnTransition is called on every state change.
	OnTransition func(from, to State)
	Logger       *slog.Logger
}

// Pipeline runs thumbnail generation. It is safe for concurrent use; each
// Run owns its own surface.
type Pipeline struct {
	cfg Config
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.MaxStoredBytes <= 0 {
		cfg.MaxStoredBytes = 2 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg}
}

// Run processes html. validate may be nil. A non-nil error means the run
// was aborted by validation (or ctx ended before it started); otherwise the
// Result is returned, with or without a screenshot.
func (p *Pipeline) Run(ctx context.Context, html string, validate func(string) error) (*Result, error) {
	start := time.Now()
	r := &run{p: p, state: Idle}

	r.to(Validating)
	if validate != nil {
		if err := validate(html); err != nil {
			r.to(Aborted)
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		r.to(Aborted)
		return nil, err
	}

	res := &Result{FullDocument: htmldoc.IsFullDocument(html)}
	if err := r.produce(ctx, html, res); err != nil {
		var se *ScreenshotError
		if !errors.As(err, &se) {
			se = &ScreenshotError{Stage: r.state, Err: err}
		}
		res.Screenshot, res.Format, res.Fallback = "", "", false
		res.Warning = se
		p.cfg.Logger.WarnContext(ctx, "thumbnail: screenshot skipped",
			"stage", se.Stage.String(), "error", se.Err)
	}
	r.to(Done)
	res.Duration = time.Since(start)
	return res, nil
}

func (r *run) produce(ctx context.Context, html string, res *Result) error {
	cfg := r.p.cfg

	r.to(Inlining)
	doc := html
	if cfg.Inliner != nil {
		doc, res.Images = cfg.Inliner.Inline(ctx, html)
	}
	if !res.FullDocument {
		doc = htmldoc.Wrap(doc, cfg.Title)
	}

	r.to(Rendering)
	if cfg.Renderer == nil {
		return errors.New("no renderer configured")
	}
	surface, err := cfg.Renderer.Render(ctx, doc)
	if err != nil {
		return err
	}
	defer surface.Close()
	res.Settlement = surface.Settlement()

	r.to(Capturing)
	enc, err := cfg.Capturer.Capture(ctx, surface)
	if err != nil {
		return err
	}
	if len(enc.DataURI) > cfg.MaxStoredBytes {
		return &ScreenshotError{Stage: Capturing, Err: fmt.Errorf("%w (%d bytes)", ErrTooLarge, len(enc.DataURI))}
	}
	res.Screenshot, res.Format, res.Fallback = enc.DataURI, enc.Format, enc.Fallback
	return nil
}

type run struct {
	p     *Pipeline
	state State
}

func (r *run) to(s State) {
	from := r.state
	r.state = s
	if fn := r.p.cfg.OnTransition; fn != nil {
		fn(from, s)
	}
}
