// Package detect runs the full source-detection pipeline on an image:
// background estimation, preprocessing, tree construction, significance
// testing and object measurement.
//
// The pixel type is chosen at run time from the configured precision; the
// rest of the pipeline is generic over it.
package detect

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/background"
	"github.com/ironsheep/mtobjects/internal/config"
	"github.com/ironsheep/mtobjects/internal/imaging"
	"github.com/ironsheep/mtobjects/internal/logger"
	"github.com/ironsheep/mtobjects/internal/maxtree"
	"github.com/ironsheep/mtobjects/internal/preprocess"
	"github.com/ironsheep/mtobjects/internal/significance"
)

const component = "detect"

// Object is one detected source in a Result.
type Object struct {
	imaging.ObjectParams

	// Parent is the ID of the enclosing object, or 0.
	Parent int32 `json:"parent"`

	// Node is the accepted max-tree node.
	Node int32 `json:"node"`

	// Level is the intensity at which the object's region starts;
	// Background is the level it was tested against.
	Level      float64 `json:"level"`
	Background float64 `json:"background"`

	// Score, Threshold and Confidence are the significance test outcome.
	Score      float64 `json:"score"`
	Threshold  float64 `json:"threshold"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one detection run.
type Result struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Precision string `json:"precision"`
	Direction string `json:"direction"`
	Test      string `json:"test"`

	// Background is the measured (or configured) sky level and noise.
	Background background.Estimate `json:"background"`

	// Tree summarises the max-tree.
	Tree maxtree.Summary `json:"tree"`

	// Decisions counts nodes per final status.
	Decisions map[string]int `json:"decisions"`

	Objects []Object `json:"objects"`

	// Timings holds per-stage wall time in milliseconds.
	Timings map[string]float64 `json:"timings_ms"`

	// Labels is the segmentation map: object ID per pixel, 0 for
	// background.
	Labels []int32 `json:"-"`

	// Pixels is the preprocessed image the tree was built from.
	Pixels []float64 `json:"-"`

	// Mask marks excluded pixels, or is nil.
	Mask []bool `json:"-"`
}

// Object returns the object with the given ID, or nil.
func (r *Result) Object(id int32) *Object {
	if id < 1 || int(id) > len(r.Objects) {
		return nil
	}
	return &r.Objects[id-1]
}

// Pipeline runs detections with a fixed configuration.
type Pipeline struct {
	cfg *config.Config
	log logger.Logger
}

// New validates cfg and returns a pipeline. A nil log discards output.
func New(cfg *config.Config, log logger.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{cfg: cfg, log: log}, nil
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Run detects the objects in img.
//
// Parameters:
//   - ctx: Checked between stages; a cancelled context aborts the run.
//   - img: Any decoded image; see imaging.ToBuffer for the intensity scale.
//
// Returns:
//   - *Result: Objects, segmentation map and run statistics.
//   - error: Wraps maxtree.ErrInvalidInput, ErrResourceExhausted or
//     ErrInvariantViolation from the core, or the context error.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (*Result, error) {
	prec, err := p.cfg.Precision()
	if err != nil {
		return nil, err
	}
	if prec == maxtree.Single {
		return run(ctx, p, imaging.ToBuffer[float32](img))
	}
	return run(ctx, p, imaging.ToBuffer[float64](img))
}

// RunBuffer detects the objects in an existing pixel buffer at its own
// precision.
func RunBuffer[T maxtree.Scalar](ctx context.Context, p *Pipeline, buf *maxtree.Image[T]) (*Result, error) {
	if buf == nil {
		return nil, errors.Wrap(maxtree.ErrInvalidInput, "nil image")
	}
	return run(ctx, p, buf)
}

type stageTimer struct {
	timings map[string]float64
	last    time.Time
}

func (s *stageTimer) done(stage string) {
	now := time.Now()
	s.timings[stage] = float64(now.Sub(s.last).Microseconds()) / 1000
	s.last = now
}

func run[T maxtree.Scalar](ctx context.Context, p *Pipeline, buf *maxtree.Image[T]) (*Result, error) {
	cfg := p.cfg
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	// Smoothing would spread a non-finite value before the tree rejects it.
	if err := buf.Validate(opts.MaxPixels); err != nil {
		return nil, err
	}
	timer := &stageTimer{timings: make(map[string]float64), last: time.Now()}
	p.log.Debug(component, "detection started", map[string]interface{}{
		"width": buf.Width, "height": buf.Height, "precision": maxtree.PrecisionOf[T]().String(),
	})

	if s := cfg.Preprocess.SmoothSigma; s > 0 {
		if buf, err = preprocess.Smooth(buf, s); err != nil {
			return nil, err
		}
		timer.done("smooth")
	}

	est := background.Estimate{Mean: cfg.Background.Mean, Sigma: cfg.Background.Sigma}
	if cfg.Background.Estimate {
		if est, err = background.Measure(buf, cfg.ClipOptions()); err != nil {
			return nil, err
		}
		timer.done("background")
	}
	if est.Sigma == 0 && buf.ValidCount() > 0 {
		p.log.Warning(component, "background noise is zero; every excess is significant", nil)
	}
	if cfg.Preprocess.SubtractBackground {
		buf = preprocess.SubtractBackground(buf, est.Mean)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := maxtree.Build(buf, opts)
	if err != nil {
		return nil, errors.Wrap(err, "building tree")
	}
	timer.done("build")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params, err := cfg.Params(est)
	if err != nil {
		return nil, err
	}
	tester, err := significance.NewTester[T](params)
	if err != nil {
		return nil, err
	}
	sig, err := tester.Run(tree, buf)
	if err != nil {
		return nil, errors.Wrap(err, "testing nodes")
	}
	timer.done("significance")

	res := &Result{
		Width:      buf.Width,
		Height:     buf.Height,
		Precision:  maxtree.PrecisionOf[T]().String(),
		Direction:  opts.Direction.String(),
		Test:       params.Method.String(),
		Background: est,
		Tree:       tree.Summarize(),
		Decisions:  make(map[string]int),
		Labels:     sig.Labels,
		Pixels:     make([]float64, len(buf.Pix)),
		Mask:       buf.Mask,
		Timings:    timer.timings,
	}
	for status, n := range sig.Counts() {
		res.Decisions[status.String()] = n
	}
	for i, v := range buf.Pix {
		res.Pixels[i] = float64(v)
	}
	res.Objects = measure(sig, res.Pixels, opts.Direction)
	timer.done("measure")

	p.log.Info(component, "detection finished", map[string]interface{}{
		"objects": len(res.Objects),
		"nodes":   res.Tree.Nodes,
		"sigma":   est.Sigma,
	})
	return res, nil
}

func measure[T maxtree.Scalar](sig *significance.Result[T], pix []float64, dir maxtree.Direction) []Object {
	sign := 1.0
	if dir == maxtree.Dark {
		sign = -1
	}
	objects := make([]Object, len(sig.Objects))
	for i := range sig.Objects {
		o := &sig.Objects[i]
		values := make([]float64, len(o.Pixels))
		for j, px := range o.Pixels {
			values[j] = sign * pix[px]
		}
		params := imaging.MeasureObject(o.ID, sig.Tree.Width, o.Pixels, values)
		params.Flux *= sign
		params.Peak *= sign
		objects[i] = Object{
			ObjectParams: params,
			Parent:       o.Parent,
			Node:         o.Node,
			Level:        float64(o.Level),
			Background:   float64(o.Background),
			Score:        finite(o.Evidence.Score),
			Threshold:    finite(o.Evidence.Threshold),
			Confidence:   finite(o.Evidence.Confidence),
		}
	}
	return objects
}

// finite clamps infinities so that results stay JSON-encodable.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}
