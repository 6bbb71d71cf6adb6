// Package extractor drives the feature-extraction pipeline: a fixed-interval
// tick loop that snapshots the audio ring buffer, runs the embedding model
// under admission control and a deadline, smooths the projected articulator
// coordinates, and publishes one feature frame per tick.
//
// One cycle:
//
//	ring.Snapshot -> embedding.Infer -> FilterBank.Apply ->
//	LinearModel.Project(mid frame) -> smooth -> calibrate -> publish
//
// with pitch and loudness computed on the same snapshot. Ticks never wait
// for the previous cycle; when the in-flight cap is reached or a cycle
// fails, the last known-good frame is republished with Fallback set so
// consumers keep receiving frames at the advertised rate.
package extractor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tractstream/tractstream/pkg/audio"
	"github.com/tractstream/tractstream/pkg/dsp"
	"github.com/tractstream/tractstream/pkg/embedding"
	"github.com/tractstream/tractstream/pkg/pipeline"
	"github.com/tractstream/tractstream/pkg/pitch"
	"github.com/tractstream/tractstream/pkg/projection"
	"github.com/tractstream/tractstream/pkg/trace"
)

// Inferencer produces an embedding tensor for an audio window. It is
// implemented by *embedding.Client; tests substitute fakes.
type Inferencer interface {
	Infer(ctx context.Context, samples []float32) (*embedding.Tensor, error)
}

// Coordinator is the pipeline element that owns the extraction loop.
// Audio messages arriving on In() feed the ring buffer; feature messages
// leave on Out().
type Coordinator struct {
	*pipeline.BaseElement

	cfg   Config
	infer Inferencer
	model *projection.LinearModel

	ring    *audio.RingBuffer
	bank    *dsp.FilterBank
	tracker *pitch.Tracker
	demo    *DemoSource

	// dspMu serializes the stateful DSP path (filter bank, smoother,
	// last-frame bookkeeping) across overlapping inference completions.
	dspMu    sync.Mutex
	smoother *dsp.VectorSmoother
	// lastFrame is the last known-good smoothed frame, held steady and
	// republished on fallback ticks.
	lastFrame projection.ArticulatoryFrame

	calibMu     sync.RWMutex
	calibration projection.Calibration

	stateMu sync.Mutex
	state   State

	// pending counts in-flight embedding requests. Incremented at
	// dispatch, decremented exactly once per request by whichever of
	// {result, timeout} is observed first.
	pending atomic.Int32
	seq     atomic.Uint64

	counters statsCounters

	sessionID string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewCoordinator creates a coordinator around an inferencer and a loaded
// linear model.
func NewCoordinator(cfg Config, infer Inferencer, model *projection.LinearModel) (*Coordinator, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if infer == nil {
		return nil, fmt.Errorf("inferencer is required")
	}
	if model == nil {
		return nil, fmt.Errorf("linear model is required")
	}
	if model.OutputDim() != projection.VectorDim {
		return nil, fmt.Errorf("linear model output dim %d does not match articulator layout %d",
			model.OutputDim(), projection.VectorDim)
	}

	tracker, err := pitch.NewTracker(cfg.Pitch)
	if err != nil {
		return nil, fmt.Errorf("failed to create pitch tracker: %w", err)
	}

	return &Coordinator{
		BaseElement: pipeline.NewBaseElement(64),
		cfg:         cfg,
		infer:       infer,
		model:       model,
		ring:        audio.NewRingBuffer(cfg.BufferCapacity),
		bank:        dsp.NewLowpassBank(),
		tracker:     tracker,
		demo:        NewDemoSource(),
		smoother:    dsp.NewVectorSmoother(cfg.SmoothingAlpha),
		calibration: projection.DefaultCalibration(),
		state:       StateIdle,
		sessionID:   uuid.NewString(),
	}, nil
}

// SessionID returns the coordinator's session identifier.
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Stats returns a snapshot of the outcome counters.
func (c *Coordinator) Stats() Stats {
	return c.counters.snapshot()
}

// SetCalibration replaces the display calibration. It takes effect at the
// top of the next tick; a tick in progress keeps the values it read.
func (c *Coordinator) SetCalibration(cal projection.Calibration) {
	c.calibMu.Lock()
	c.calibration = cal
	c.calibMu.Unlock()
}

func (c *Coordinator) setState(s State) {
	c.stateMu.Lock()
	prev := c.state
	c.state = s
	c.stateMu.Unlock()

	if prev == s {
		return
	}
	log.Printf("[Extractor] state %s -> %s", prev, s)
	c.publishEvent(pipeline.Event{
		Type:      pipeline.EventStateChange,
		Timestamp: time.Now(),
		Payload:   pipeline.StateChangePayload{From: prev.String(), To: s.String()},
	})
}

func (c *Coordinator) publishEvent(evt pipeline.Event) {
	if bus := c.Bus(); bus != nil {
		bus.Publish(evt)
	}
}

// Init validates the wiring before start.
func (c *Coordinator) Init(ctx context.Context) error {
	return nil
}

// Start transitions Idle -> Starting, arms the tick loop and the audio
// ingest loop, and verifies the model with a warmup inference. The first
// successful warmup transitions to Running; a warmup failure reports the
// error and returns to Idle.
func (c *Coordinator) Start(ctx context.Context) error {
	c.stateMu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.stateMu.Unlock()
		return fmt.Errorf("cannot start from state %s", state)
	}
	c.state = StateStarting
	c.stateMu.Unlock()

	log.Printf("[Extractor] starting, session=%s tick=%v window=%d cap=%d",
		c.sessionID, c.cfg.TickInterval, c.cfg.WindowSize, c.cfg.MaxInFlight)

	ctx, cancel := context.WithCancel(ctx)
	c.stateMu.Lock()
	c.cancel = cancel
	c.stateMu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.ingestLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.tickLoop(ctx)
	}()

	go c.warmup(ctx)

	return nil
}

// warmup runs one inference on silence to verify the model end to end
// before routing real ticks to it.
func (c *Coordinator) warmup(ctx context.Context) {
	wctx, span := trace.InstrumentWarmup(ctx, c.sessionID)
	defer span.End()

	wctx, cancel := context.WithTimeout(wctx, c.cfg.InferenceTimeout)
	defer cancel()

	silence := make([]float32, c.cfg.WindowSize)
	tensor, err := c.infer.Infer(wctx, silence)
	if err != nil {
		trace.RecordError(span, err)
		log.Printf("[Extractor] warmup inference failed: %v", err)
		c.publishEvent(pipeline.Event{
			Type:      pipeline.EventError,
			Timestamp: time.Now(),
			Payload:   fmt.Errorf("warmup inference failed: %w", err),
		})
		c.shutdown()
		return
	}

	if c.model.InputDim() != tensor.Channels {
		err := fmt.Errorf("model channels %d do not match projection input dim %d",
			tensor.Channels, c.model.InputDim())
		trace.RecordError(span, err)
		log.Printf("[Extractor] %v", err)
		c.publishEvent(pipeline.Event{
			Type:      pipeline.EventError,
			Timestamp: time.Now(),
			Payload:   err,
		})
		c.shutdown()
		return
	}

	c.stateMu.Lock()
	starting := c.state == StateStarting
	c.stateMu.Unlock()
	if !starting {
		return // stopped during warmup
	}

	log.Printf("[Extractor] ready: %d frames x %d channels per window", tensor.Frames, tensor.Channels)
	c.setState(StateRunning)
}

// Stop transitions to Stopping, stops arming ticks, waits for the loops to
// drain, and returns to Idle. In-flight inference requests are allowed to
// complete but their results are discarded.
func (c *Coordinator) Stop() error {
	c.stateMu.Lock()
	if c.state == StateIdle {
		c.stateMu.Unlock()
		return nil
	}
	c.state = StateStopping
	c.stateMu.Unlock()

	c.shutdown()
	return nil
}

func (c *Coordinator) shutdown() {
	c.stateMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.stateMu.Unlock()

	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
	c.setState(StateIdle)
}

// NotifySourceError is called by the audio source when capture fails.
// Source failure is pipeline-fatal, unlike per-tick errors.
func (c *Coordinator) NotifySourceError(err error) {
	log.Printf("[Extractor] audio source failed: %v", err)
	c.publishEvent(pipeline.Event{
		Type:      pipeline.EventSourceClosed,
		Timestamp: time.Now(),
		Payload:   err,
	})
	go c.Stop()
}

// ingestLoop feeds incoming audio messages into the ring buffer. This is
// the only writer; snapshots taken by the tick loop copy under the buffer's
// cursor so they never observe a torn window.
func (c *Coordinator) ingestLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.BaseElement.InChan:
			if msg == nil || msg.Type != pipeline.MsgTypeAudio || msg.AudioData == nil {
				continue
			}
			if msg.AudioData.SampleRate != c.cfg.SampleRate {
				log.Printf("[Extractor] expected %d Hz audio, got %d Hz, dropping chunk",
					c.cfg.SampleRate, msg.AudioData.SampleRate)
				continue
			}
			c.ring.Push(msg.AudioData.Samples)
		}
	}
}

// tickLoop fires one extraction cycle per interval. The next tick is armed
// unconditionally; a stalled inference never stops the cadence.
func (c *Coordinator) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	c.counters.ticks.Add(1)
	seq := c.seq.Add(1)

	switch c.State() {
	case StateStarting:
		c.publishDemo(seq)
		return
	case StateRunning:
		// fall through to real extraction
	default:
		return
	}

	// Parameters are read once at the top of the tick and used for the
	// whole cycle, even if changed concurrently.
	c.calibMu.RLock()
	calib := c.calibration
	c.calibMu.RUnlock()

	tctx, span := trace.InstrumentTick(ctx, c.sessionID, seq)
	defer span.End()

	window := c.ring.Snapshot(c.cfg.WindowSize)

	// Pitch and loudness are cheap and run on every tick, including ticks
	// whose inference is rejected, so the host's charts never stall.
	pitchHz := c.tracker.DetectSmoothed(window)
	loudness := audio.Loudness(window)
	span.SetAttributes(
		attribute.Float64(trace.AttrPitchHz, pitchHz),
		attribute.Float64(trace.AttrLoudnessDbfs, loudness),
	)

	if int(c.pending.Load()) >= c.cfg.MaxInFlight {
		// Backpressure: expected, not an error.
		c.counters.rejected.Add(1)
		trace.AddEvent(span, "admission.rejected")
		c.publishFallback(seq, pitchHz, loudness, calib)
		return
	}

	c.pending.Add(1)
	go c.runInference(tctx, window, seq, pitchHz, loudness, calib)
}

type inferenceResult struct {
	tensor *embedding.Tensor
	err    error
}

// runInference executes one embedding request under a deadline. Exactly one
// of {result, timeout} decrements the pending counter; a result arriving
// after the deadline stays in the buffered channel and is discarded.
func (c *Coordinator) runInference(ctx context.Context, window []float32, seq uint64,
	pitchHz, loudness float64, calib projection.Calibration) {

	ictx, span := trace.InstrumentInference(ctx, c.sessionID, seq, len(window))
	defer span.End()

	ictx, cancel := context.WithTimeout(ictx, c.cfg.InferenceTimeout)
	defer cancel()

	resCh := make(chan inferenceResult, 1)
	go func() {
		tensor, err := c.infer.Infer(ictx, window)
		resCh <- inferenceResult{tensor: tensor, err: err}
	}()

	select {
	case res := <-resCh:
		c.pending.Add(-1)
		if res.err != nil {
			c.counters.errors.Add(1)
			trace.RecordError(span, res.err)
			log.Printf("[Extractor] inference error: %v", res.err)
			c.publishEvent(pipeline.Event{
				Type:      pipeline.EventError,
				Timestamp: time.Now(),
				Payload:   res.err,
			})
			c.publishFallback(seq, pitchHz, loudness, calib)
			return
		}
		c.process(res.tensor, seq, pitchHz, loudness, calib)

	case <-ictx.Done():
		c.pending.Add(-1)
		if ctx.Err() != nil {
			// Pipeline is stopping; discard silently.
			return
		}
		c.counters.timeouts.Add(1)
		trace.AddEvent(span, "inference.timeout")
		log.Printf("[Extractor] inference timed out after %v", c.cfg.InferenceTimeout)
		c.publishFallback(seq, pitchHz, loudness, calib)
	}
}

// process routes a validated tensor through the filter bank and projection,
// smooths the result, and publishes it.
func (c *Coordinator) process(tensor *embedding.Tensor, seq uint64,
	pitchHz, loudness float64, calib projection.Calibration) {

	if c.State() != StateRunning {
		return // stopped while inference was in flight
	}

	c.dspMu.Lock()
	defer c.dspMu.Unlock()

	c.bank.Apply(tensor)

	vec, err := c.model.Project(tensor.MidFrame())
	if err != nil {
		c.counters.errors.Add(1)
		log.Printf("[Extractor] projection error: %v", err)
		c.publishFallbackLocked(seq, pitchHz, loudness, calib)
		return
	}

	// Repair non-finite coordinates individually before smoothing; the
	// rest of the frame is kept.
	frame, repaired, err := projection.FrameFromVector(vec)
	if err != nil {
		c.counters.errors.Add(1)
		log.Printf("[Extractor] malformed projection output: %v", err)
		c.publishFallbackLocked(seq, pitchHz, loudness, calib)
		return
	}
	if repaired > 0 {
		log.Printf("[Extractor] repaired %d non-finite coordinate(s) in frame %d", repaired, seq)
	}

	c.smoother.SetAlpha(c.cfg.SmoothingAlpha)
	smoothedVec := c.smoother.Smooth(projection.VectorFromFrame(frame))
	smoothed, _, _ := projection.FrameFromVector(smoothedVec)

	c.lastFrame = smoothed

	c.publish(&pipeline.FeatureData{
		Frame:        calib.Apply(smoothed),
		PitchHz:      pitchHz,
		LoudnessDbfs: loudness,
		Seq:          seq,
		Timestamp:    time.Now(),
	})
	c.counters.published.Add(1)
}

// publishFallback republishes the last known-good frame, marked Fallback,
// so downstream consumers keep their tick cadence.
func (c *Coordinator) publishFallback(seq uint64, pitchHz, loudness float64, calib projection.Calibration) {
	c.dspMu.Lock()
	defer c.dspMu.Unlock()
	c.publishFallbackLocked(seq, pitchHz, loudness, calib)
}

func (c *Coordinator) publishFallbackLocked(seq uint64, pitchHz, loudness float64, calib projection.Calibration) {
	frame := c.lastFrame
	if frame == nil {
		// Nothing produced yet; publish a neutral resting posture.
		frame = demoRest.Clone()
	}

	c.publish(&pipeline.FeatureData{
		Frame:        calib.Apply(frame),
		PitchHz:      pitchHz,
		LoudnessDbfs: loudness,
		Fallback:     true,
		Seq:          seq,
		Timestamp:    time.Now(),
	})
	c.counters.fallbacks.Add(1)
}

// publishDemo emits one synthetic frame from the demo source.
func (c *Coordinator) publishDemo(seq uint64) {
	c.dspMu.Lock()
	defer c.dspMu.Unlock()

	c.smoother.SetAlpha(c.cfg.DemoAlpha)
	vec := c.smoother.Smooth(projection.VectorFromFrame(c.demo.Frame(time.Now())))
	frame, _, _ := projection.FrameFromVector(vec)

	c.publish(&pipeline.FeatureData{
		Frame:        frame,
		LoudnessDbfs: audio.LoudnessFloor,
		Demo:         true,
		Seq:          seq,
		Timestamp:    time.Now(),
	})
}

// publish sends a feature message without blocking the tick loop. A slow
// consumer loses frames rather than stalling extraction.
func (c *Coordinator) publish(fd *pipeline.FeatureData) {
	msg := &pipeline.PipelineMessage{
		Type:        pipeline.MsgTypeFeature,
		SessionID:   c.sessionID,
		Timestamp:   fd.Timestamp,
		FeatureData: fd,
	}

	select {
	case c.BaseElement.OutChan <- msg:
	default:
		log.Printf("[Extractor] output channel full, dropping frame %d", fd.Seq)
	}

	c.publishEvent(pipeline.Event{
		Type:      pipeline.EventFeature,
		Timestamp: fd.Timestamp,
		Payload:   fd,
	})
}

// Ensure Coordinator implements the pipeline Element at compile time.
var _ pipeline.Element = (*Coordinator)(nil)
