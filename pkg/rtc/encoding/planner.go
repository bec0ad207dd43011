package encoding

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/meetkit/meetkit-client/pkg/capabilities"
	"github.com/meetkit/meetkit-client/pkg/config"
	"github.com/meetkit/meetkit-client/pkg/logger"
	"github.com/meetkit/meetkit-client/pkg/rtc"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
	"github.com/meetkit/meetkit-client/pkg/utils"
)

// simulcast rid labels, ordered low to high spatial quality
const (
	QuarterResolution = "q"
	HalfResolution    = "h"
	FullResolution    = "f"
)

const (
	quarterScale = 4.0
	halfScale    = 2.0
	fullScale    = 1.0
)

var ErrNoSender = errors.New("transceiver has no sender")

type PlannerParams struct {
	Caps    capabilities.Descriptor
	Video   config.VideoConfig
	Binding *rtc.TransceiverBinding
	// serializes async parameter application; optional, inline when nil
	OpsQueue *utils.OpsQueue
	Logger   logger.Logger
}

// Planner computes per-track send encoding layouts and keeps them
// synchronized with sender parameters. It is the only writer of sender
// encodings; a generation counter per track makes sure an application that
// was overtaken by a newer one is discarded instead of clobbering it.
type Planner struct {
	params PlannerParams

	lock        sync.Mutex
	generations map[types.TrackID]uint32
}

func NewPlanner(params PlannerParams) *Planner {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &Planner{
		params:      params,
		generations: make(map[types.TrackID]uint32),
	}
}

func (p *Planner) bitratesFor(codec types.Codec) config.CodecBitrates {
	if b, ok := p.params.Video.Bitrates[codec.Name()]; ok {
		return b
	}
	// unknown codec, be conservative
	return config.CodecBitrates{Low: 200_000, Standard: 500_000, High: 1_500_000, SSHigh: 2_500_000}
}

func (p *Planner) isLowFPSDesktop(track *rtc.LocalTrack) bool {
	return track.VideoKind() == types.VideoKindDesktop &&
		track.FrameRate() > 0 &&
		track.FrameRate() <= p.params.Video.DesktopLowFPSThreshold
}

// ComputeEncodings produces the encoding layout for a local video track:
// three simulcast layers, one SVC stream with placeholder layers, or a
// single stream, depending on codec and engine capabilities.
func (p *Planner) ComputeEncodings(track *rtc.LocalTrack, codec types.Codec, simulcast bool, requestedHeight int) []types.EncodingParameters {
	if p.params.Caps.SupportsSVCFor(codec) {
		return p.computeSVCEncodings(track, codec, requestedHeight)
	}
	if simulcast && p.params.Caps.SupportsSimulcast {
		return p.computeSimulcastEncodings(track, codec)
	}
	return p.computeSingleEncodings(track, codec)
}

func (p *Planner) computeSimulcastEncodings(track *rtc.LocalTrack, codec types.Codec) []types.EncodingParameters {
	bitrates := p.bitratesFor(codec)
	topBitrate := bitrates.High
	if track.VideoKind() == types.VideoKindDesktop {
		topBitrate = bitrates.SSHigh
	}

	encodings := []types.EncodingParameters{
		{RID: QuarterResolution, Active: true, ScaleResolutionDownBy: quarterScale, MaxBitrate: bitrates.Low},
		{RID: HalfResolution, Active: true, ScaleResolutionDownBy: halfScale, MaxBitrate: bitrates.Standard},
		{RID: FullResolution, Active: true, ScaleResolutionDownBy: fullScale, MaxBitrate: topBitrate},
	}

	if p.params.Caps.ReverseSimulcastOrder {
		// this engine announces simulcast SSRCs high to low, so the first
		// layer must carry the full-resolution numbers
		encodings[0], encodings[2] = encodings[2], encodings[0]
	}

	if p.isLowFPSDesktop(track) {
		// starve-proofing: keep only the full-resolution layer and pin it
		// to the desktop rate so the engine cannot shed it under pressure
		for i := range encodings {
			if encodings[i].ScaleResolutionDownBy == fullScale {
				encodings[i].MaxBitrate = p.params.Video.DesktopBitrate
			} else {
				encodings[i].Active = false
			}
		}
	}

	p.logLayout(track, codec, encodings)
	return encodings
}

func (p *Planner) computeSVCEncodings(track *rtc.LocalTrack, codec types.Codec, requestedHeight int) []types.EncodingParameters {
	bitrates := p.bitratesFor(codec)
	sourceHeight := track.CaptureHeight()
	isDesktop := track.VideoKind() == types.VideoKindDesktop

	var (
		bitrate int64
		scale   float64
		mode    types.ScalabilityMode
	)
	switch {
	case requestedHeight >= sourceHeight/2:
		bitrate = bitrates.High
		scale = fullScale
		mode = types.ScalabilityL3T3Key
		if isDesktop {
			mode = types.ScalabilityL3T3
		}
	case requestedHeight >= sourceHeight/4:
		bitrate = bitrates.Standard
		scale = halfScale
		mode = types.ScalabilityL2T3Key
		if isDesktop {
			mode = types.ScalabilityL2T3
		}
	default:
		bitrate = bitrates.Low
		scale = quarterScale
		mode = types.ScalabilityL1T3
	}

	if isDesktop {
		if p.isLowFPSDesktop(track) {
			bitrate = p.params.Video.DesktopBitrate
		} else {
			bitrate = bitrates.SSHigh
		}
	}

	// single RTP stream carries every spatial/temporal layer; the two
	// placeholders keep the transceiver's layer count stable
	encodings := []types.EncodingParameters{
		{RID: QuarterResolution, Active: true, MaxBitrate: bitrate, ScaleResolutionDownBy: scale, ScalabilityMode: mode},
		{RID: HalfResolution, Active: false},
		{RID: FullResolution, Active: false},
	}

	p.logLayout(track, codec, encodings)
	return encodings
}

func (p *Planner) computeSingleEncodings(track *rtc.LocalTrack, codec types.Codec) []types.EncodingParameters {
	bitrates := p.bitratesFor(codec)
	bitrate := bitrates.High
	if track.VideoKind() == types.VideoKindDesktop {
		bitrate = bitrates.SSHigh
		if p.isLowFPSDesktop(track) {
			bitrate = p.params.Video.DesktopBitrate
		}
	}

	encodings := []types.EncodingParameters{
		{Active: true, ScaleResolutionDownBy: fullScale, MaxBitrate: bitrate},
	}

	p.logLayout(track, codec, encodings)
	return encodings
}

func (p *Planner) logLayout(track *rtc.LocalTrack, codec types.Codec, encodings []types.EncodingParameters) {
	for _, enc := range encodings {
		p.params.Logger.Debugw("computed encoding layer",
			"trackID", track.ID(),
			"codec", codec.Name(),
			"rid", enc.RID,
			"active", enc.Active,
			"scale", enc.ScaleResolutionDownBy,
			"maxBitrate", humanize.Comma(enc.MaxBitrate),
			"scalabilityMode", enc.ScalabilityMode,
		)
	}
}

// CalculateEncodingsActiveState decides per layer whether it should be
// sending, by comparing the layer's implied resolution against the requested
// target height. The lowest-resolution layer gets twice the headroom so a
// source/target pair hovering at a boundary does not oscillate.
func (p *Planner) CalculateEncodingsActiveState(track *rtc.LocalTrack, encodings []types.EncodingParameters, targetHeight int) []bool {
	sourceHeight := track.CaptureHeight()

	maxScale := 0.0
	for _, enc := range encodings {
		if enc.ScaleResolutionDownBy > maxScale {
			maxScale = enc.ScaleResolutionDownBy
		}
	}

	active := make([]bool, len(encodings))
	for i, enc := range encodings {
		if targetHeight <= 0 || enc.ScaleResolutionDownBy <= 0 {
			continue
		}
		layerHeight := float64(sourceHeight) / enc.ScaleResolutionDownBy
		allowed := float64(targetHeight)
		if enc.ScaleResolutionDownBy == maxScale {
			allowed *= 2
		}
		active[i] = layerHeight <= allowed
	}
	return active
}

// TargetBitrateKbps returns the send bitrate the current layout is expected
// to reach for the given target height, used by the quality estimator.
func (p *Planner) TargetBitrateKbps(track *rtc.LocalTrack, codec types.Codec, simulcast bool, targetHeight int) float64 {
	bitrates := p.bitratesFor(codec)
	sourceHeight := track.CaptureHeight()

	if track.VideoKind() == types.VideoKindDesktop {
		if p.isLowFPSDesktop(track) {
			return float64(p.params.Video.DesktopBitrate) / 1000
		}
		return float64(bitrates.SSHigh) / 1000
	}

	if p.params.Caps.SupportsSVCFor(codec) || !simulcast {
		switch {
		case targetHeight >= sourceHeight/2:
			return float64(bitrates.High) / 1000
		case targetHeight >= sourceHeight/4:
			return float64(bitrates.Standard) / 1000
		default:
			return float64(bitrates.Low) / 1000
		}
	}

	// simulcast sends every layer at or below the target
	total := int64(0)
	switch {
	case targetHeight >= sourceHeight/2:
		total = bitrates.Low + bitrates.Standard + bitrates.High
	case targetHeight >= sourceHeight/4:
		total = bitrates.Low + bitrates.Standard
	default:
		total = bitrates.Low
	}
	return float64(total) / 1000
}

// ---------------------------------------------------------------------------
// sender synchronization

func (p *Planner) nextGeneration(trackID types.TrackID) uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.generations[trackID]++
	return p.generations[trackID]
}

func (p *Planner) currentGeneration(trackID types.TrackID) uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.generations[trackID]
}

// ForgetTrack drops the planner's per-track state, invalidating any
// in-flight application for it.
func (p *Planner) ForgetTrack(trackID types.TrackID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	// bump so a queued application for this track discards itself
	p.generations[trackID]++
}

// SetEncodings applies the computed layer set to the track's sender as one
// transaction. A sender that has not populated its parameters yet is a
// benign race right after transceiver creation: the call succeeds as a
// no-op and the next mute toggle or bitrate allocation reapplies.
func (p *Planner) SetEncodings(ctx context.Context, track *rtc.LocalTrack, encodings []types.EncodingParameters) error {
	transceiver, err := p.params.Binding.Find(track)
	if err != nil {
		return err
	}
	sender := transceiver.Sender()
	if sender == nil {
		return errors.Wrap(ErrNoSender, fmt.Sprintf("mid: %s", transceiver.Mid()))
	}

	current := sender.GetParameters()
	if len(current.Encodings) == 0 {
		p.params.Logger.Debugw("sender parameters not populated, skipping apply", "trackID", track.ID())
		return nil
	}

	next := mergeEncodings(current, encodings)
	generation := p.nextGeneration(track.ID())

	apply := func() {
		if p.currentGeneration(track.ID()) != generation {
			p.params.Logger.Debugw("discarding stale encoding application",
				"trackID", track.ID(), "generation", generation)
			return
		}
		if err := sender.SetParameters(ctx, next); err != nil {
			p.params.Logger.Warnw("could not apply encodings", err, "trackID", track.ID())
		}
	}

	if p.params.OpsQueue != nil {
		p.params.OpsQueue.Enqueue(apply)
		return nil
	}
	apply()
	return nil
}

// UpdateEncodingsActiveState recomputes layer activity for a target height
// and applies it.
func (p *Planner) UpdateEncodingsActiveState(ctx context.Context, track *rtc.LocalTrack, encodings []types.EncodingParameters, targetHeight int) error {
	active := p.CalculateEncodingsActiveState(track, encodings, targetHeight)
	updated := make([]types.EncodingParameters, len(encodings))
	copy(updated, encodings)
	for i := range updated {
		updated[i].Active = active[i]
	}
	return p.SetEncodings(ctx, track, updated)
}

// UpdateEncodingsScalabilityMode rewrites the scalability mode of the active
// SVC layer and applies it.
func (p *Planner) UpdateEncodingsScalabilityMode(ctx context.Context, track *rtc.LocalTrack, encodings []types.EncodingParameters, mode types.ScalabilityMode) error {
	updated := make([]types.EncodingParameters, len(encodings))
	copy(updated, encodings)
	for i := range updated {
		if updated[i].Active {
			updated[i].ScalabilityMode = mode
		}
	}
	return p.SetEncodings(ctx, track, updated)
}

// UpdateEncodingsResolution rewrites the scale factor of the active SVC
// layer for a new requested height and applies it.
func (p *Planner) UpdateEncodingsResolution(ctx context.Context, track *rtc.LocalTrack, encodings []types.EncodingParameters, requestedHeight int) error {
	sourceHeight := track.CaptureHeight()
	scale := quarterScale
	switch {
	case requestedHeight >= sourceHeight/2:
		scale = fullScale
	case requestedHeight >= sourceHeight/4:
		scale = halfScale
	}

	updated := make([]types.EncodingParameters, len(encodings))
	copy(updated, encodings)
	for i := range updated {
		if updated[i].Active {
			updated[i].ScaleResolutionDownBy = scale
		}
	}
	return p.SetEncodings(ctx, track, updated)
}

// ReplaceTrack points the track's sender at a new native track and records
// the binding. The two mutations are a single transaction from the caller's
// point of view: on error neither the binding nor the track changes.
func (p *Planner) ReplaceTrack(ctx context.Context, track *rtc.LocalTrack, native types.NativeTrack) error {
	transceiver, err := p.params.Binding.Find(track)
	if err != nil {
		return err
	}
	sender := transceiver.Sender()
	if sender == nil {
		return errors.Wrap(ErrNoSender, fmt.Sprintf("mid: %s", transceiver.Mid()))
	}

	if err := sender.ReplaceTrack(ctx, native); err != nil {
		return err
	}
	track.SetNative(native)
	p.params.Binding.Bind(track.ID(), transceiver.Mid())
	return nil
}

// AddTrackUnmute restores the native track on the sender after an unmute.
// Callers treat an error as fatal for this attempt; the next user-driven
// mute toggle re-attempts.
func (p *Planner) AddTrackUnmute(ctx context.Context, track *rtc.LocalTrack) error {
	native := track.Native()
	if native == nil {
		return rtc.ErrNoNativeTrack
	}

	transceiver, err := p.params.Binding.Find(track)
	if err != nil {
		return err
	}
	sender := transceiver.Sender()
	if sender == nil {
		return errors.Wrap(ErrNoSender, fmt.Sprintf("mid: %s", transceiver.Mid()))
	}
	return sender.ReplaceTrack(ctx, native)
}

// RemoveTrackMute detaches the native track from the sender on mute, which
// stops sending without renegotiation.
func (p *Planner) RemoveTrackMute(ctx context.Context, track *rtc.LocalTrack) error {
	transceiver, err := p.params.Binding.Find(track)
	if err != nil {
		return err
	}
	sender := transceiver.Sender()
	if sender == nil {
		return errors.Wrap(ErrNoSender, fmt.Sprintf("mid: %s", transceiver.Mid()))
	}
	return sender.ReplaceTrack(ctx, nil)
}

func mergeEncodings(current types.SendParameters, computed []types.EncodingParameters) types.SendParameters {
	if len(current.Encodings) != len(computed) {
		// layout changed shape, overwrite entirely
		next := current
		next.Encodings = computed
		return next
	}

	next := current
	next.Encodings = make([]types.EncodingParameters, len(computed))
	copy(next.Encodings, computed)
	for i := range next.Encodings {
		// rids are negotiated, never rewrite an engine-assigned one
		if current.Encodings[i].RID != "" {
			next.Encodings[i].RID = current.Encodings[i].RID
		}
	}
	return next
}
