package types

import (
	"context"
	"strings"
	"time"

	"github.com/pion/webrtc/v3"
)

type (
	ParticipantID string
	TrackID       string
)

// SourceName is the structured name a local media source is signaled under,
// e.g. "a1b2c3d4-v0". The trailing index disambiguates multiple sources of
// the same kind from one participant.
type SourceName string

// TrackIndex extracts the per-kind source index, or -1 if the name carries
// none.
func (s SourceName) TrackIndex() int {
	idx := strings.LastIndexByte(string(s), '-')
	if idx < 0 || idx+2 > len(s) {
		return -1
	}
	suffix := string(s)[idx+1:]
	if len(suffix) < 2 {
		return -1
	}
	n := 0
	for _, r := range suffix[1:] {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

type VideoKind string

const (
	VideoKindNone    VideoKind = "none"
	VideoKindCamera  VideoKind = "camera"
	VideoKindDesktop VideoKind = "desktop"
)

type Codec string

const (
	CodecVP8  Codec = Codec(webrtc.MimeTypeVP8)
	CodecVP9  Codec = Codec(webrtc.MimeTypeVP9)
	CodecH264 Codec = Codec(webrtc.MimeTypeH264)
	CodecAV1  Codec = Codec(webrtc.MimeTypeAV1)
)

// Name returns the short lowercase codec name used in config tables.
func (c Codec) Name() string {
	idx := strings.LastIndexByte(string(c), '/')
	return strings.ToLower(string(c)[idx+1:])
}

type ScalabilityMode string

const (
	ScalabilityL1T3    ScalabilityMode = "L1T3"
	ScalabilityL2T3    ScalabilityMode = "L2T3"
	ScalabilityL2T3Key ScalabilityMode = "L2T3_KEY"
	ScalabilityL3T3    ScalabilityMode = "L3T3"
	ScalabilityL3T3Key ScalabilityMode = "L3T3_KEY"
)

// EncodingParameters mirrors RTCRtpEncodingParameters for one simulcast/SVC
// layer.
type EncodingParameters struct {
	RID                   string
	Active                bool
	MaxBitrate            int64
	ScaleResolutionDownBy float64
	ScalabilityMode       ScalabilityMode
	MaxFramerate          float64
}

// SendParameters is the subset of RTCRtpSendParameters the planner reads and
// writes. An empty Encodings slice means the sender has not populated its
// parameters yet.
type SendParameters struct {
	Encodings []EncodingParameters
}

// NativeTrack is the handle to an engine-owned media track.
type NativeTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
}

// RTPSender wraps an engine sender. GetParameters may legitimately return
// empty parameters right after transceiver creation.
type RTPSender interface {
	Track() NativeTrack
	GetParameters() SendParameters
	SetParameters(ctx context.Context, params SendParameters) error
	ReplaceTrack(ctx context.Context, track NativeTrack) error
}

type RTPReceiver interface {
	Track() NativeTrack
}

type RTPTransceiver interface {
	Mid() string
	Kind() webrtc.RTPCodecType
	Direction() webrtc.RTPTransceiverDirection
	CurrentDirection() webrtc.RTPTransceiverDirection
	Sender() RTPSender
	Receiver() RTPReceiver
	Stopped() bool
}

type PeerConnection interface {
	GetSenders() []RTPSender
	GetReceivers() []RTPReceiver
	GetTransceivers() []RTPTransceiver
}

// RenderSurface is a handle to whatever the host renders media into. Attach
// may return a replacement handle in environments that recreate elements.
type RenderSurface interface {
	ID() string
	Render(track NativeTrack) (RenderSurface, error)
	Clear()
}

// SignalingTransport is the slice of the signaling layer the core consumes
// directly. Join/leave/property events are pushed into the core by the host
// adaptation layer.
type SignalingTransport interface {
	MyParticipantID() ParticipantID
	SendPropertyUpdate(key string, value string) error
}

type StatsScope int

const (
	// StatsScopeBridge samples come from the conference bridge report
	StatsScopeBridge StatsScope = iota
	// StatsScopePeerConnection samples come from local getStats
	StatsScopePeerConnection
)

type Rate struct {
	Upload   float64
	Download float64
}

type VideoResolution struct {
	Width  int
	Height int
}

// StatsSample is one periodic report from the stats sampling collaborator.
// Bitrate and Bandwidth are in kbps, PacketLoss in percent.
type StatsSample struct {
	Scope      StatsScope
	Bitrate    Rate
	PacketLoss Rate
	Bandwidth  Rate
	Resolution *VideoResolution
	FrameRate  float64
}

// StatsSampler delivers periodic transport statistics. The host starts it
// once the peer connection is up and feeds its samples into the quality
// estimator.
type StatsSampler interface {
	OnSample(func(StatsSample))
	Start()
	Stop()
}

// BroadcastAll is the recipient meaning "every remote participant".
const BroadcastAll ParticipantID = ""

// BroadcastChannel is a best-effort data-channel-like collaborator. SendMessage
// may fail before the channel is established; callers treat that as benign.
type BroadcastChannel interface {
	SendMessage(to ParticipantID, payload interface{}) error
}

// ---------------------------------------------------------------------------
// typed event payloads

type TrackMuteChanged struct {
	TrackID TrackID
	Owner   ParticipantID
	Kind    webrtc.RTPCodecType
	Muted   bool
}

type TrackAttached struct {
	TrackID   TrackID
	SurfaceID string
}

type TrackDetached struct {
	TrackID   TrackID
	SurfaceID string
}

type AudioLevelChanged struct {
	TrackID TrackID
	Owner   ParticipantID
	Level   float64
}

// NoAudioInput is the diagnostic fired when a local, unmuted microphone keeps
// reporting dead silence.
type NoAudioInput struct {
	TrackID TrackID
}

type ConnectionStatusChanged struct {
	ParticipantID ParticipantID
	Active        bool
	At            time.Time
}

type QualityStats struct {
	ConnectionQuality float64          `json:"connectionQuality"`
	BitrateUploadKbps float64          `json:"bitrateUpload"`
	PacketLossPercent float64          `json:"packetLossUpload"`
	Resolution        *VideoResolution `json:"resolution,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
}

type LocalStatsUpdated struct {
	Stats QualityStats
}

type RemoteStatsUpdated struct {
	ParticipantID ParticipantID
	Stats         QualityStats
}
