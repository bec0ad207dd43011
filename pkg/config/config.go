package config

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownCodec      = errors.New("unknown codec in bitrate table")
	ErrInvalidBitrates   = errors.New("bitrate tiers must be increasing and positive")
	ErrInvalidInterval   = errors.New("interval must be positive")
	ErrInvalidPercentage = errors.New("percentage must be within [0, 100]")
)

// CodecBitrates holds the per-tier send bitrate caps for one video codec,
// in bits per second. SSHigh is the cap used for high-fps screenshare.
type CodecBitrates struct {
	Low      int64 `yaml:"low,omitempty"`
	Standard int64 `yaml:"standard,omitempty"`
	High     int64 `yaml:"high,omitempty"`
	SSHigh   int64 `yaml:"ss_high,omitempty"`
}

type VideoConfig struct {
	// per-codec bitrate tables keyed by codec name (vp8, vp9, h264, av1)
	Bitrates map[string]CodecBitrates `yaml:"bitrates,omitempty"`

	// cap applied to low-fps screenshare instead of the table value
	DesktopBitrate int64 `yaml:"desktop_bitrate,omitempty"`

	// screenshare at or below this frame rate is treated as low-fps
	DesktopLowFPSThreshold float64 `yaml:"desktop_low_fps_threshold,omitempty"`
}

type AudioConfig struct {
	// level >= ActiveLevel (node.js-style 0.0-1.0 linear scale) counts as speech
	ActiveLevel float64 `yaml:"active_level,omitempty"`
}

type ConnectivityConfig struct {
	// how long a video track must stay RTC-muted, while signaling says
	// unmuted, before the participant is declared inactive
	RTCMuteTimeout time.Duration `yaml:"rtc_mute_timeout,omitempty"`

	// coalescing window for burst recomputes
	RecomputeDebounce time.Duration `yaml:"recompute_debounce,omitempty"`

	// recent status transitions retained across all participants for
	// diagnostics
	TransitionHistorySize int `yaml:"transition_history_size,omitempty"`
}

type QualityConfig struct {
	// interval at which the stats sampler is expected to deliver samples
	StatsInterval time.Duration `yaml:"stats_interval,omitempty"`

	// initial bitrate assumed for the ramp-up ceiling, in kbps
	StartBitrateKbps float64 `yaml:"start_bitrate_kbps,omitempty"`

	// per-second growth factor of the ramp-up ceiling
	RampUpGrowthFactor float64 `yaml:"ramp_up_growth_factor,omitempty"`

	// ramp-up ceiling is ignored after this much streaming time
	RampUpDuration time.Duration `yaml:"ramp_up_duration,omitempty"`

	// maximum score increase per second
	MaxIncreasePerSecond float64 `yaml:"max_increase_per_second,omitempty"`

	// packet loss at or above this caps the score at CappedQuality
	PacketLossCapThreshold float64 `yaml:"packet_loss_cap_threshold,omitempty"`
	CappedQuality          float64 `yaml:"capped_quality,omitempty"`

	// retained remote participant stats entries
	RemoteStatsCacheSize int `yaml:"remote_stats_cache_size,omitempty"`
}

type Config struct {
	Video        VideoConfig        `yaml:"video,omitempty"`
	Audio        AudioConfig        `yaml:"audio,omitempty"`
	Connectivity ConnectivityConfig `yaml:"connectivity,omitempty"`
	Quality      QualityConfig      `yaml:"quality,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Video: VideoConfig{
			Bitrates: map[string]CodecBitrates{
				"vp8":  {Low: 200_000, Standard: 700_000, High: 2_500_000, SSHigh: 2_500_000},
				"vp9":  {Low: 100_000, Standard: 300_000, High: 1_200_000, SSHigh: 2_500_000},
				"h264": {Low: 400_000, Standard: 800_000, High: 2_500_000, SSHigh: 2_500_000},
				"av1":  {Low: 100_000, Standard: 300_000, High: 1_000_000, SSHigh: 2_500_000},
			},
			DesktopBitrate:         500_000,
			DesktopLowFPSThreshold: 5.0,
		},
		Audio: AudioConfig{
			ActiveLevel: 0.008,
		},
		Connectivity: ConnectivityConfig{
			RTCMuteTimeout:        2000 * time.Millisecond,
			RecomputeDebounce:     100 * time.Millisecond,
			TransitionHistorySize: 16,
		},
		Quality: QualityConfig{
			StatsInterval:          2 * time.Second,
			StartBitrateKbps:       800,
			RampUpGrowthFactor:     1.08,
			RampUpDuration:         60 * time.Second,
			MaxIncreasePerSecond:   2,
			PacketLossCapThreshold: 10,
			CappedQuality:          30,
			RemoteStatsCacheSize:   128,
		},
	}
}

// Load overlays YAML content onto the defaults and validates the result.
func Load(content []byte) (*Config, error) {
	conf := DefaultConfig()
	if err := yaml.Unmarshal(content, conf); err != nil {
		return nil, errors.Wrap(err, "could not parse config")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	for codec, b := range c.Video.Bitrates {
		switch codec {
		case "vp8", "vp9", "h264", "av1":
		default:
			return errors.Wrap(ErrUnknownCodec, codec)
		}
		if b.Low <= 0 || b.Standard < b.Low || b.High < b.Standard {
			return errors.Wrap(ErrInvalidBitrates, codec)
		}
	}
	if c.Connectivity.RTCMuteTimeout <= 0 {
		return errors.Wrap(ErrInvalidInterval, "connectivity.rtc_mute_timeout")
	}
	if c.Quality.StatsInterval <= 0 {
		return errors.Wrap(ErrInvalidInterval, "quality.stats_interval")
	}
	if c.Quality.PacketLossCapThreshold < 0 || c.Quality.PacketLossCapThreshold > 100 {
		return errors.Wrap(ErrInvalidPercentage, "quality.packet_loss_cap_threshold")
	}
	return nil
}
