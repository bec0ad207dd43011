package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()
	require.NoError(t, conf.Validate())

	require.Equal(t, 2000*time.Millisecond, conf.Connectivity.RTCMuteTimeout)
	require.Equal(t, 800.0, conf.Quality.StartBitrateKbps)
	require.Equal(t, int64(500_000), conf.Video.DesktopBitrate)
	require.Contains(t, conf.Video.Bitrates, "vp8")
	require.Contains(t, conf.Video.Bitrates, "av1")
}

func TestLoad(t *testing.T) {
	t.Run("overlay keeps unset defaults", func(t *testing.T) {
		conf, err := Load([]byte(`
video:
  desktop_bitrate: 750000
quality:
  start_bitrate_kbps: 600
`))
		require.NoError(t, err)
		require.Equal(t, int64(750_000), conf.Video.DesktopBitrate)
		require.Equal(t, 600.0, conf.Quality.StartBitrateKbps)

		// untouched sections stay at defaults
		require.Equal(t, 2*time.Second, conf.Quality.StatsInterval)
		require.Equal(t, 0.008, conf.Audio.ActiveLevel)
	})

	t.Run("bitrate table rows can be overridden per codec", func(t *testing.T) {
		conf, err := Load([]byte(`
video:
  bitrates:
    vp9:
      low: 150000
      standard: 400000
      high: 1500000
      ss_high: 2000000
`))
		require.NoError(t, err)
		require.Equal(t, int64(150_000), conf.Video.Bitrates["vp9"].Low)
		// other codecs keep their defaults
		require.Equal(t, int64(200_000), conf.Video.Bitrates["vp8"].Low)
	})

	t.Run("malformed yaml is rejected", func(t *testing.T) {
		_, err := Load([]byte("video: [not a mapping"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("unknown codec", func(t *testing.T) {
		conf := DefaultConfig()
		conf.Video.Bitrates["theora"] = CodecBitrates{Low: 1, Standard: 2, High: 3}

		err := conf.Validate()
		require.ErrorIs(t, err, ErrUnknownCodec)
	})

	t.Run("non-increasing bitrate tiers", func(t *testing.T) {
		conf := DefaultConfig()
		conf.Video.Bitrates["vp8"] = CodecBitrates{Low: 500_000, Standard: 200_000, High: 2_500_000}

		err := conf.Validate()
		require.ErrorIs(t, err, ErrInvalidBitrates)
	})

	t.Run("non-positive intervals", func(t *testing.T) {
		conf := DefaultConfig()
		conf.Connectivity.RTCMuteTimeout = 0
		require.ErrorIs(t, conf.Validate(), ErrInvalidInterval)

		conf = DefaultConfig()
		conf.Quality.StatsInterval = -time.Second
		require.ErrorIs(t, conf.Validate(), ErrInvalidInterval)
	})

	t.Run("loss threshold out of range", func(t *testing.T) {
		conf := DefaultConfig()
		conf.Quality.PacketLossCapThreshold = 101

		err := conf.Validate()
		require.ErrorIs(t, err, ErrInvalidPercentage)
	})
}
