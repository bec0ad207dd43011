package capabilities

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

const (
	uaChrome120 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaChrome99  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/99.0.4844.51 Safari/537.36"
	uaFirefox   = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaSafari17  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	uaSafari13  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.1 Safari/605.1.15"
	uaCurl      = "curl/8.4.0"
)

func TestResolve(t *testing.T) {
	t.Run("modern chrome gets simulcast and svc", func(t *testing.T) {
		d, err := Resolve(uaChrome120)
		require.NoError(t, err)
		require.Equal(t, "Chrome", d.Browser)
		require.True(t, d.SupportsSimulcast)
		require.True(t, d.SupportsSourceMultiplexing)
		require.True(t, d.SupportsScalabilityMode)
		require.True(t, d.SupportsSVCFor(types.CodecVP9))
		require.True(t, d.SupportsSVCFor(types.CodecAV1))
		require.False(t, d.ReverseSimulcastOrder)
		require.False(t, d.RequiresSDPMunging)
	})

	t.Run("old chrome keeps simulcast but not svc", func(t *testing.T) {
		d, err := Resolve(uaChrome99)
		require.NoError(t, err)
		require.True(t, d.SupportsSimulcast)
		require.False(t, d.SupportsScalabilityMode)
		require.Empty(t, d.SVCCodecs)
	})

	t.Run("firefox reverses simulcast order and needs munging", func(t *testing.T) {
		d, err := Resolve(uaFirefox)
		require.NoError(t, err)
		require.Equal(t, "Firefox", d.Browser)
		require.True(t, d.SupportsSimulcast)
		require.True(t, d.ReverseSimulcastOrder)
		require.True(t, d.RequiresSDPMunging)
		require.False(t, d.SupportsSVCFor(types.CodecVP9))
	})

	t.Run("safari svc is vp9 only", func(t *testing.T) {
		d, err := Resolve(uaSafari17)
		require.NoError(t, err)
		require.True(t, d.SupportsSimulcast)
		require.True(t, d.SupportsSVCFor(types.CodecVP9))
		require.False(t, d.SupportsSVCFor(types.CodecAV1))
		require.True(t, d.RequiresSDPMunging)
	})

	t.Run("old safari has no simulcast", func(t *testing.T) {
		d, err := Resolve(uaSafari13)
		require.NoError(t, err)
		require.False(t, d.SupportsSimulcast)
		require.Empty(t, d.SVCCodecs)
	})

	t.Run("unknown engine gets the conservative profile", func(t *testing.T) {
		d, err := Resolve(uaCurl)
		require.NoError(t, err)
		require.False(t, d.SupportsSimulcast)
		require.False(t, d.SupportsScalabilityMode)
		require.False(t, d.SupportsSourceMultiplexing)
	})
}

func TestAtLeast(t *testing.T) {
	require.True(t, atLeast("111", "111"))
	require.True(t, atLeast("120.0.1", "111"))
	require.False(t, atLeast("99.0.4844", "111"))
	require.True(t, atLeast("16.4", "16.4"))
	require.False(t, atLeast("16.3", "16.4"))
	require.False(t, atLeast("", "111"))
	require.False(t, atLeast("not-a-version", "111"))
}
