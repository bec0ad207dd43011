package capabilities

import (
	goversion "github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/ua-parser/uap-go/uaparser"

	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

var ErrUnparsableUserAgent = errors.New("could not parse user agent")

// Descriptor captures every engine-dependent decision the media core has to
// make, resolved once at session start and passed by value. Components never
// consult ambient browser state.
type Descriptor struct {
	Browser        string
	BrowserVersion string

	// multi-stream simulcast is available at all
	SupportsSimulcast bool

	// the engine orders simulcast SSRCs high-to-low, so the planner must
	// assign bitrate/scale tiers to layers in reverse
	ReverseSimulcastOrder bool

	// scalabilityMode is honored in setParameters
	SupportsScalabilityMode bool

	// codecs that can run in full-SVC single-stream mode
	SVCCodecs []types.Codec

	// session descriptions need local munging to pin receive-side SSRC order
	RequiresSDPMunging bool

	// receive-only transceivers may be reused for brand-new sources
	SupportsSourceMultiplexing bool
}

// SupportsSVCFor reports whether the codec can be sent as a single SVC stream.
func (d Descriptor) SupportsSVCFor(codec types.Codec) bool {
	for _, c := range d.SVCCodecs {
		if c == codec {
			return true
		}
	}
	return false
}

var defaultParser = uaparser.NewFromSaved()

// Resolve builds a Descriptor from a browser user-agent string. Unknown
// engines get the most conservative profile (no simulcast, no SVC).
func Resolve(userAgent string) (Descriptor, error) {
	client := defaultParser.Parse(userAgent)
	if client == nil || client.UserAgent == nil {
		return Descriptor{}, ErrUnparsableUserAgent
	}

	family := client.UserAgent.Family
	ver := client.UserAgent.ToVersionString()
	d := Descriptor{
		Browser:        family,
		BrowserVersion: ver,
	}

	switch family {
	case "Chrome", "Chrome Mobile", "Chromium", "Edge", "Opera":
		d.SupportsSimulcast = true
		d.SupportsSourceMultiplexing = true
		if atLeast(ver, "111") {
			d.SupportsScalabilityMode = true
			d.SVCCodecs = []types.Codec{types.CodecVP9, types.CodecAV1}
		}
	case "Firefox", "Firefox Mobile":
		d.SupportsSimulcast = true
		// gecko announces simulcast SSRCs in descending quality order
		d.ReverseSimulcastOrder = true
		d.RequiresSDPMunging = true
	case "Safari", "Mobile Safari":
		d.SupportsSimulcast = atLeast(ver, "14")
		d.RequiresSDPMunging = true
		if atLeast(ver, "16.4") {
			d.SupportsScalabilityMode = true
			d.SVCCodecs = []types.Codec{types.CodecVP9}
		}
	}

	return d, nil
}

func atLeast(actual string, minimum string) bool {
	if actual == "" {
		return false
	}
	av, err := goversion.NewVersion(actual)
	if err != nil {
		return false
	}
	mv, err := goversion.NewVersion(minimum)
	if err != nil {
		return false
	}
	return av.GreaterThanOrEqual(mv)
}
