package rtc

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// MediaSourceOrder captures, per media section, the pieces of the session
// description the planner cares about: the SIM group SSRC order and the
// announced simulcast rids.
type MediaSourceOrder struct {
	Mid       string
	SIMGroups [][]uint32
	RIDs      []string
}

// ParseSourceOrder extracts SIM group and rid ordering from a session
// description.
func ParseSourceOrder(description string) ([]MediaSourceOrder, error) {
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(description)); err != nil {
		return nil, errors.Wrap(err, "could not parse session description")
	}

	var orders []MediaSourceOrder
	for _, media := range parsed.MediaDescriptions {
		if media.MediaName.Media != "video" {
			continue
		}

		order := MediaSourceOrder{}
		for _, attr := range media.Attributes {
			switch attr.Key {
			case "mid":
				order.Mid = attr.Value
			case "ssrc-group":
				fields := strings.Fields(attr.Value)
				if len(fields) < 2 || fields[0] != "SIM" {
					continue
				}
				group := make([]uint32, 0, len(fields)-1)
				for _, f := range fields[1:] {
					ssrc, err := strconv.ParseUint(f, 10, 32)
					if err != nil {
						return nil, errors.Wrapf(ErrInvalidSSRC, "%q in SIM group", f)
					}
					group = append(group, uint32(ssrc))
				}
				order.SIMGroups = append(order.SIMGroups, group)
			case "rid":
				fields := strings.Fields(attr.Value)
				if len(fields) > 0 {
					order.RIDs = append(order.RIDs, fields[0])
				}
			}
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// PreserveSSRCOrder keeps the SIM group SSRC ordering from a previous
// offer/answer cycle whenever the current description carries the same set
// of SSRCs in a different order. Some engines associate simulcast layers by
// position, so reordering between cycles would silently cross the layers.
func PreserveSSRCOrder(previous []MediaSourceOrder, current []MediaSourceOrder) []MediaSourceOrder {
	prevByMid := make(map[string]MediaSourceOrder, len(previous))
	for _, order := range previous {
		prevByMid[order.Mid] = order
	}

	result := make([]MediaSourceOrder, len(current))
	for i, order := range current {
		result[i] = order
		prev, ok := prevByMid[order.Mid]
		if !ok {
			continue
		}
		for gi, group := range order.SIMGroups {
			for _, prevGroup := range prev.SIMGroups {
				if sameSSRCSet(group, prevGroup) {
					result[i].SIMGroups[gi] = prevGroup
					break
				}
			}
		}
	}
	return result
}

func sameSSRCSet(a []uint32, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uint32]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}
