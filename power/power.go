// Package power implements the per-slot radio power policy: the decision
// of whether the radio should be on, off, or woken briefly to check for
// traffic, for the slot the node has just entered. Grounded on the
// teacher's NMT state-driven bus on/off toggling (pkg/node/controller.go),
// generalized from "follow NMT state" to "follow slot ownership and queue
// occupancy" (spec.md §4.2, P10).
package power

import "github.com/gocrankshaft/rdc/config"

// Decision is the action the slot clock's boundary handler should take.
type Decision int

const (
	// RadioOff means nothing in this slot concerns this node; turn the
	// radio off (or leave it off) to save power.
	RadioOff Decision = iota
	// RadioOn means the node has outgoing traffic queued for this slot's
	// owner and must key the radio (after contention) right away.
	RadioOn
	// RadioStall means this is a slot the node only listens on (its own
	// slot, or the broadcast slot) with no outgoing traffic of its own:
	// wait out the contention window before asserting the radio on, so a
	// potentially contending sender's frame isn't missed and the radio
	// isn't keyed on before there's anything to hear.
	RadioStall
	// RadioCheck means the node should wake briefly to sense the channel
	// (a CCA) without committing to a full receive window, used for the
	// optional wake-on-advertise probe (config.Config.AdvertiseWakeInterval).
	RadioCheck
)

func (d Decision) String() string {
	switch d {
	case RadioOff:
		return "OFF"
	case RadioOn:
		return "ON"
	case RadioStall:
		return "STALL"
	case RadioCheck:
		return "CHECK"
	default:
		return "UNKNOWN"
	}
}

// Decide picks the power action for the slot a node has just entered.
//
//   - own reports whether the node owns this slot (it is the slot's
//     receiver and must listen for unicasts addressed to it).
//   - broadcast reports whether this is the broadcast slot.
//   - pending reports whether this node has at least one frame queued to
//     transmit in this slot (it becomes the transmitter and must key the
//     radio regardless of ownership).
//
// The policy mirrors spec.md §4.2: ON if traffic is queued for this slot
// (this node is the transmitter, contention handles the rest); STALL if
// the node only owns the slot or it's the broadcast slot, with nothing of
// its own queued (wait out the contention window, then listen); CHECK if
// wake-on-advertise is enabled and neither holds, to catch unscheduled
// traffic; OFF otherwise.
func Decide(cfg config.Config, own, broadcast, pending bool) Decision {
	if pending {
		return RadioOn
	}
	if own || broadcast {
		return RadioStall
	}
	if cfg.AdvertiseWakeInterval {
		return RadioCheck
	}
	return RadioOff
}
