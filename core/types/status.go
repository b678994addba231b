package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// LineStatus is the lifecycle state of a credit line.
type LineStatus uint8

const (
	LineUninitialized LineStatus = iota
	LineActive
	LineLiquidatable
	LineRepaid
	LineInsolvent
	LineDefault
)

var lineStatusLabels = map[LineStatus]string{
	LineUninitialized: "UNINITIALIZED",
	LineActive:        "ACTIVE",
	LineLiquidatable:  "LIQUIDATABLE",
	LineRepaid:        "REPAID",
	LineInsolvent:     "INSOLVENT",
	LineDefault:       "DEFAULT",
}

// lineStatusCodes maps the on-chain status enum to a label. DEFAULT has no
// code; it is only reachable through the Default event.
var lineStatusCodes = map[uint64]LineStatus{
	0: LineUninitialized,
	1: LineActive,
	2: LineLiquidatable,
	3: LineRepaid,
	4: LineInsolvent,
}

// LineStatusFromCode resolves a reported status code. Unknown codes return
// false and must not mutate the line.
func LineStatusFromCode(code uint64) (LineStatus, bool) {
	status, ok := lineStatusCodes[code]
	return status, ok
}

func (s LineStatus) String() string {
	if label, ok := lineStatusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("LineStatus(%d)", uint8(s))
}

// rank orders states for the forward-only rule. The three settlement states
// share a rank so a line may move between them.
func (s LineStatus) rank() int {
	switch s {
	case LineUninitialized:
		return 0
	case LineActive:
		return 1
	case LineLiquidatable, LineRepaid, LineInsolvent:
		return 2
	case LineDefault:
		return 3
	default:
		return -1
	}
}

// Terminal reports whether no further transition is accepted.
func (s LineStatus) Terminal() bool { return s == LineDefault }

// CanTransition reports whether the status may move from s to next. Same-state
// updates are accepted as no-ops.
func (s LineStatus) CanTransition(next LineStatus) bool {
	if s.Terminal() {
		return next == s
	}
	if next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

func (s LineStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *LineStatus) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	for status, candidate := range lineStatusLabels {
		if candidate == label {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown line status %q", label)
}

// PositionStatus is the lifecycle state of a lender position.
type PositionStatus uint8

const (
	PositionProposed PositionStatus = iota
	PositionOpen
	PositionClosed
)

var positionStatusLabels = map[PositionStatus]string{
	PositionProposed: "PROPOSED",
	PositionOpen:     "OPEN",
	PositionClosed:   "CLOSED",
}

func (s PositionStatus) String() string {
	if label, ok := positionStatusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("PositionStatus(%d)", uint8(s))
}

func (s PositionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PositionStatus) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	for status, candidate := range positionStatusLabels {
		if candidate == label {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown position status %q", label)
}

// QueueIndex is a slot in a line's repayment queue.
type QueueIndex int32

// NotInQueue marks a position that is absent from the repayment queue.
const NotInQueue QueueIndex = -1

// Queued reports whether the index refers to a real slot.
func (q QueueIndex) Queued() bool { return q >= 0 }

// MaxRateBps caps decoded rate arguments. Rates are stored as basis points and
// anything wider than 32 bits is treated as corrupt input.
const MaxRateBps = 1<<32 - 1

// RateBps narrows a decoded uint128 rate into basis points, clamping values
// that do not fit.
func RateBps(v *big.Int) uint32 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	n, overflow := uint256.FromBig(v)
	if overflow || !n.IsUint64() || n.Uint64() > MaxRateBps {
		return MaxRateBps
	}
	return uint32(n.Uint64())
}
