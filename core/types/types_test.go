package types

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "lineledger/core/errors"
)

func TestLineStatusFromCode(t *testing.T) {
	cases := map[uint64]LineStatus{
		0: LineUninitialized,
		1: LineActive,
		2: LineLiquidatable,
		3: LineRepaid,
		4: LineInsolvent,
	}
	for code, want := range cases {
		got, ok := LineStatusFromCode(code)
		if !ok || got != want {
			t.Fatalf("code %d: got %v ok=%v, want %v", code, got, ok, want)
		}
	}
	if _, ok := LineStatusFromCode(5); ok {
		t.Fatalf("expected code 5 to be unknown")
	}
}

func TestLineStatusTransitions(t *testing.T) {
	if !LineUninitialized.CanTransition(LineActive) {
		t.Fatalf("expected UNINITIALIZED -> ACTIVE")
	}
	if LineActive.CanTransition(LineUninitialized) {
		t.Fatalf("expected ACTIVE -> UNINITIALIZED to be rejected")
	}
	if !LineLiquidatable.CanTransition(LineRepaid) {
		t.Fatalf("expected settlement states to interchange")
	}
	for _, from := range []LineStatus{LineUninitialized, LineActive, LineLiquidatable, LineRepaid, LineInsolvent} {
		if !from.CanTransition(LineDefault) {
			t.Fatalf("expected %v -> DEFAULT", from)
		}
	}
	if LineDefault.CanTransition(LineActive) {
		t.Fatalf("DEFAULT must be terminal")
	}
}

func TestStatusJSONUsesLabels(t *testing.T) {
	raw, err := json.Marshal(struct {
		Line     LineStatus     `json:"line"`
		Position PositionStatus `json:"position"`
	}{LineLiquidatable, PositionOpen})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"line":"LIQUIDATABLE","position":"OPEN"}` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	var decoded struct {
		Line     LineStatus     `json:"line"`
		Position PositionStatus `json:"position"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Line != LineLiquidatable || decoded.Position != PositionOpen {
		t.Fatalf("unexpected decode %+v", decoded)
	}
}

func TestRateBpsClamps(t *testing.T) {
	if got := RateBps(big.NewInt(1250)); got != 1250 {
		t.Fatalf("expected 1250, got %d", got)
	}
	if got := RateBps(nil); got != 0 {
		t.Fatalf("expected 0 for nil, got %d", got)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 127)
	if got := RateBps(huge); got != MaxRateBps {
		t.Fatalf("expected clamp, got %d", got)
	}
}

func TestEventID(t *testing.T) {
	tx := common.HexToHash("0xABCDEF")
	got := EventID("credit.borrow", tx, 7)
	want := "credit.borrow-0x0000000000000000000000000000000000000000000000000000000000abcdef-7"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestAttachPositionDeduplicates(t *testing.T) {
	line := &Line{}
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")
	if !line.AttachPosition(a) || !line.AttachPosition(b) {
		t.Fatalf("expected new ids to attach")
	}
	if line.AttachPosition(a) {
		t.Fatalf("expected duplicate attach to be ignored")
	}
	if len(line.Positions) != 2 || line.Positions[0] != a {
		t.Fatalf("unexpected positions %v", line.Positions)
	}
}

func TestChainEventAccessors(t *testing.T) {
	evt := &ChainEvent{
		Kind: KindBorrow,
		Params: map[string]any{
			"id":      "0x11" + strings.Repeat("0", 62),
			"amount":  uint64(80),
			"lender":  "0x00000000000000000000000000000000000000aa",
			"flag":    true,
			"func":    []byte{0xde, 0xad, 0xbe, 0xef},
			"bad":     3.14,
			"nothing": nil,
		},
	}
	if _, err := evt.Hash("id"); err != nil {
		t.Fatalf("hash: %v", err)
	}
	amount, err := evt.BigInt("amount")
	if err != nil || amount.Int64() != 80 {
		t.Fatalf("amount: %v %v", amount, err)
	}
	lender, err := evt.Address("lender")
	if err != nil || lender != common.HexToAddress("0xaa") {
		t.Fatalf("lender: %v %v", lender, err)
	}
	if ok, err := evt.Bool("flag"); err != nil || !ok {
		t.Fatalf("flag: %v %v", ok, err)
	}
	if sel, err := evt.Bytes4("func"); err != nil || sel != [4]byte{0xde, 0xad, 0xbe, 0xef} {
		t.Fatalf("func: %x %v", sel, err)
	}
	for _, name := range []string{"bad", "nothing", "absent"} {
		if _, err := evt.BigInt(name); !errors.Is(err, ledgererrors.ErrMalformedEvent) {
			t.Fatalf("%s: expected ErrMalformedEvent, got %v", name, err)
		}
	}
}
