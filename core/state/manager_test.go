package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"lineledger/core/types"
	"lineledger/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestPositionRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	id := common.HexToHash("0xbeef")
	if _, ok, err := mgr.Position(id); err != nil || ok {
		t.Fatalf("expected missing position, ok=%v err=%v", ok, err)
	}
	pos := types.NewPosition(id)
	pos.Status = types.PositionOpen
	pos.Principal = big.NewInt(80)
	pos.PrincipalValue = decimal.RequireFromString("160.5")
	pos.Queue = 3
	if err := mgr.PutPosition(pos); err != nil {
		t.Fatalf("put position: %v", err)
	}
	loaded, ok, err := mgr.Position(id)
	if err != nil || !ok {
		t.Fatalf("load position: ok=%v err=%v", ok, err)
	}
	if loaded.Status != types.PositionOpen || loaded.Principal.Cmp(big.NewInt(80)) != 0 || loaded.Queue != 3 {
		t.Fatalf("unexpected position %+v", loaded)
	}
	if !loaded.PrincipalValue.Equal(decimal.RequireFromString("160.5")) {
		t.Fatalf("unexpected principal value %s", loaded.PrincipalValue)
	}
	if loaded.TotalInterestEarned == nil || loaded.TotalInterestEarned.Sign() != 0 {
		t.Fatalf("expected zero total interest, got %v", loaded.TotalInterestEarned)
	}
}

func TestLineNullableModules(t *testing.T) {
	mgr := newTestManager(t)
	line := &types.Line{ID: common.HexToAddress("0x10"), Status: types.LineActive}
	if err := mgr.PutLine(line); err != nil {
		t.Fatalf("put line: %v", err)
	}
	loaded, ok, err := mgr.Line(line.ID)
	if err != nil || !ok {
		t.Fatalf("load line: ok=%v err=%v", ok, err)
	}
	if loaded.Escrow != nil || loaded.Spigot != nil {
		t.Fatalf("expected unset modules to stay nil, got %+v", loaded)
	}
	if loaded.Status != types.LineActive {
		t.Fatalf("unexpected status %v", loaded.Status)
	}
}

func TestAppendEventIsReplaySafe(t *testing.T) {
	mgr := newTestManager(t)
	evt := &types.Event{ID: "credit.borrow-0x01-1", Type: "credit.borrow", Attributes: map[string]string{"amount": "80"}}
	inserted, err := mgr.AppendEvent(evt)
	if err != nil || !inserted {
		t.Fatalf("first append: inserted=%v err=%v", inserted, err)
	}
	replay := &types.Event{ID: evt.ID, Type: evt.Type, Attributes: map[string]string{"amount": "999"}}
	inserted, err = mgr.AppendEvent(replay)
	if err != nil || inserted {
		t.Fatalf("replay append: inserted=%v err=%v", inserted, err)
	}
	stored, ok, err := mgr.Event(evt.ID)
	if err != nil || !ok {
		t.Fatalf("load event: %v", err)
	}
	if stored.Attr("amount") != "80" {
		t.Fatalf("expected original record to survive replay, got %s", stored.Attr("amount"))
	}
	if _, err := mgr.AppendEvent(&types.Event{}); err == nil {
		t.Fatalf("expected missing id to be rejected")
	}

	count := 0
	if err := mgr.Events("credit.", func(*types.Event) bool { count++; return true }); err != nil {
		t.Fatalf("events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one record, got %d", count)
	}
}

func TestCursor(t *testing.T) {
	mgr := newTestManager(t)
	if _, ok, err := mgr.Cursor(); err != nil || ok {
		t.Fatalf("expected empty cursor, ok=%v err=%v", ok, err)
	}
	if err := mgr.SetCursor(120, 4); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	cursor, ok, err := mgr.Cursor()
	if err != nil || !ok {
		t.Fatalf("cursor: ok=%v err=%v", ok, err)
	}
	if cursor.Block != 120 || cursor.LogIndex != 4 {
		t.Fatalf("unexpected cursor %+v", cursor)
	}
	if cursor.After(120, 4) || cursor.After(119, 9) {
		t.Fatalf("expected applied positions to be rejected")
	}
	if !cursor.After(120, 5) || !cursor.After(121, 0) {
		t.Fatalf("expected later positions to be accepted")
	}
}

func TestScopedIteration(t *testing.T) {
	mgr := newTestManager(t)
	escrowA := common.HexToAddress("0xa")
	escrowB := common.HexToAddress("0xb")
	token := common.HexToAddress("0xc")
	for _, escrow := range []common.Address{escrowA, escrowB} {
		dep := &types.EscrowDeposit{ID: types.PairID(escrow, token), Escrow: escrow, Token: token, Amount: big.NewInt(1)}
		if err := mgr.PutEscrowDeposit(dep); err != nil {
			t.Fatalf("put deposit: %v", err)
		}
	}
	var seen []common.Address
	if err := mgr.EscrowDeposits(escrowA, func(d *types.EscrowDeposit) bool {
		seen = append(seen, d.Escrow)
		return true
	}); err != nil {
		t.Fatalf("iterate deposits: %v", err)
	}
	if len(seen) != 1 || seen[0] != escrowA {
		t.Fatalf("unexpected deposits %v", seen)
	}
}

func TestWatchedSet(t *testing.T) {
	mgr := newTestManager(t)
	if addrs, err := mgr.Watched(); err != nil || len(addrs) != 0 {
		t.Fatalf("expected empty watched set, got %v err=%v", addrs, err)
	}
	want := []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2")}
	if err := mgr.PutWatched(want); err != nil {
		t.Fatalf("put watched: %v", err)
	}
	got, err := mgr.Watched()
	if err != nil || len(got) != 2 || got[1] != want[1] {
		t.Fatalf("unexpected watched set %v err=%v", got, err)
	}
}

func TestScannedMarker(t *testing.T) {
	mgr := newTestManager(t)
	if _, ok, err := mgr.Scanned(); err != nil || ok {
		t.Fatalf("expected no scan marker on a fresh store, ok=%v err=%v", ok, err)
	}
	if err := mgr.SetScanned(1234); err != nil {
		t.Fatalf("set scanned: %v", err)
	}
	block, ok, err := mgr.Scanned()
	if err != nil || !ok || block != 1234 {
		t.Fatalf("unexpected scan marker %d ok=%v err=%v", block, ok, err)
	}
}
