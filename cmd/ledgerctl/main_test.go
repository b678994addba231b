package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/state"
	"lineledger/core/types"
	"lineledger/native/positionid"
	"lineledger/storage"
)

func TestDeriveMatchesLocalComputation(t *testing.T) {
	line := common.HexToAddress("0x1")
	lender := common.HexToAddress("0x2")
	token := common.HexToAddress("0x3")
	var out bytes.Buffer
	err := runDerive([]string{"-line", line.Hex(), "-lender", lender.Hex(), "-token", token.Hex()}, &out)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	want, _ := positionid.Compute(line, lender, token)
	if strings.TrimSpace(out.String()) != types.HashKey(want) {
		t.Fatalf("unexpected id %q", out.String())
	}
	if err := runDerive([]string{"-line", "nope"}, &out); err == nil {
		t.Fatalf("expected invalid address to fail")
	}
}

func memState(t *testing.T) *state.Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return state.NewManager(db)
}

func TestExportFiltersByLine(t *testing.T) {
	mgr := memState(t)
	line := common.HexToAddress("0x10")
	for i, l := range []common.Address{line, common.HexToAddress("0x20")} {
		_, err := mgr.AppendEvent(&types.Event{
			ID:         types.EventID("credit.borrowed", common.HexToHash("0x01"), uint(i)),
			Type:       "credit.borrowed",
			Attributes: map[string]string{"line": types.AddressKey(l)},
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var out bytes.Buffer
	if err := exportRecords(mgr, &out, "credit.", line.Hex(), "jsonl"); err != nil {
		t.Fatalf("export: %v", err)
	}
	if lines := strings.Count(strings.TrimSpace(out.String()), "\n") + 1; lines != 1 {
		t.Fatalf("expected one record, got %d: %s", lines, out.String())
	}
	if err := exportRecords(mgr, &out, "", "", "xml"); err == nil {
		t.Fatalf("expected unsupported format to fail")
	}
}

func TestShowEntity(t *testing.T) {
	mgr := memState(t)
	token := common.HexToAddress("0x70")
	if err := mgr.PutToken(&types.Token{Address: token, Symbol: "USDC", Decimals: 6}); err != nil {
		t.Fatalf("put token: %v", err)
	}
	var out bytes.Buffer
	if err := showEntity(mgr, &out, "token", token.Hex()); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), `"symbol": "USDC"`) {
		t.Fatalf("unexpected output %s", out.String())
	}
	if err := showEntity(mgr, &out, "position", "0x01"); err == nil {
		t.Fatalf("expected missing position to fail")
	}
}
