package exports

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lineledger/core/types"
)

func sampleRecord(id string) *types.Event {
	return &types.Event{
		ID:        id,
		Type:      "credit.borrowed",
		Block:     42,
		Timestamp: 1700000000,
		TxHash:    common.HexToHash("0xfeed"),
		LogIndex:  3,
		Contract:  common.HexToAddress("0x11"),
		Attributes: map[string]string{
			"line":   types.AddressKey(common.HexToAddress("0x11")),
			"amount": "150",
		},
	}
}

func TestRecordsCSV(t *testing.T) {
	data, checksum, err := RecordsCSV([]*types.Event{sampleRecord("a"), nil})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	sum := sha256.Sum256(data)
	if checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum does not cover payload")
	}
	output := string(data)
	if !strings.HasPrefix(output, "id,type,block,timestamp,tx_hash,log_index,contract,line,position,attributes") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, "2023-11-14T22:13:20Z") || strings.Count(output, "\n") != 2 {
		t.Fatalf("unexpected rows: %s", output)
	}
}

func TestRecordsJSONL(t *testing.T) {
	data, checksum, err := RecordsJSONL([]*types.Event{sampleRecord("a"), sampleRecord("b")})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "\"id\":\"b\"") {
		t.Fatalf("unexpected payload: %s", data)
	}
	if !strings.Contains(lines[0], "\"amount\":\"150\"") {
		t.Fatalf("missing attributes: %s", lines[0])
	}
}
