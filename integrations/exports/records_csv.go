package exports

import (
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"lineledger/core/types"
)

// CSVColumns is the header row of RecordsCSV. Attributes are embedded as a
// JSON object in the last column.
var CSVColumns = []string{"id", "type", "block", "timestamp", "tx_hash", "log_index", "contract", "line", "position", "attributes"}

func csvRow(evt *types.Event) ([]string, error) {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, err
	}
	return []string{
		evt.ID,
		evt.Type,
		strconv.FormatUint(evt.Block, 10),
		time.Unix(int64(evt.Timestamp), 0).UTC().Format(time.RFC3339),
		evt.TxHash.Hex(),
		strconv.FormatUint(uint64(evt.LogIndex), 10),
		types.AddressKey(evt.Contract),
		evt.Attr("line"),
		evt.Attr("position"),
		string(attrs),
	}, nil
}

// RecordsCSV renders audit records as CSV with a header row and returns the
// payload with its hex SHA-256 checksum.
func RecordsCSV(records []*types.Event) ([]byte, string, error) {
	out := newDigestWriter()
	w := csv.NewWriter(out)
	if err := w.Write(CSVColumns); err != nil {
		return nil, "", err
	}
	err := each(records, func(evt *types.Event) error {
		row, err := csvRow(evt)
		if err != nil {
			return err
		}
		return w.Write(row)
	})
	if err != nil {
		return nil, "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	data, sum := out.result()
	return data, sum, nil
}
