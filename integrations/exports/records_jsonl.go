package exports

import (
	"encoding/json"

	"lineledger/core/types"
)

// RecordsJSONL renders one JSON object per audit record and returns the
// payload with its hex SHA-256 checksum.
func RecordsJSONL(records []*types.Event) ([]byte, string, error) {
	out := newDigestWriter()
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if err := each(records, func(evt *types.Event) error { return enc.Encode(evt) }); err != nil {
		return nil, "", err
	}
	data, sum := out.result()
	return data, sum, nil
}
