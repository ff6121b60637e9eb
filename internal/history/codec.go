package history

import (
	"bytes"
	"encoding/gob"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// encodeRecord serializes a record with encoding/gob. Records are concrete
// structs, so unlike a general value codec no interface indirection is
// needed.
func encodeRecord(rec api.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (api.Record, error) {
	var rec api.Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return api.Record{}, err
	}
	return rec, nil
}
