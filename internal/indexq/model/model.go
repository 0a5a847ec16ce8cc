package model

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Record is one logical document. No schema is enforced.
type Record = map[string]interface{}

// MarshalRecords serialises records as a JSON array. Map keys are emitted in sorted order so the
// output is deterministic for a given input.
func MarshalRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// UnmarshalRecords parses a JSON array of records. Numbers are kept as json.Number.
func UnmarshalRecords(b []byte) ([]Record, error) {
	var records []Record
	if err := DecodeJSON(b, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DecodeJSON parses a single JSON value into v. Numbers decoded into interface{} values become json.Number,
// which marshals back to the same digits, so integers beyond 2^53 survive a read and rewrite.
func DecodeJSON(b []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.WithStack(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
