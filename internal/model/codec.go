package model

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

// EncodeFlow serializes a FlowRecord as a 4-byte big-endian length prefix
// followed by its gob encoding.
func EncodeFlow(f *FlowRecord) ([]byte, error) {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(f); err != nil {
		return nil, fmt.Errorf("encode flow: %w", err)
	}

	out := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(out[:4], uint32(body.Len()))
	copy(out[4:], body.Bytes())
	return out, nil
}

// DecodeFlow reads a single length-prefixed gob-encoded FlowRecord from r.
func DecodeFlow(r io.Reader) (*FlowRecord, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read flow body: %w", err)
	}

	var f FlowRecord
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &f, nil
}

// DecodeFlowBytes decodes a single length-prefixed message already held
// entirely in memory (the common case for a bus message payload).
func DecodeFlowBytes(data []byte) (*FlowRecord, error) {
	return DecodeFlow(bytes.NewReader(data))
}

// EncodeJSON marshals a FlowSummary to the same flat JSON document the
// document sink writes, for republishing onto the output topic: the topic
// carries the identical document, not a re-encoding of it.
func (s *FlowSummary) EncodeJSON() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return data, nil
}

// DecodeSummaryJSON parses a flow summary document back out of its JSON form.
func DecodeSummaryJSON(data []byte) (*FlowSummary, error) {
	var s FlowSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &s, nil
}
