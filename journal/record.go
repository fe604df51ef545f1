package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"io"

	"github.com/assetra/marketx/types"
)

var ErrCorruptRecord = errors.New("journal: corrupted record")

// Record is one persisted state transition: an accepted submit, cancel,
// reinstate or settlement transition. One stream per asset, append-only.
type Record struct {
	Sequence  uint64              `json:"sequence"`
	AssetID   string              `json:"asset_id"`
	Op        types.PayloadAction `json:"op"`
	Payload   json.RawMessage     `json:"payload"`
	Timestamp int64               `json:"timestamp"`
}

// EncodeRecord frames the record as [length][body][crc32(body)] so a torn
// tail write is detectable on replay.
func EncodeRecord(rec *Record) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(body)))
	buf.Write(body)
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(body))

	return buf.Bytes(), nil
}

// DecodeRecord reads one framed record. io.EOF marks a clean end of stream;
// ErrCorruptRecord marks a torn or damaged tail.
func DecodeRecord(r io.Reader) (*Record, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, ErrCorruptRecord
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ErrCorruptRecord
	}

	var sum uint32
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return nil, ErrCorruptRecord
	}
	if crc32.ChecksumIEEE(body) != sum {
		return nil, ErrCorruptRecord
	}

	rec := new(Record)
	if err := json.Unmarshal(body, rec); err != nil {
		return nil, ErrCorruptRecord
	}

	return rec, nil
}
