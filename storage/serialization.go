// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/transcripts/core"
)

// ManifestEntryMUS encodes core.ManifestEntry in MUS format.
var ManifestEntryMUS = manifestEntryMUS{}

// VectorRecordMUS encodes core.VectorRecord in MUS format.
var VectorRecordMUS = vectorRecordMUS{}

type manifestEntryMUS struct{}

func (s manifestEntryMUS) Marshal(v core.ManifestEntry, bs []byte) (n int) {
	n = ord.String.Marshal(v.Identity, bs)
	n += ord.String.Marshal(v.Fingerprint, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	return n + marshalTime(v.LastIngestedAt, bs[n:])
}

func (s manifestEntryMUS) Unmarshal(bs []byte) (v core.ManifestEntry, n int, err error) {
	v.Identity, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Fingerprint, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.LastIngestedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (s manifestEntryMUS) Size(v core.ManifestEntry) (size int) {
	size = ord.String.Size(v.Identity)
	size += ord.String.Size(v.Fingerprint)
	size += varint.Int.Size(v.ChunkCount)
	return size + sizeTime(v.LastIngestedAt)
}

type vectorRecordMUS struct{}

func (s vectorRecordMUS) Marshal(v core.VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += marshalVector(v.Embedding, bs[n:])
	n += ord.String.Marshal(v.Metadata.Source, bs[n:])
	n += varint.Int.Marshal(v.Metadata.Sequence, bs[n:])
	n += ord.String.Marshal(v.Metadata.Channel, bs[n:])
	n += ord.String.Marshal(v.Metadata.Fingerprint, bs[n:])
	return n + ord.String.Marshal(v.Metadata.Text, bs[n:])
}

func (s vectorRecordMUS) Unmarshal(bs []byte) (v core.VectorRecord, n int, err error) {
	v.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Embedding, n1, err = unmarshalVector(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.Sequence, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.Channel, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.Fingerprint, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (s vectorRecordMUS) Size(v core.VectorRecord) (size int) {
	size = ord.String.Size(v.ID)
	size += sizeVector(v.Embedding)
	size += ord.String.Size(v.Metadata.Source)
	size += varint.Int.Size(v.Metadata.Sequence)
	size += ord.String.Size(v.Metadata.Channel)
	size += ord.String.Size(v.Metadata.Fingerprint)
	return size + ord.String.Size(v.Metadata.Text)
}

// Times are stored as Unix nanoseconds; the zero time is stored as 0.
func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(timeToNanos(t), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	nanos, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || nanos == 0 {
		return time.Time{}, n, err
	}
	return time.Unix(0, nanos).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(timeToNanos(t))
}

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Vectors are a length prefix followed by IEEE-754 bit patterns.
func marshalVector(vec []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(vec), bs)
	for _, f := range vec {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (vec []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length > len(bs)-n {
		return nil, n, ErrTruncatedData
	}
	if length == 0 {
		return nil, n, nil
	}
	vec = make([]float32, length)
	for i := range vec {
		bits, n1, err := varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		vec[i] = math.Float32frombits(bits)
	}
	return vec, n, nil
}

func sizeVector(vec []float32) (size int) {
	size = varint.Int.Size(len(vec))
	for _, f := range vec {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

// MarshalManifestEntry serializes a ManifestEntry to bytes.
func MarshalManifestEntry(entry core.ManifestEntry) []byte {
	buf := make([]byte, ManifestEntryMUS.Size(entry))
	ManifestEntryMUS.Marshal(entry, buf)
	return buf
}

// UnmarshalManifestEntry deserializes a ManifestEntry from bytes.
func UnmarshalManifestEntry(data []byte) (core.ManifestEntry, error) {
	entry, _, err := ManifestEntryMUS.Unmarshal(data)
	if err != nil {
		return core.ManifestEntry{}, fmt.Errorf("%w: manifest entry: %w", ErrSerializationFailed, err)
	}
	return entry, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	buf := make([]byte, VectorRecordMUS.Size(*record))
	VectorRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	record, _, err := VectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: vector record: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}
