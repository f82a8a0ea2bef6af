// Package codec turns execution graphs and property bags into stored blobs.
//
// Every blob is written alongside a small-integer EncodingType tag so plain and
// compressed rows can coexist without a global migration. Values are always
// serialized to JSON first and then optionally compressed.
package codec

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/teranos/flowstate/errors"
)

// EncodingType is the persisted tag describing how a blob was encoded.
type EncodingType int

// Tag values are persisted; never renumber them.
const (
	Plain EncodingType = 1
	Gzip  EncodingType = 2
	Zstd  EncodingType = 3
)

// String returns the lowercase name used in configuration files.
func (e EncodingType) String() string {
	switch e {
	case Plain:
		return "plain"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Compressed reports whether blobs with this tag need inflating.
func (e EncodingType) Compressed() bool {
	return e == Gzip || e == Zstd
}

// FromInt converts a stored tag back to an EncodingType.
func FromInt(v int) (EncodingType, error) {
	e := EncodingType(v)
	switch e {
	case Plain, Gzip, Zstd:
		return e, nil
	}
	return 0, errors.Newf("unknown encoding type %d", v)
}

// ParseEncodingType parses a configuration value such as "gzip".
func ParseEncodingType(s string) (EncodingType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "none", "":
		return Plain, nil
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	}
	return 0, errors.NewInvalidRequestError("unknown encoding %q (supported: plain, gzip, zstd)", s)
}

// The zstd codec objects are safe for concurrent use and expensive to build.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	if zstdEncoder, err = zstd.NewWriter(nil); err != nil {
		panic(errors.Wrap(err, "zstd encoder"))
	}
	if zstdDecoder, err = zstd.NewReader(nil); err != nil {
		panic(errors.Wrap(err, "zstd decoder"))
	}
}

// Encode compresses data according to enc. Plain returns data unchanged.
func Encode(data []byte, enc EncodingType) ([]byte, error) {
	switch enc {
	case Plain:
		return data, nil
	case Gzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, errors.Wrap(err, "gzip write")
		}
		if err := zw.Close(); err != nil {
			return nil, errors.Wrap(err, "gzip close")
		}
		return buf.Bytes(), nil
	case Zstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	}
	return nil, errors.Newf("cannot encode with unknown encoding type %d", int(enc))
}

// Decode reverses Encode. Blobs tagged Plain are returned as-is.
func Decode(data []byte, enc EncodingType) ([]byte, error) {
	switch enc {
	case Plain:
		return data, nil
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "gzip header")
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, errors.Wrap(err, "gzip inflate")
		}
		return out, nil
	case Zstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd inflate")
		}
		return out, nil
	}
	return nil, errors.Newf("cannot decode unknown encoding type %d", int(enc))
}

// EncodeJSON serializes v to JSON and encodes the result.
func EncodeJSON(v any, enc EncodingType) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal json")
	}
	return Encode(raw, enc)
}

// DecodeJSON decodes data and unmarshals the JSON into v.
func DecodeJSON(data []byte, enc EncodingType, v any) error {
	raw, err := Decode(data, enc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, "unmarshal json")
	}
	return nil
}
