package executor

import (
	"go.uber.org/zap"

	"github.com/teranos/flowstate/codec"
)

// DefaultChunkSize is the log window flushed as one chunk.
const DefaultChunkSize = 50 * 1024

// Options configures every store built by NewLoader. It is constructed once
// at startup (see am.Config.StoreOptions) and never mutated afterwards.
type Options struct {
	// Encoding is applied to every blob written: payloads, props, attachments, log chunks.
	Encoding codec.EncodingType
	// ChunkSize is the log upload window in bytes.
	ChunkSize int
	// Logger is optional; nil disables store logging.
	Logger *zap.SugaredLogger
}

// DefaultOptions returns gzip encoding with 50 KiB log chunks and no logging.
func DefaultOptions() Options {
	return Options{Encoding: codec.Gzip, ChunkSize: DefaultChunkSize}
}

func (o Options) withDefaults() Options {
	if o.Encoding == 0 {
		o.Encoding = codec.Gzip
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}
