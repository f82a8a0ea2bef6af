package executor

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/teranos/flowstate/codec"
	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/logger"
)

// LogStore keeps log streams as independently compressed, byte-addressed chunks
// so any range can be read without inflating the whole stream.
//
// Each LogKey has a single producer. Writers in this process are serialized
// per key; writers in different processes must not share a key.
type LogStore struct {
	db    *sql.DB
	opts  Options
	locks keyLocks
	now   func() time.Time
}

// NewLogStore creates a chunked log store.
func NewLogStore(db *sql.DB, opts Options) *LogStore {
	return &LogStore{
		db:    db,
		opts:  opts.withDefaults(),
		locks: keyLocks{held: make(map[LogKey]*keyLock)},
		now:   time.Now,
	}
}

const insertLogChunkSQL = `
	INSERT INTO execution_logs (
		exec_id, name, attempt, rerun_generation, enc_type, start_byte, end_byte, log, upload_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Upload streams readers, in order, into chunks of Options.ChunkSize bytes
// starting at byte 0. A short final chunk is written only when non-empty.
// All chunks commit together. Returns the number of bytes stored.
func (s *LogStore) Upload(ctx context.Context, key LogKey, readers ...io.Reader) (int64, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to begin log upload for %s", keyString(key))
	}
	defer tx.Rollback()

	uploadTime := toMillis(s.now())
	buf := make([]byte, s.opts.ChunkSize)
	var (
		pos    int
		cursor int64
		chunks int
	)

	flush := func(n int) error {
		data, err := codec.Encode(buf[:n], s.opts.Encoding)
		if err != nil {
			return errors.NewPersistenceError(err, "failed to encode log chunk at byte %d of %s", cursor, keyString(key))
		}
		if !s.opts.Encoding.Compressed() {
			data = bytes.Clone(data)
		}
		_, err = tx.ExecContext(ctx, insertLogChunkSQL,
			key.ExecID,
			key.Name,
			key.Attempt,
			key.Generation,
			int(s.opts.Encoding),
			cursor,
			cursor+int64(n),
			data,
			uploadTime,
		)
		if err != nil {
			return errors.NewPersistenceError(err, "failed to write log chunk at byte %d of %s", cursor, keyString(key))
		}
		cursor += int64(n)
		chunks++
		return nil
	}

	for _, r := range readers {
		for {
			n, err := io.ReadFull(r, buf[pos:])
			pos += n
			if pos == len(buf) {
				if ferr := flush(pos); ferr != nil {
					return 0, ferr
				}
				pos = 0
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			if err != nil {
				return 0, errors.NewPersistenceError(err, "failed to read log source for %s", keyString(key))
			}
		}
	}
	if pos > 0 {
		if err := flush(pos); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewPersistenceError(err, "failed to commit log for %s", keyString(key))
	}

	s.opts.Logger.Debugw("Log uploaded",
		logger.FieldExecID, key.ExecID,
		logger.FieldLogName, key.Name,
		logger.FieldAttempt, key.Attempt,
		logger.FieldGeneration, key.Generation,
		logger.FieldBytes, cursor,
		logger.FieldChunks, chunks,
	)
	return cursor, nil
}

// UploadFiles opens paths in order and uploads their concatenation.
func (s *LogStore) UploadFiles(ctx context.Context, key LogKey, paths ...string) (int64, error) {
	readers := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to open log file %s", p)
		}
		defer f.Close()
		readers = append(readers, f)
	}
	return s.Upload(ctx, key, readers...)
}

// Fetch reads [startByte, startByte+length) of the latest rerun generation of
// (execID, name, attempt). A stream with no chunks at all is a NotFoundError;
// a window past the written data returns nil, nil.
func (s *LogStore) Fetch(ctx context.Context, execID int64, name string, attempt int, startByte int64, length int) (*LogData, error) {
	gen, err := maxGeneration(ctx, s.db, execID, name, attempt)
	if err != nil {
		return nil, errors.NewPersistenceError(err, "failed to fetch generation of %s attempt %d in execution %d", name, attempt, execID)
	}
	if !gen.Valid {
		return nil, errors.NewNotFoundError("no log recorded for %s attempt %d in execution %d", name, attempt, execID)
	}
	return s.FetchGeneration(ctx, execID, name, attempt, int(gen.Int64), startByte, length)
}

// logChunk is one stored chunk, already inflated.
type logChunk struct {
	start, end int64
	data       []byte
}

var fetchLogChunksQuery = query[logChunk]{
	name: "fetch log chunks",
	sql: `SELECT enc_type, start_byte, end_byte, log FROM execution_logs
		WHERE exec_id = ? AND name = ? AND attempt = ? AND rerun_generation = ?
		  AND end_byte > ? AND start_byte <= ?
		ORDER BY start_byte`,
	scan: func(rows *sql.Rows) (logChunk, error) {
		var (
			c   logChunk
			enc int
			raw []byte
		)
		if err := rows.Scan(&enc, &c.start, &c.end, &raw); err != nil {
			return c, err
		}
		encType, err := codec.FromInt(enc)
		if err != nil {
			return c, err
		}
		if c.data, err = codec.Decode(raw, encType); err != nil {
			return c, err
		}
		if int64(len(c.data)) != c.end-c.start {
			return c, errors.Newf("chunk [%d,%d) inflated to %d bytes", c.start, c.end, len(c.data))
		}
		return c, nil
	},
}

// FetchGeneration is Fetch against an explicit rerun generation.
func (s *LogStore) FetchGeneration(ctx context.Context, execID int64, name string, attempt, generation int, startByte int64, length int) (*LogData, error) {
	if startByte < 0 || length < 0 {
		return nil, errors.NewInvalidRequestError("invalid log window start=%d length=%d", startByte, length)
	}
	endByte := startByte + int64(length)

	chunks, err := runQuery(ctx, s.db, fetchLogChunksQuery, execID, name, attempt, generation, startByte, endByte)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	// The returned bytes must be one contiguous run, so reading stops at the
	// first gap between chunks.
	base := max(startByte, chunks[0].start)
	next := base
	var buf bytes.Buffer
	for _, c := range chunks {
		if c.start > next {
			break
		}
		from := next - c.start
		to := min(endByte, c.end) - c.start
		if to > from {
			buf.Write(c.data[from:to])
			next = c.start + to
		}
	}

	data := buf.Bytes()
	lo, hi := utf8Range(data)
	return &LogData{
		Offset: base + int64(lo),
		Length: hi - lo,
		Data:   data[lo:hi],
	}, nil
}

// DeleteOlderThan removes chunks uploaded before cutoff and returns how many.
func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_logs WHERE upload_time < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, errors.NewPersistenceError(err, "failed to delete logs uploaded before %s", cutoff.Format(time.RFC3339))
	}
	n, err := rowsAffected(res, "log retention")
	if err != nil {
		return 0, err
	}
	s.opts.Logger.Infow("Log retention sweep", logger.FieldCutoff, cutoff.Format(time.RFC3339), logger.FieldCount, n)
	return n, nil
}

func keyString(k LogKey) string {
	name := k.Name
	if name == "" {
		name = "<flow>"
	}
	return fmt.Sprintf("execution %d log %s attempt %d generation %d", k.ExecID, name, k.Attempt, k.Generation)
}

// keyLocks hands out one mutex per LogKey and drops it once unused.
type keyLocks struct {
	mu   sync.Mutex
	held map[LogKey]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyLocks) lock(key LogKey) func() {
	k.mu.Lock()
	l, ok := k.held[key]
	if !ok {
		l = &keyLock{}
		k.held[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}
