package executor

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/flowstate/codec"
	fstest "github.com/teranos/flowstate/internal/testing"
)

func newTestLoader(t *testing.T, opts Options) (*Loader, *sql.DB) {
	t.Helper()
	db := fstest.CreateTestDB(t)
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t).Sugar()
	}
	return NewLoader(db, opts), db
}

func createTestFlow(t *testing.T, l *Loader, projectID int, flowID, user string) *Flow {
	t.Helper()
	flow := &Flow{
		ProjectID:   projectID,
		ProjectName: "project-" + flowID,
		FlowID:      flowID,
		Version:     1,
		SubmitUser:  user,
	}
	_, err := l.Flows.Create(context.Background(), flow)
	require.NoError(t, err)
	return flow
}

// pattern returns n bytes of deterministic, non-repeating-per-chunk ASCII.
func pattern(n int) []byte {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b bytes.Buffer
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[(i*7+i/36)%len(alphabet)])
	}
	return b.Bytes()
}

var allEncodings = []codec.EncodingType{codec.Plain, codec.Gzip, codec.Zstd}
