package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/executor"
	"github.com/teranos/flowstate/logger"
)

// useConfig points the commands at a fresh SQLite file with small log chunks.
func useConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := fmt.Sprintf(`
[database]
driver = "sqlite3"
path = %q

[store]
encoding = "zstd"
log_chunk_size = 8
`, filepath.Join(dir, "flows.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ConfigPath = path
	t.Cleanup(func() { ConfigPath = "" })
	return dir
}

// run invokes a command's RunE with captured output.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func seedFlow(t *testing.T) int64 {
	t.Helper()
	loader, _, closeDB, err := openLoader()
	require.NoError(t, err)
	defer closeDB()

	ctx := context.Background()
	flow := &executor.Flow{ProjectID: 7, ProjectName: "warehouse", FlowID: "load", Version: 2, SubmitUser: "kim"}
	id, err := loader.Flows.Create(ctx, flow)
	require.NoError(t, err)
	require.Equal(t, executor.StatusPreparing, flow.Status)

	flow.Status = executor.StatusRunning
	flow.StartTime = time.Now()
	require.NoError(t, loader.Flows.Update(ctx, flow))
	return id
}

func TestParseExecID(t *testing.T) {
	id, err := parseExecID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		_, err := parseExecID(bad)
		assert.True(t, errors.IsInvalidRequestError(err), bad)
	}
}

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("after", "")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseTimeFlag("after", "2026-02-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), got)

	got, err = parseTimeFlag("after", "2026-02-03T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())

	_, err = parseTimeFlag("after", "yesterday")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestWriteFormatted(t *testing.T) {
	v := map[string]any{"encoding": "gzip"}
	for format, want := range map[string]string{
		"json": `"encoding": "gzip"`,
		"yaml": "encoding: gzip",
		"toml": "encoding = 'gzip'",
	} {
		var buf bytes.Buffer
		require.NoError(t, writeFormatted(&buf, format, v), format)
		assert.Contains(t, buf.String(), want, format)
	}

	err := writeFormatted(&bytes.Buffer{}, "xml", v)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestHistoryFilterFromFlags(t *testing.T) {
	t.Cleanup(func() { histStatus, histAfter, histProject = "", "", 0 })

	histProject, histStatus, histAfter = 3, "failed", "2026-01-01"
	filter, err := historyFilter()
	require.NoError(t, err)
	assert.Equal(t, 3, filter.ProjectID)
	assert.Equal(t, executor.StatusFailed, filter.Status)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), filter.StartedAfter)

	histStatus = "EXPLODED"
	_, err = historyFilter()
	assert.Error(t, err)
}

func TestAmShow(t *testing.T) {
	useConfig(t)
	t.Cleanup(func() { configFormat = "toml" })

	configFormat = "json"
	out, err := run(t, amShowCmd)
	require.NoError(t, err)

	var shown map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "zstd", shown["store"]["encoding"])
	assert.Equal(t, float64(8), shown["store"]["log_chunk_size"])
}

func TestAmInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	targetFile = path
	t.Cleanup(func() { targetFile, forceInit = "", false })

	_, err := run(t, amInitCmd)
	require.NoError(t, err)

	_, err = run(t, amInitCmd)
	assert.True(t, errors.IsInvalidRequestError(err))

	forceInit = true
	_, err = run(t, amInitCmd)
	require.NoError(t, err)
	_, err = os.Stat(path + ".back1")
	assert.NoError(t, err)
}

func TestFlowsShowAndCount(t *testing.T) {
	useConfig(t)
	id := seedFlow(t)
	seedFlow(t)

	out, err := run(t, flowsShowCmd, fmt.Sprint(id))
	require.NoError(t, err)
	var flow executor.Flow
	require.NoError(t, json.Unmarshal([]byte(out), &flow))
	assert.Equal(t, id, flow.ExecID)
	assert.Equal(t, "load", flow.FlowID)
	assert.Equal(t, executor.StatusRunning, flow.Status)

	_, err = run(t, flowsShowCmd, "999")
	assert.True(t, errors.IsNotFoundError(err))

	t.Cleanup(func() { countProject, countFlow, countJob = 0, "", "" })
	out, err = run(t, flowsCountCmd)
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	countProject, countFlow = 7, "load"
	out, err = run(t, flowsCountCmd)
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	countJob = "extract"
	_, err = run(t, flowsCountCmd)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestLogsUploadAndFetch(t *testing.T) {
	dir := useConfig(t)
	id := seedFlow(t)

	first := filepath.Join(dir, "out.log")
	second := filepath.Join(dir, "err.log")
	require.NoError(t, os.WriteFile(first, []byte("rows loaded: 120\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("done\n"), 0644))

	t.Cleanup(func() {
		logAttempt, logGeneration, logStart, logLength, uploadRerun = 0, -1, 0, executor.DefaultChunkSize, false
	})
	logGeneration, logStart, logLength = -1, 0, 1024

	_, err := run(t, logsUploadCmd, fmt.Sprint(id), "load", first, second)
	require.NoError(t, err)

	out, err := run(t, logsFetchCmd, fmt.Sprint(id), "load")
	require.NoError(t, err)
	assert.Equal(t, "rows loaded: 120\ndone\n", out)

	logStart, logLength = 5, 6
	out, err = run(t, logsFetchCmd, fmt.Sprint(id), "load")
	require.NoError(t, err)
	assert.Equal(t, "loaded", out)

	// A rerun goes to a new generation and becomes the latest
	require.NoError(t, os.WriteFile(first, []byte("retry ok\n"), 0644))
	uploadRerun = true
	_, err = run(t, logsUploadCmd, fmt.Sprint(id), "load", first)
	require.NoError(t, err)

	logStart, logLength = 0, 1024
	out, err = run(t, logsFetchCmd, fmt.Sprint(id), "load")
	require.NoError(t, err)
	assert.Equal(t, "retry ok\n", out)

	logGeneration = 0
	out, err = run(t, logsFetchCmd, fmt.Sprint(id), "load")
	require.NoError(t, err)
	assert.Equal(t, "rows loaded: 120\ndone\n", out)

	logGeneration = -1
	_, err = run(t, logsFetchCmd, fmt.Sprint(id), "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestVersionJSON(t *testing.T) {
	require.NoError(t, VersionCmd.Flags().Set("json", "true"))
	t.Cleanup(func() { _ = VersionCmd.Flags().Set("json", "false") })

	out, err := run(t, VersionCmd)
	require.NoError(t, err)
	assert.Contains(t, out, `"schema_version": "004"`)
}

func TestOpenLoaderNamesComponentLoggers(t *testing.T) {
	useConfig(t)
	core, logs := observer.New(zap.DebugLevel)
	prev := logger.Logger
	logger.Logger = zap.New(core).Sugar()
	t.Cleanup(func() { logger.Logger = prev })

	id := seedFlow(t)

	created := logs.FilterMessage("Execution created").All()
	require.Len(t, created, 1)
	assert.Equal(t, "executor", created[0].LoggerName)
	assert.Equal(t, id, created[0].ContextMap()[logger.FieldExecID])

	opened := logs.FilterMessage("Database opened successfully").All()
	require.NotEmpty(t, opened)
	assert.Equal(t, "db", opened[0].LoggerName)
}
