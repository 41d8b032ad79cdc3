package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, "file", cfg.Exporter)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "stackforge", cfg.ServiceName)
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "noop")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterRequiresPath(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.Error(t, err)
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.ErrorContains(t, err, "unsupported exporter")
}

func readRecords(t *testing.T, path string) []SpanRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []SpanRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec SpanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestCompositionHooks_WritesSpans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "traces.jsonl")

	provider, err := NewProvider(Config{
		Enabled:     true,
		Exporter:    "file",
		FilePath:    path,
		SampleRate:  1.0,
		ServiceName: "test",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	hooks := NewCompositionHooks(provider.Tracer())
	ctx := hooks.OnCompositionStart(context.Background(), "run-1", "app", "sequential", 2)

	unitCtx := hooks.OnUnitStart(ctx, "run-1", "model")
	hooks.OnUnitComplete(unitCtx, "run-1", "model", true, time.Millisecond, nil)

	unitCtx = hooks.OnUnitStart(ctx, "run-1", "api")
	hooks.OnUnitComplete(unitCtx, "run-1", "api", false, time.Millisecond, errors.New("boom"))

	hooks.OnRollback(ctx, "run-1", "file-delete", "model.go", nil)
	hooks.OnCompositionComplete(ctx, "run-1", "rolled-back", time.Millisecond, errors.New("boom"))

	require.NoError(t, provider.Shutdown(context.Background()))

	records := readRecords(t, path)
	require.Len(t, records, 3)

	byName := make(map[string]SpanRecord, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}

	root := byName["composition.app"]
	require.Equal(t, "ERROR", root.Status)
	require.Equal(t, "run-1", root.Attributes[AttrRunID])
	require.Len(t, root.Events, 2, "rollback event plus recorded error")

	model := byName["generator.model"]
	require.Equal(t, "OK", model.Status)
	require.Equal(t, root.SpanID, model.ParentSpanID)
	require.Equal(t, root.TraceID, model.TraceID)

	require.Equal(t, "ERROR", byName["generator.api"].Status)
}
