package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestFinishSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := tp.Tracer("test")

	_, succeeded := tr.Start(context.Background(), "GET /api/airtable")
	FinishSpan(succeeded, nil)
	succeeded.End()

	_, failed := tr.Start(context.Background(), "POST /api/airtable")
	FinishSpan(failed, errors.New("HTTP 500"))
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "HTTP 500", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}

func TestFileSpanExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otel", "traces.json")
	exp, err := newFileSpanExporter(path)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tr := tp.Tracer("test")

	ctx, parent := tr.Start(context.Background(), "records.list")
	_, child := tr.Start(ctx, "cache.get")
	child.SetAttributes(attribute.String("cache.key", "airtable:list:10"))
	child.End()
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []spanRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec spanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, records, 2)

	assert.Equal(t, "cache.get", records[0].Name)
	assert.Equal(t, records[1].SpanID, records[0].ParentID)
	assert.Equal(t, records[1].TraceID, records[0].TraceID)
	assert.Equal(t, "airtable:list:10", records[0].Attributes["cache.key"])
	assert.Equal(t, "records.list", records[1].Name)
	assert.Empty(t, records[1].ParentID)
}
