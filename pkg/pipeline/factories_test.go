package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/engine"
)

func TestFactoriesSkipDisabledPipelines(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	factories := Factories(cat, nil)
	require.Len(t, factories, 2)
	require.Contains(t, factories, "intra-project-scan")
	require.Contains(t, factories, "schema-enhancement")
	require.NotContains(t, factories, "legacy-import")
}

func TestFactoryBuildsWorkerFromSpec(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	factories := Factories(cat, nil)

	w, err := factories["intra-project-scan"](context.Background())
	require.NoError(t, err)
	require.Equal(t, "intra-project-scan", w.PipelineID())
	require.Equal(t, engine.KindScan, w.Kind())
	stats := w.Stats()
	require.Equal(t, 2, stats.MaxConcurrent)
	require.Equal(t, 32, stats.QueueCapacity)

	// Unset limits fall back to engine defaults.
	w, err = factories["schema-enhancement"](context.Background())
	require.NoError(t, err)
	require.Equal(t, engine.KindTask, w.Kind())
	require.Equal(t, engine.DefaultMaxConcurrent, w.Stats().MaxConcurrent)
}
