package pipeline

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

const sampleCatalog = `
pipelines:
  - id: intra-project-scan
    kind: scan
    command: ["python3", "runners/detect_duplicates.py"]
    max_concurrent: 2
    queue_capacity: 32
    timeout_seconds: 1800
    input_schema:
      type: object
      required: [repository_path]
      properties:
        repository_path:
          type: string
  - id: schema-enhancement
    command: ["python3", "runners/enhance_schema.py"]
    max_retries: 1
  - id: legacy-import
    enabled: false
`

func TestParseCatalogAppliesDefaults(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, cat.Specs(), 3)

	scan, ok := cat.Get("intra-project-scan")
	require.True(t, ok)
	require.True(t, scan.IsScan())
	require.True(t, scan.IsEnabled())
	require.Equal(t, 1800, scan.TimeoutSeconds)

	task, ok := cat.Get("schema-enhancement")
	require.True(t, ok)
	require.False(t, task.IsScan())
	require.True(t, task.IsEnabled())

	_, ok = cat.Get("nope")
	require.False(t, ok)

	require.Equal(t, []string{"legacy-import"}, cat.Disabled())
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"duplicate ids": `
pipelines:
  - id: a
    command: [x]
  - id: a
    command: [y]
`,
		"missing id": `
pipelines:
  - command: [x]
`,
		"enabled without command": `
pipelines:
  - id: a
`,
		"unknown kind": `
pipelines:
  - id: a
    kind: cron
    command: [x]
`,
		"unknown field": `
pipelines:
  - id: a
    comand: [x]
`,
		"negative limit": `
pipelines:
  - id: a
    command: [x]
    max_concurrent: -1
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestSetDefaultMaxRetries(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	cat.SetDefaultMaxRetries(5)

	scan, _ := cat.Get("intra-project-scan")
	require.Equal(t, 5, scan.MaxRetries, "specs without a budget pick up the default")
	task, _ := cat.Get("schema-enhancement")
	require.Equal(t, 1, task.MaxRetries, "explicit budgets are kept")

	cat.SetDefaultMaxRetries(0)
	require.Equal(t, 5, scan.MaxRetries)
}

func TestParseCatalogToleratesEmptyFile(t *testing.T) {
	cat, err := ParseCatalog(nil)
	require.NoError(t, err)
	require.Empty(t, cat.Specs())
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "pipelines.yaml"))
	require.Error(t, err)
}

func TestValidateInputEnforcesSchema(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	require.NoError(t, cat.ValidateInput("intra-project-scan",
		json.RawMessage(`{"repository_path": "/code/x"}`)))

	var verr *faults.ValidationError
	err = cat.ValidateInput("intra-project-scan", json.RawMessage(`{}`))
	require.Error(t, err)
	require.ErrorAs(t, err, &verr)

	err = cat.ValidateInput("intra-project-scan", json.RawMessage(`{not json`))
	require.ErrorAs(t, err, &verr)

	// Empty input is an empty document, judged by the schema.
	err = cat.ValidateInput("intra-project-scan", nil)
	require.ErrorAs(t, err, &verr)

	// No schema and unknown pipelines pass; admission control for ids
	// lives in the registry.
	require.NoError(t, cat.ValidateInput("schema-enhancement", json.RawMessage(`{"anything": 1}`)))
	require.NoError(t, cat.ValidateInput("unknown", nil))
}
