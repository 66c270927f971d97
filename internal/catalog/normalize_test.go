package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRow_TrimsAndFolds(t *testing.T) {
	t.Parallel()

	p, ok := NormalizeRow(map[string]string{
		"sku":         "  ABC-123 ",
		"name":        " Widget ",
		"description": " A widget. ",
	})
	require.True(t, ok)
	require.Equal(t, "ABC-123", p.SKU)
	require.Equal(t, "abc-123", p.SKUNorm)
	require.Equal(t, "Widget", p.Name)
	require.Equal(t, "A widget.", p.Description)
	require.True(t, p.Active)
}

func TestNormalizeRow_SkipsEmptySKU(t *testing.T) {
	t.Parallel()

	for _, sku := range []string{"", "   ", "\t"} {
		_, ok := NormalizeRow(map[string]string{"sku": sku, "name": "x"})
		require.False(t, ok)
	}
}

func TestNormalizeRow_MissingOptionalFieldsDefault(t *testing.T) {
	t.Parallel()

	p, ok := NormalizeRow(map[string]string{"sku": "K1"})
	require.True(t, ok)
	require.Empty(t, p.Name)
	require.Empty(t, p.Description)
	require.True(t, p.Active)
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to JobStatus }{
		{JobStatusPending, JobStatusQueued},
		{JobStatusQueued, JobStatusParsing},
		{JobStatusQueued, JobStatusFailed},
		{JobStatusParsing, JobStatusImporting},
		{JobStatusParsing, JobStatusCompleted},
		{JobStatusParsing, JobStatusFailed},
		{JobStatusImporting, JobStatusCompleted},
		{JobStatusImporting, JobStatusFailed},
		{JobStatusFailed, JobStatusQueued},
	}
	for _, tc := range allowed {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to JobStatus }{
		{JobStatusCompleted, JobStatusQueued},
		{JobStatusCompleted, JobStatusImporting},
		{JobStatusImporting, JobStatusParsing},
		{JobStatusParsing, JobStatusQueued},
		{JobStatusPending, JobStatusImporting},
		{JobStatusFailed, JobStatusParsing},
	}
	for _, tc := range denied {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestProgressPercent(t *testing.T) {
	t.Parallel()

	total := func(n int64) *int64 { return &n }

	job := ImportJob{ProcessedRows: 10}
	require.Zero(t, job.ProgressPercent())

	job.TotalRows = total(0)
	require.Zero(t, job.ProgressPercent())

	job.TotalRows = total(20)
	require.InDelta(t, 50.0, job.ProgressPercent(), 0.001)

	job.ProcessedRows = 1
	job.TotalRows = total(3)
	require.InDelta(t, 33.33, job.ProgressPercent(), 0.001)
}
