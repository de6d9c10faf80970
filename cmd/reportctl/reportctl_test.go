package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNextRunPrintsRequestedCount(t *testing.T) {
	out, err := execute(t, "next-run",
		"--frequency", "daily",
		"--hour", "7",
		"--minute", "30",
		"--from", "2026-03-10T12:00:00Z",
		"--count", "3",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "2026-03-11T07:30:00Z"), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "2026-03-13T07:30:00Z"), lines[2])
}

func TestNextRunRejectsInvalidSchedule(t *testing.T) {
	_, err := execute(t, "next-run", "--frequency", "WEEKLY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dayOfWeek")

	_, err = execute(t, "next-run", "--hour", "24")
	require.Error(t, err)
}

func TestValidateID(t *testing.T) {
	valid := domain.NewID().String()

	out, err := execute(t, "validate-id", valid)
	require.NoError(t, err)
	assert.Contains(t, out, valid+"\tvalid")

	out, err = execute(t, "validate-id", valid, "Bad-ID")
	require.Error(t, err)
	assert.Contains(t, out, "Bad-ID\tinvalid")
}

func TestValidateIDGenerate(t *testing.T) {
	out, err := execute(t, "validate-id", "--generate", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, domain.IsValidID(line), line)
	}
}

func TestMigratePrintsSchema(t *testing.T) {
	out, err := execute(t, "migrate", "--print")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "create table")
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 5.0, percentile(values, 0.50))
	assert.Equal(t, 10.0, percentile(values, 0.95))
	assert.Equal(t, 1.0, percentile(values, 0))
	assert.Equal(t, 0.0, percentile(nil, 0.5))
}

func TestRunScenarioCountsErrors(t *testing.T) {
	result := runScenario("mixed", 10, 3, func(index int) error {
		if index%5 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 8, result.Success)
	assert.Equal(t, 2, result.Errors)
	assert.Equal(t, []string{"boom", "boom"}, result.ErrorSamples)
}

func TestBenchRunsAgainstInProcessServer(t *testing.T) {
	out, err := execute(t, "bench",
		"--create-total", "4", "--create-concurrency", "2",
		"--list-total", "3", "--list-concurrency", "2",
		"--export-total", "4", "--export-concurrency", "2",
	)
	require.NoError(t, err)

	var result benchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Results, 3)
	for _, scenario := range result.Results {
		assert.Zero(t, scenario.Errors, "%s: %v", scenario.Name, scenario.ErrorSamples)
	}
	assert.True(t, result.SLOEvaluation["no_errors"])
}
