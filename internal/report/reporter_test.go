package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storm-importance/internal/importance"
	"storm-importance/internal/verification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *importance.Result {
	return &importance.Result{
		OriginalCost: 0.25,
		Step1: []importance.Entry{
			{Predictor: "reflectivity_dbz", Cost: 0.4},
			{Predictor: "temperature_kelvins", Cost: 0.9},
			{Predictor: "u_wind_m_s01", Cost: 0.3},
		},
		Cumulative: []importance.Entry{
			{Predictor: "temperature_kelvins", Cost: 0.9},
			{Predictor: "reflectivity_dbz", Cost: 1.1},
			{Predictor: "u_wind_m_s01", Cost: 1.2},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestGenerateReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	in := Input{
		Run:          "validation",
		RunID:        "0f8e4b52-3c1d-4e6a-9b7f-5a2c8d1e3f40",
		Result:       testResult(),
		CostFunction: "xentropy",
		GeneratedAt:  time.Date(2024, 5, 20, 18, 0, 0, 0, time.UTC),
	}

	require.NoError(t, NewReporter(in, dir).GenerateReport())

	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Run: validation")
	assert.Contains(t, string(summary), "Run ID: 0f8e4b52-3c1d-4e6a-9b7f-5a2c8d1e3f40")
	assert.Contains(t, string(summary), "Original cost (no permutation): 0.2500")
	assert.Contains(t, string(summary), "SINGLE-PASS (BREIMAN) RANKING")
	assert.Contains(t, string(summary), "MULTI-PASS (LAKSHMANAN) RANKING")
	assert.NotContains(t, string(summary), "VERIFICATION")

	data, err := os.ReadFile(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	var rec importance.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	back, err := rec.Result()
	require.NoError(t, err)
	assert.Equal(t, testResult(), back)

	breiman := readCSV(t, filepath.Join(dir, BreimanFile))
	require.Len(t, breiman, 4)
	assert.Equal(t, []string{"Rank", "Predictor", "Cost", "Cost Increase"}, breiman[0])
	assert.Equal(t, "temperature_kelvins", breiman[1][1])
	assert.Equal(t, "reflectivity_dbz", breiman[2][1])
	assert.Equal(t, "u_wind_m_s01", breiman[3][1])

	lakshmanan := readCSV(t, filepath.Join(dir, LakshmananFile))
	require.Len(t, lakshmanan, 4)
	assert.Equal(t, []string{"3", "u_wind_m_s01", "1.2", "0.95"}, lakshmanan[3])

	_, err = os.Stat(filepath.Join(dir, VerificationFile))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateReport_WithVerification(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		Result:       testResult(),
		Verification: &verification.Scores{NumExamples: 10, NumPositive: 4, AUC: 0.875, Threshold: 0.5},
	}

	require.NoError(t, NewReporter(in, dir).GenerateReport())

	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Area under ROC curve: 0.8750")

	data, err := os.ReadFile(filepath.Join(dir, VerificationFile))
	require.NoError(t, err)
	var scores verification.Scores
	require.NoError(t, json.Unmarshal(data, &scores))
	assert.Equal(t, 0.875, scores.AUC)
}

func TestGenerateReport_NoResult(t *testing.T) {
	assert.Error(t, NewReporter(Input{}, t.TempDir()).GenerateReport())
}

func TestBar(t *testing.T) {
	assert.Equal(t, "", bar(0, 1))
	assert.Equal(t, "", bar(1, 0))
	assert.Len(t, bar(1, 1), barWidth)
	assert.Len(t, bar(0.5, 1), barWidth/2)
}
