// Package report writes permutation-test results to an output directory
// as a text summary, a JSON record and per-ranking CSV files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"storm-importance/internal/importance"
	"storm-importance/internal/verification"

	"github.com/rs/zerolog/log"
)

const (
	SummaryFile      = "permutation_summary.txt"
	ResultsFile      = "permutation_results.json"
	BreimanFile      = "breiman.csv"
	LakshmananFile   = "lakshmanan.csv"
	VerificationFile = "verification.json"

	barWidth = 40
)

// Input is everything a report is generated from.
type Input struct {
	Run          string
	RunID        string
	Result       *importance.Result
	Verification *verification.Scores // optional
	CostFunction string
	GeneratedAt  time.Time
}

// Reporter generates permutation reports
type Reporter struct {
	in         Input
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(in Input, outputPath string) *Reporter {
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now()
	}
	return &Reporter{
		in:         in,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if r.in.Result == nil {
		return fmt.Errorf("report: no result to write")
	}
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	if err := r.generateRankingCSV(BreimanFile, r.in.Result.Step1Ranking()); err != nil {
		return err
	}
	if err := r.generateRankingCSV(LakshmananFile, r.in.Result.Cumulative); err != nil {
		return err
	}
	if r.in.Verification != nil {
		if err := r.generateVerificationReport(); err != nil {
			return err
		}
	}

	return nil
}

// generateSummary writes both rankings as text bar charts.
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	res := r.in.Result
	fmt.Fprintf(file, "PERMUTATION IMPORTANCE SUMMARY\n")
	fmt.Fprintf(file, "==============================\n\n")
	if r.in.Run != "" {
		fmt.Fprintf(file, "Run: %s\n", r.in.Run)
	}
	if r.in.RunID != "" {
		fmt.Fprintf(file, "Run ID: %s\n", r.in.RunID)
	}
	fmt.Fprintf(file, "Generated: %s\n", r.in.GeneratedAt.Format("2006-01-02 15:04:05"))
	if r.in.CostFunction != "" {
		fmt.Fprintf(file, "Cost function: %s\n", r.in.CostFunction)
	}
	fmt.Fprintf(file, "Predictors: %d\n", len(res.Step1))
	fmt.Fprintf(file, "Original cost (no permutation): %.4f\n\n", res.OriginalCost)

	maxCost := res.OriginalCost
	for _, e := range res.Cumulative {
		maxCost = max(maxCost, e.Cost)
	}
	for _, e := range res.Step1 {
		maxCost = max(maxCost, e.Cost)
	}

	fmt.Fprintf(file, "SINGLE-PASS (BREIMAN) RANKING\n")
	fmt.Fprintf(file, "-----------------------------\n")
	writeBars(file, res.Step1Ranking(), res.OriginalCost, maxCost)

	fmt.Fprintf(file, "\nMULTI-PASS (LAKSHMANAN) RANKING\n")
	fmt.Fprintf(file, "-------------------------------\n")
	writeBars(file, res.Cumulative, res.OriginalCost, maxCost)

	if v := r.in.Verification; v != nil {
		fmt.Fprintf(file, "\nVERIFICATION\n")
		fmt.Fprintf(file, "------------\n")
		fmt.Fprintf(file, "Examples: %d (%d positive)\n", v.NumExamples, v.NumPositive)
		fmt.Fprintf(file, "Area under ROC curve: %.4f\n", v.AUC)
		fmt.Fprintf(file, "Threshold: %.2f\n", v.Threshold)
		fmt.Fprintf(file, "POD: %.4f  POFD: %.4f  CSI: %.4f  Bias: %.4f\n", v.POD, v.POFD, v.CSI, v.FrequencyBias)
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func writeBars(w io.Writer, entries []importance.Entry, originalCost, maxCost float64) {
	nameWidth := len("No permutation")
	for _, e := range entries {
		nameWidth = max(nameWidth, len(e.Predictor))
	}

	for i, e := range entries {
		fmt.Fprintf(w, "%2d. %-*s %8.4f %s\n", i+1, nameWidth, e.Predictor, e.Cost, bar(e.Cost, maxCost))
	}
	fmt.Fprintf(w, "    %-*s %8.4f %s\n", nameWidth, "No permutation", originalCost, bar(originalCost, maxCost))
}

func bar(cost, maxCost float64) string {
	if maxCost <= 0 || cost <= 0 {
		return ""
	}
	n := int(cost / maxCost * barWidth)
	return strings.Repeat("#", min(n, barWidth))
}

// generateJSONReport writes the persisted form of the result.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, ResultsFile)
	if err := writeJSON(jsonPath, r.in.Result.Record()); err != nil {
		return err
	}
	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

func (r *Reporter) generateVerificationReport() error {
	jsonPath := filepath.Join(r.outputPath, VerificationFile)
	if err := writeJSON(jsonPath, r.in.Verification); err != nil {
		return err
	}
	log.Info().Str("file", jsonPath).Msg("Verification report generated")
	return nil
}

// generateRankingCSV writes one ranking with its rank, predictor and cost.
func (r *Reporter) generateRankingCSV(name string, entries []importance.Entry) error {
	csvPath := filepath.Join(r.outputPath, name)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"Rank", "Predictor", "Cost", "Cost Increase"}); err != nil {
		return err
	}
	for i, e := range entries {
		record := []string{
			strconv.Itoa(i + 1),
			e.Predictor,
			strconv.FormatFloat(e.Cost, 'g', -1, 64),
			strconv.FormatFloat(e.Cost-r.in.Result.OriginalCost, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	log.Info().Str("file", csvPath).Msg("Ranking report generated")
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
