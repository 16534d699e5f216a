package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const defaultMessage = "board.command.metrics"

// logRecord is one JSON line written by the command metrics logger.
type logRecord struct {
	Msg            string  `json:"msg"`
	Status         int     `json:"status"`
	Commands       int     `json:"commands"`
	Duplicates     int     `json:"duplicates"`
	TotalMillis    float64 `json:"total_ms"`
	AuthMillis     float64 `json:"auth_ms"`
	ApplyMillis    float64 `json:"apply_ms"`
	ErrorStage     string  `json:"error_stage"`
	FailedCommand  *int    `json:"failed_command"`
	SeverityText   string  `json:"severity_text"`
	SeverityNumber int     `json:"severity_number"`
}

type collector struct {
	message string
	skipped int

	count      int
	severity   map[string]int
	status     map[int]int
	durations  map[string]*numericStats
	commands   *numericStats
	duplicates int
	failed     int
	stages     map[string]int
}

type numericStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

type numericSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

type summaryOutput struct {
	Message         string                    `json:"message"`
	TotalRequests   int                       `json:"total_requests"`
	SeverityCounts  map[string]int            `json:"severity_counts"`
	StatusCounts    map[string]int            `json:"status_counts"`
	DurationMs      map[string]numericSummary `json:"duration_ms"`
	CommandsPerCall numericSummary            `json:"commands_per_request"`
	Duplicates      int                       `json:"duplicates"`
	FailedBatches   int                       `json:"failed_batches"`
	ErrorStages     map[string]int            `json:"error_stages,omitempty"`
	SkippedLines    int                       `json:"skipped_lines"`
}

func newCollector(message string) *collector {
	return &collector{
		message:   message,
		severity:  make(map[string]int),
		status:    make(map[int]int),
		durations: make(map[string]*numericStats),
		commands:  newNumericStats(),
		stages:    make(map[string]int),
	}
}

func (c *collector) ingest(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	// docker compose prefixes lines with "service | "
	if pipe := strings.Index(trimmed, "|"); pipe >= 0 && !strings.HasPrefix(trimmed, "{") {
		trimmed = strings.TrimSpace(trimmed[pipe+1:])
	}

	var rec logRecord
	if err := sonic.UnmarshalString(trimmed, &rec); err != nil {
		c.skipped++
		return
	}
	if rec.Msg != c.message {
		return
	}
	c.add(rec)
}

func (c *collector) add(rec logRecord) {
	c.count++
	severity := strings.ToUpper(strings.TrimSpace(rec.SeverityText))
	if severity == "" {
		severity = "UNSPECIFIED"
	}
	c.severity[severity]++
	if rec.Status != 0 {
		c.status[rec.Status]++
	}
	c.addDuration("total", rec.TotalMillis)
	if rec.AuthMillis > 0 {
		c.addDuration("auth", rec.AuthMillis)
	}
	if rec.ApplyMillis > 0 {
		c.addDuration("apply", rec.ApplyMillis)
	}
	if rec.Commands > 0 {
		c.commands.add(float64(rec.Commands))
	}
	c.duplicates += rec.Duplicates
	if rec.FailedCommand != nil {
		c.failed++
	}
	if rec.ErrorStage != "" {
		c.stages[rec.ErrorStage]++
	}
}

func (c *collector) addDuration(key string, v float64) {
	stat, ok := c.durations[key]
	if !ok {
		stat = newNumericStats()
		c.durations[key] = stat
	}
	stat.add(v)
}

func newNumericStats() *numericStats {
	return &numericStats{Min: math.MaxFloat64}
}

func (n *numericStats) add(v float64) {
	n.Count++
	n.Sum += v
	n.Min = min(n.Min, v)
	n.Max = max(n.Max, v)
}

func (n *numericStats) summary() numericSummary {
	if n == nil || n.Count == 0 {
		return numericSummary{}
	}
	return numericSummary{Count: n.Count, Min: n.Min, Max: n.Max, Avg: n.Sum / float64(n.Count)}
}

func (c *collector) summary() summaryOutput {
	durations := make(map[string]numericSummary, len(c.durations))
	for k, v := range c.durations {
		durations[k] = v.summary()
	}
	status := make(map[string]int, len(c.status))
	for code, n := range c.status {
		status[strconv.Itoa(code)] = n
	}
	var stages map[string]int
	if len(c.stages) > 0 {
		stages = c.stages
	}
	return summaryOutput{
		Message:         c.message,
		TotalRequests:   c.count,
		SeverityCounts:  c.severity,
		StatusCounts:    status,
		DurationMs:      durations,
		CommandsPerCall: c.commands.summary(),
		Duplicates:      c.duplicates,
		FailedBatches:   c.failed,
		ErrorStages:     stages,
		SkippedLines:    c.skipped,
	}
}

func (s summaryOutput) ShortString() string {
	total := s.DurationMs["total"]
	return strings.Join([]string{
		"requests=" + strconv.Itoa(s.TotalRequests),
		"warn=" + strconv.Itoa(s.SeverityCounts["WARN"]),
		"error=" + strconv.Itoa(s.SeverityCounts["ERROR"]),
		"duplicates=" + strconv.Itoa(s.Duplicates),
		"failed_batches=" + strconv.Itoa(s.FailedBatches),
		"avg_total_ms=" + formatFloat(total.Avg),
		"max_total_ms=" + formatFloat(total.Max),
	}, " ")
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
