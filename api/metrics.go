package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "github.com/wynnblevins/kanban/api"
	commandsSpanName    = "board.commands"
	commandsLogMessage  = "board.command.metrics"
	observabilityEvent  = "observability.event"
	commandsEventName   = "board.commands.applied"
	commandsEventDomain = "kanban"
	commandsRoute       = "/api/boards/:id/commands"
)

// commandMetrics records one command batch request as a span and a single
// structured log entry.
type commandMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	applyDuration  time.Duration
	boardID        string
	commands       int
	duplicates     int
	boardVersion   int64
	errorStage     string
	failedCommand  int
	failedCmdKnown bool
}

func newCommandMetrics(ctx context.Context, logger *log.Logger) (*commandMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, commandsSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &commandMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *commandMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *commandMetrics) ObserveApply(d time.Duration) {
	if d > 0 {
		m.applyDuration = d
	}
}

func (m *commandMetrics) SetBoard(id string) { m.boardID = id }

func (m *commandMetrics) SetCommands(total, duplicates int) {
	m.commands = total
	m.duplicates = duplicates
}

func (m *commandMetrics) SetVersion(v int64) { m.boardVersion = v }

func (m *commandMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *commandMetrics) SetFailedCommand(index int) {
	m.failedCommand = index
	m.failedCmdKnown = true
}

// Log ends the span and writes the request summary.
func (m *commandMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)
	total := durationToMillis(time.Since(m.start))

	attrs := []attribute.KeyValue{
		attribute.String("http.route", commandsRoute),
		attribute.Int("http.status_code", status),
		attribute.String("kanban.board.id", m.boardID),
		attribute.Int("kanban.commands.count", m.commands),
		attribute.Int("kanban.commands.duplicates", m.duplicates),
		attribute.Int64("kanban.board.version", m.boardVersion),
		attribute.Float64("kanban.commands.total_ms", total),
	}
	fields := log.Fields{
		"route":      commandsRoute,
		"status":     status,
		"board":      m.boardID,
		"commands":   m.commands,
		"duplicates": m.duplicates,
		"version":    m.boardVersion,
		"total_ms":   total,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
		attrs = append(attrs, attribute.Float64("kanban.commands.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.applyDuration > 0 {
		fields["apply_ms"] = durationToMillis(m.applyDuration)
		attrs = append(attrs, attribute.Float64("kanban.commands.apply_ms", durationToMillis(m.applyDuration)))
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
		attrs = append(attrs, attribute.String("kanban.commands.error_stage", m.errorStage))
	}
	if m.failedCmdKnown {
		fields["failed_command"] = m.failedCommand
		attrs = append(attrs, attribute.Int("kanban.commands.failed_index", m.failedCommand))
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if m.span != nil {
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", commandsEventName),
			attribute.String("event.domain", commandsEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		if err != nil {
			eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
		}
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if severityNumber >= 17 {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields["severity_text"] = severityText
	fields["severity_number"] = severityNumber
	m.logger.WithFields(fields).Info(commandsLogMessage)
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError || (status == 0 && err != nil):
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
