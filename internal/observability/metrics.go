package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// meterName is the instrumentation scope for every npcfleet instrument.
const meterName = "github.com/cory-johannsen/npcfleet"

// frameBuckets are histogram boundaries in seconds sized for a 30 Hz frame.
var frameBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1}

// inferenceBuckets are histogram boundaries in seconds for model calls.
var inferenceBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds the OpenTelemetry instruments for the NPC subsystem. It
// satisfies npc.FleetMetrics, dialogue.Metrics and inference.Recorder.
//
// All methods are safe for concurrent use.
type Metrics struct {
	FrameDuration     metric.Float64Histogram
	NPCsActive        metric.Int64Gauge
	NPCsVisible       metric.Int64Gauge
	NPCsTicked        metric.Int64Gauge
	Spawns            metric.Int64Counter
	Destroys          metric.Int64Counter
	InferenceDuration metric.Float64Histogram
	InferenceCalls    metric.Int64Counter
	DialoguesStarted  metric.Int64Counter
	DialoguesEnded    metric.Int64Counter
	DialogueDuration  metric.Float64Histogram
	DialogueExchanges metric.Int64Histogram
}

// NewMetrics creates every instrument on mp.
//
// Precondition: mp must be non-nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FrameDuration, err = m.Float64Histogram("npcfleet.frame.duration",
		metric.WithDescription("Time spent updating the fleet in one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NPCsActive, err = m.Int64Gauge("npcfleet.npcs.active",
		metric.WithDescription("Active NPCs at the end of the last frame."),
	); err != nil {
		return nil, err
	}
	if met.NPCsVisible, err = m.Int64Gauge("npcfleet.npcs.visible",
		metric.WithDescription("Visible NPCs at the end of the last frame."),
	); err != nil {
		return nil, err
	}
	if met.NPCsTicked, err = m.Int64Gauge("npcfleet.npcs.ticked",
		metric.WithDescription("NPCs updated in the last frame batch."),
	); err != nil {
		return nil, err
	}
	if met.Spawns, err = m.Int64Counter("npcfleet.npc.spawns",
		metric.WithDescription("NPCs spawned, by faction."),
	); err != nil {
		return nil, err
	}
	if met.Destroys, err = m.Int64Counter("npcfleet.npc.destroys",
		metric.WithDescription("NPCs destroyed, by reason."),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("npcfleet.inference.duration",
		metric.WithDescription("Latency of model inference by kind and model."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceCalls, err = m.Int64Counter("npcfleet.inference.calls",
		metric.WithDescription("Model inference calls by kind, model and outcome."),
	); err != nil {
		return nil, err
	}
	if met.DialoguesStarted, err = m.Int64Counter("npcfleet.dialogue.started",
		metric.WithDescription("Conversations started, by NPC faction."),
	); err != nil {
		return nil, err
	}
	if met.DialoguesEnded, err = m.Int64Counter("npcfleet.dialogue.ended",
		metric.WithDescription("Conversations ended, by reason."),
	); err != nil {
		return nil, err
	}
	if met.DialogueDuration, err = m.Float64Histogram("npcfleet.dialogue.duration",
		metric.WithDescription("Conversation length."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.DialogueExchanges, err = m.Int64Histogram("npcfleet.dialogue.exchanges",
		metric.WithDescription("NPC turns per conversation."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordFrame records one fleet frame.
func (m *Metrics) RecordFrame(ctx context.Context, active, visible, ticked int, elapsed time.Duration) {
	m.FrameDuration.Record(ctx, elapsed.Seconds())
	m.NPCsActive.Record(ctx, int64(active))
	m.NPCsVisible.Record(ctx, int64(visible))
	m.NPCsTicked.Record(ctx, int64(ticked))
}

// RecordSpawn counts a spawn.
func (m *Metrics) RecordSpawn(ctx context.Context, faction string) {
	m.Spawns.Add(ctx, 1, metric.WithAttributes(attribute.String("faction", faction)))
}

// RecordDestroy counts a destroy.
func (m *Metrics) RecordDestroy(ctx context.Context, reason string) {
	m.Destroys.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordInference records one model call. The outcome label comes from
// inference.Outcome.
func (m *Metrics) RecordInference(ctx context.Context, kind, model string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("model", model),
		attribute.String("outcome", inference.Outcome(err)),
	)
	m.InferenceDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.InferenceCalls.Add(ctx, 1, attrs)
}

// RecordDialogueStarted counts a conversation start.
func (m *Metrics) RecordDialogueStarted(ctx context.Context, faction string) {
	m.DialoguesStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("faction", faction)))
}

// RecordDialogueEnded records a finished conversation.
func (m *Metrics) RecordDialogueEnded(ctx context.Context, reason string, duration time.Duration, exchanges int) {
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.DialoguesEnded.Add(ctx, 1, attrs)
	m.DialogueDuration.Record(ctx, duration.Seconds(), attrs)
	m.DialogueExchanges.Record(ctx, int64(exchanges), attrs)
}
