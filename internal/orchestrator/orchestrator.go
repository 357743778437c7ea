// Package orchestrator owns the process lifecycle described in spec
// section 4.1: leaves-first initialization, the periodic enrichment loop,
// and reverse-order shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemosyne/brain/internal/config"
	"github.com/mnemosyne/brain/internal/dedup"
	"github.com/mnemosyne/brain/internal/event"
	"github.com/mnemosyne/brain/internal/graph"
	"github.com/mnemosyne/brain/internal/guard"
	"github.com/mnemosyne/brain/internal/inference"
	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/model"
	"github.com/mnemosyne/brain/internal/perception"
	"github.com/mnemosyne/brain/internal/session"
	"github.com/mnemosyne/brain/internal/storage"
	"github.com/mnemosyne/brain/internal/streambroker"
)

// batchSize is the maximum number of groups fetched per cycle (spec
// section 4.1).
const batchSize = 100

// failureBackoff is the extra sleep after an unhandled per-cycle failure
// (spec section 4.1).
const failureBackoff = 5 * time.Second

// Orchestrator owns the periodic enrichment loop.
type Orchestrator struct {
	cfg    *config.Config
	store  *storage.Store
	broker *streambroker.Broker // nil in store mode

	guard      *guard.Guard
	perception *perception.Pipeline
	llm        *inference.Client
	graph      *graph.Graph

	tracker     *session.Tracker
	manager     *session.Manager
	suppressor  *dedup.Suppressor
}

// New wires every component in leaves-first order (spec section 4.1):
// storage, guard, perception backends, inference client, graph, session
// tracker/manager, and finally the stream broker if stream mode is
// selected. Endpoint verification failures are logged as warnings, never
// fatal.
func New(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	store, err := storage.Open(cfg.DBPath, cfg.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open storage: %w", err)
	}
	if err := store.Sessions.EnsureTable(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("orchestrator: ensure sessions table: %w", err)
	}

	g := guard.New().WithVisionThreshold(cfg.VRAMThresholdBytes)

	var visionBackend perception.VisionBackend
	if cfg.VisionBackend == "external" && cfg.VisionEndpoint != "" {
		visionBackend = perception.NewExternalVisionBackend(cfg.VisionEndpoint, cfg.VisionModel)
	}

	ocr := perception.NewOCR(splitLanguages(cfg.OCRLanguages))
	perceptionPipeline := perception.NewPipeline(cfg.ScreenshotDir, nil, ocr, visionBackend, g)

	llm := inference.NewClient(cfg)
	if !llm.CheckConnection(ctx) {
		logging.Warn().Str("endpoint", cfg.LLMEndpoint).Msg("orchestrator: LLM endpoint unreachable at startup, continuing")
	}

	paths := cfg.GetPaths()
	if err := paths.EnsurePaths(cfg.ScreenshotDir); err != nil {
		logging.Warn().Err(err).Msg("orchestrator: failed to ensure data directories")
	}
	kg := graph.New(paths.KnowledgeGraphPath())

	tracker := session.NewTracker(cfg.IdleThreshold, cfg.MaxSessionDuration)
	manager := session.NewManager(store.Sessions, llm, kg, cfg.ScreenshotDir, int64(cfg.MinSessionDuration.Seconds()))

	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		guard:      g,
		perception: perceptionPipeline,
		llm:        llm,
		graph:      kg,
		tracker:    tracker,
		manager:    manager,
		suppressor: dedup.NewSuppressor(cfg.DedupHorizon, cfg.DedupSuppressorTick),
	}

	if cfg.StreamMode() {
		broker, err := streambroker.Connect(ctx, cfg.BrokerHost, cfg.BrokerPort, cfg.BrokerDB)
		if err != nil {
			logging.Warn().Err(err).Msg("orchestrator: broker unreachable at startup, falling back to store mode")
		} else {
			o.broker = broker
		}
	}

	return o, nil
}

// Run enters the periodic loop: sleep, admission check, fetch, process,
// summarize. It returns when ctx is cancelled (spec section 4.1).
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CyclePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runCycleSafely(ctx)
		}
	}
}

func (o *Orchestrator) runCycleSafely(ctx context.Context) {
	event.Publish(event.Event{Type: event.CycleStarted})

	processed, groups, err := o.runCycle(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("orchestrator: cycle failed")
		event.Publish(event.Event{Type: event.CycleFailed, Data: err.Error()})

		// Widen the pause on a repeated failure streak instead of retrying a
		// wedged dependency (stuck LLM endpoint, locked database) every
		// cycle at the same fixed interval.
		backoff := failureBackoff
		if streak := event.ConsecutiveFailures(); streak > 1 {
			backoff *= time.Duration(streak)
			if ceiling := 10 * o.cfg.CyclePeriod; backoff > ceiling {
				backoff = ceiling
			}
		}
		time.Sleep(backoff)
		return
	}

	logging.Info().Int("groups", groups).Int("events", processed).Msg("orchestrator: cycle completed")
	event.Publish(event.Event{Type: event.CycleCompleted, Data: map[string]int{"groups": groups, "events": processed}})
}

func (o *Orchestrator) runCycle(ctx context.Context) (processedEvents int, groupCount int, err error) {
	if !o.guard.SafeToRun(ctx) {
		logging.Info().Msg("orchestrator: resource guard denied cycle, skipping")
		event.Publish(event.Event{Type: event.GuardDenied})
		return 0, 0, nil
	}

	groups, ackByGroup, eventsByGroup, err := o.fetchGroups(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch groups: %w", err)
	}

	o.suppressor.Prune(walltime())

	for i, group := range groups {
		select {
		case <-ctx.Done():
			return processedEvents, i, nil
		default:
		}

		if o.suppressor.ShouldSuppress(group.Fingerprint.ProcessName, walltime()) {
			o.ackGroup(ctx, ackByGroup[i])
			processedEvents += group.Count
			continue
		}

		if err := o.processGroup(ctx, group, ackByGroup[i], eventsByGroup[i]); err != nil {
			logging.Error().Err(err).Str("process", group.Fingerprint.ProcessName).Msg("orchestrator: group processing failed")
			continue
		}
		processedEvents += group.Count
	}

	return processedEvents, len(groups), nil
}

func (o *Orchestrator) ackGroup(ctx context.Context, ackIDs []string) {
	if o.broker != nil && len(ackIDs) > 0 {
		if err := o.broker.Ack(ctx, ackIDs); err != nil {
			logging.Debug().Err(err).Msg("orchestrator: ack failed")
		}
	}
}

// processGroup runs one group through perception and inference and
// persists the result, branching on ingestion mode (spec section 9, Open
// Question 4): stream-mode groups never touch raw_events before this
// point, so perception never runs and only intent/tags are archived;
// store-mode groups carry their full per-event rows and run the
// accessibility/OCR/vision fallback chain before synthesis.
func (o *Orchestrator) processGroup(ctx context.Context, group model.EventGroup, ackIDs []string, events []model.Event) error {
	var result inference.SynthesisResult

	if o.broker != nil {
		synthCtx := inference.EnrichmentContext{
			ProcessName: group.Fingerprint.ProcessName,
			Title:       group.Fingerprint.WindowTitle,
			Intensity:   int(group.MeanIntensity),
		}
		result = o.llm.Synthesize(ctx, synthCtx)

		if _, err := o.store.Events.ArchiveGroupIntentOnly(ctx, group, result.Intent, result.Tags); err != nil {
			return fmt.Errorf("archive group: %w", err)
		}
	} else {
		result = o.enrichAndSynthesize(ctx, group, events)

		wikilinks := inference.ExtractTags(result.Intent)
		for _, e := range events {
			if err := o.store.Context.UpdateEventContext(ctx, e.ID, e.AccessibilityTree, e.OCRContent, e.VLMDescription, result.Intent, wikilinks, result.Tags); err != nil {
				return fmt.Errorf("update event context: %w", err)
			}
		}
		if err := o.store.Events.BatchMarkProcessed(ctx, group.EventIDs); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
	}

	o.feedTracker(group, result)
	o.ackGroup(ctx, ackIDs)

	event.Publish(event.Event{Type: event.GroupEnriched, Data: group.Fingerprint})
	return nil
}

// enrichAndSynthesize runs the perception fallback chain (spec section
// 4.6) over every event in a store-mode group, pulls recent history for
// the prompt, and asks the LLM to synthesize intent and tags from the
// richest enrichment any member event carries.
func (o *Orchestrator) enrichAndSynthesize(ctx context.Context, group model.EventGroup, events []model.Event) inference.SynthesisResult {
	for i := range events {
		o.perception.EnrichOne(ctx, &events[i])
	}

	withScreenshots := make([]*model.Event, len(events))
	for i := range events {
		withScreenshots[i] = &events[i]
	}
	o.perception.RunVisionBatch(ctx, withScreenshots)

	history, err := o.store.Events.GetHistoryTail(ctx, group.LastSeen, 0)
	if err != nil {
		logging.Debug().Err(err).Msg("orchestrator: history tail lookup failed")
	}
	recent := make([]string, 0, len(history))
	for _, h := range history {
		recent = append(recent, fmt.Sprintf("%s: %s", h.ProcessName, h.WindowTitle))
	}

	rep := representativeEvent(events)
	synthCtx := inference.EnrichmentContext{
		ProcessName:       group.Fingerprint.ProcessName,
		Title:             group.Fingerprint.WindowTitle,
		AccessibilityTree: rep.AccessibilityTree,
		OCRContent:        rep.OCRContent,
		VisionDescription: rep.VLMDescription,
		Intensity:         int(group.MeanIntensity),
		RecentHistory:     recent,
	}
	return o.llm.Synthesize(ctx, synthCtx)
}

// representativeEvent picks the member event whose enrichment fields feed
// the group's single synthesis call: the first event carrying any
// perception output, or the group's first event if the fallback chain
// came back empty for all of them.
func representativeEvent(events []model.Event) model.Event {
	for _, e := range events {
		if e.AccessibilityTree != "" || e.OCRContent != "" || e.VLMDescription != "" {
			return e
		}
	}
	if len(events) > 0 {
		return events[0]
	}
	return model.Event{}
}

func (o *Orchestrator) feedTracker(group model.EventGroup, result inference.SynthesisResult) {
	e := model.Event{
		ProcessName:    group.Fingerprint.ProcessName,
		WindowTitle:    group.Fingerprint.WindowTitle,
		UnixTime:       group.LastSeen,
		InputIntensity: int(group.MeanIntensity),
		UserIntent:     result.Intent,
	}

	closed := o.tracker.Ingest(e)
	if closed == nil {
		return
	}

	event.Publish(event.Event{Type: event.SessionClosed, Data: closed.ID})
	if err := o.manager.Archive(context.Background(), closed); err != nil {
		logging.Error().Err(err).Str("session_id", closed.ID).Msg("orchestrator: session archival failed")
		return
	}
	event.Publish(event.Event{Type: event.SessionArchived, Data: closed.ID})
}

// fetchGroups returns one batch of groups to process, plus each group's
// broker ack ids (stream mode only) and each group's full member events
// (store mode only — stream-mode groups have no raw_events rows yet, so
// their entry is always nil).
func (o *Orchestrator) fetchGroups(ctx context.Context) ([]model.EventGroup, [][]string, [][]model.Event, error) {
	if o.broker != nil {
		return o.fetchStreamGroups(ctx)
	}
	return o.fetchStoreGroups(ctx)
}

// fetchStoreGroups fetches full pending event rows and groups them
// in-memory with the same batcher the stream path uses, instead of
// SQL-aggregating straight to EventGroup: perception needs each event's
// own window handle and screenshot hash, which an aggregate query
// discards.
func (o *Orchestrator) fetchStoreGroups(ctx context.Context) ([]model.EventGroup, [][]string, [][]model.Event, error) {
	pending, err := o.store.Events.FetchPending(ctx, batchSize)
	if err != nil {
		return nil, nil, nil, err
	}

	raws := make([]dedup.RawEvent, len(pending))
	byID := make(map[int64]model.Event, len(pending))
	for i, e := range pending {
		raws[i] = dedup.RawEvent{Event: e}
		byID[e.ID] = e
	}

	groups := dedup.GroupEvents(raws)
	acks := make([][]string, len(groups))
	eventsByGroup := make([][]model.Event, len(groups))
	for i, g := range groups {
		members := make([]model.Event, 0, len(g.EventIDs))
		for _, id := range g.EventIDs {
			if e, ok := byID[id]; ok {
				members = append(members, e)
			}
		}
		eventsByGroup[i] = members
	}
	return groups, acks, eventsByGroup, nil
}

func (o *Orchestrator) fetchStreamGroups(ctx context.Context) ([]model.EventGroup, [][]string, [][]model.Event, error) {
	messages, err := o.broker.ReadBatch(ctx, batchSize)
	if err != nil {
		return nil, nil, nil, err
	}

	raws := make([]dedup.RawEvent, 0, len(messages))
	for _, m := range messages {
		raws = append(raws, dedup.RawEvent{Event: m.ToEvent(), AckID: m.ID})
	}

	groups := dedup.GroupEvents(raws)
	acks := make([][]string, len(groups))
	for i, g := range groups {
		acks[i] = g.AckIDs
	}
	return groups, acks, make([][]model.Event, len(groups)), nil
}

// Shutdown runs the reverse-order shutdown sequence from spec section
// 4.1: force-close the active session and archive it, close the stream
// broker (stream mode only), close storage, and persist the knowledge
// graph. The inference client and the vision backend are not released
// here. Each step is best-effort; a failure in one never prevents the next.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	if closed := o.tracker.ForceClose(walltimeUnix()); closed != nil {
		if err := o.manager.Archive(ctx, closed); err != nil {
			logging.Error().Err(err).Msg("orchestrator: shutdown archival failed")
		}
	}

	if o.broker != nil {
		if err := o.broker.Close(); err != nil {
			logging.Debug().Err(err).Msg("orchestrator: broker close failed")
		}
	}

	if err := o.store.Close(); err != nil {
		logging.Error().Err(err).Msg("orchestrator: storage close failed")
	}

	if err := o.graph.Persist(); err != nil {
		logging.Error().Err(err).Msg("orchestrator: graph persist failed")
	}
}

func splitLanguages(spec string) []string {
	if spec == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(spec); i++ {
		if i == len(spec) || spec[i] == '+' {
			if i > start {
				out = append(out, spec[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func walltime() time.Time { return time.Now() }

func walltimeUnix() int64 { return time.Now().Unix() }
