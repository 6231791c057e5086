package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/fpang/etsyflow/internal/domain"
	"github.com/fpang/etsyflow/internal/filehandler"
	"github.com/fpang/etsyflow/internal/metrics"
	"github.com/fpang/etsyflow/internal/preview"
	"github.com/fpang/etsyflow/internal/remote"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Normalizer turns an upload into a normalized asset.
type Normalizer interface {
	Normalize(ctx context.Context, raw domain.RawFile) (*filehandler.NormalizedAsset, error)
}

// Analyzer derives listing metadata from an image.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalyzeRequest) (*domain.ProductMetadata, error)
}

// Enhancer regenerates or upscales an image.
type Enhancer interface {
	Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.EnhanceResult, error)
}

// Options is the batch-wide configuration.
type Options struct {
	GlobalPrompt    string
	UseGlobalPrompt bool
	Tier            domain.QualityTier

	// InterCallDelay is waited after each enhancement before the next starts.
	InterCallDelay time.Duration
	// AnalysisConcurrency caps concurrent analysis calls. 0 = unbounded.
	AnalysisConcurrency int
	// FallbackToOriginal records exhausted enhancements as
	// remote.ErrEnhancementUnavailable instead of a plain failure.
	FallbackToOriginal bool

	// Sleep waits between enhancement calls. Nil uses remote.Sleep.
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *metrics.Emitter
}

// PassReport summarizes one enhancement pass.
type PassReport struct {
	Completed []string
	Failed    []string
	// Skipped lists assets left in ready because the pass halted.
	Skipped []string
	Halted  bool
}

// BatchSnapshot is a consistent copy of the whole batch.
type BatchSnapshot struct {
	Assets          []AssetSnapshot
	Active          bool
	Enhancing       bool
	GlobalPrompt    string
	UseGlobalPrompt bool
	Tier            domain.QualityTier
}

// Counts returns the number of assets per state.
func (b BatchSnapshot) Counts() map[State]int {
	counts := make(map[State]int)
	for _, a := range b.Assets {
		counts[a.State]++
	}
	return counts
}

// Orchestrator owns a batch of assets. All mutations go through its methods.
type Orchestrator struct {
	normalizer Normalizer
	analyzer   Analyzer
	previews   preview.Store

	mu        sync.Mutex
	enhancer  Enhancer
	opts      Options
	assets    []*asset
	index     map[string]*asset
	enhancing bool

	notifyMu    sync.Mutex
	subscribers map[int]func(AssetSnapshot)
	nextSub     int
}

// New creates an Orchestrator with an empty batch.
func New(normalizer Normalizer, analyzer Analyzer, enhancer Enhancer, previews preview.Store, opts Options) *Orchestrator {
	if opts.Tier == "" {
		opts.Tier = domain.TierStandard
	}
	if opts.Sleep == nil {
		opts.Sleep = remote.Sleep
	}
	return &Orchestrator{
		normalizer:  normalizer,
		analyzer:    analyzer,
		enhancer:    enhancer,
		previews:    previews,
		opts:        opts,
		index:       make(map[string]*asset),
		subscribers: make(map[int]func(AssetSnapshot)),
	}
}

// Subscribe registers fn to receive a snapshot after every transition.
// Calls are serialized. The returned func unsubscribes.
func (o *Orchestrator) Subscribe(fn func(AssetSnapshot)) func() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	return func() {
		o.notifyMu.Lock()
		defer o.notifyMu.Unlock()
		delete(o.subscribers, id)
	}
}

func (o *Orchestrator) notify(snaps ...AssetSnapshot) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	for _, snap := range snaps {
		for _, fn := range o.subscribers {
			fn(snap)
		}
	}
}

// transition moves a to the given state, applies mutate, and enforces that
// result is set only when completed and lastError only when error.
func (o *Orchestrator) transition(a *asset, to State, mutate func(a *asset)) error {
	o.mu.Lock()
	from := a.state
	if err := checkTransition(from, to); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("asset %s: %w", a.id, err)
	}
	a.state = to
	if mutate != nil {
		mutate(a)
	}
	if to != StateCompleted {
		a.result = nil
	}
	if to != StateError {
		a.lastError = ""
		a.errKind = nil
	}
	snap := a.snapshot()
	o.mu.Unlock()

	log.Debug().
		Str("asset", a.id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Asset state changed")
	o.notify(snap)
	return nil
}

func (o *Orchestrator) fail(a *asset, err error) {
	kind := remote.KindOf(err)
	if kind == nil {
		kind = remote.ErrProcessingFailed
	}
	msg := DescribeError(err)
	if terr := o.transition(a, StateError, func(a *asset) {
		a.lastError = msg
		a.errKind = kind
	}); terr != nil {
		log.Error().Err(terr).Msg("Failed to record asset error")
	}
}

// Ingest normalizes files concurrently, adds them to the batch in input
// order, then analyzes every newly queued asset. Files that fail
// normalization are added directly in the error state with their original
// bytes. It returns the new asset IDs in input order.
func (o *Orchestrator) Ingest(ctx context.Context, files []domain.RawFile) ([]string, error) {
	type outcome struct {
		norm *filehandler.NormalizedAsset
		err  error
	}
	outcomes := make([]outcome, len(files))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		g.Go(func() error {
			norm, err := o.normalizer.Normalize(ctx, f)
			outcomes[i] = outcome{norm: norm, err: err}
			return nil
		})
	}
	_ = g.Wait()

	ids := make([]string, 0, len(files))
	snaps := make([]AssetSnapshot, 0, len(files))

	o.mu.Lock()
	for i, f := range files {
		a := &asset{id: uuid.NewString(), name: f.Name, sourceMIME: f.MIMEType}
		if err := outcomes[i].err; err != nil {
			a.state = StateError
			a.source = f.Data
			a.lastError = DescribeError(err)
			a.errKind = ingestKind(err)
			log.Warn().Err(err).Str("asset", a.id).Str("file", f.Name).Msg("Normalization failed")
		} else {
			a.norm = outcomes[i].norm
			a.resolution = domain.Classify(a.norm.Width, a.norm.Height)
			a.state = StateQueued
		}
		o.assets = append(o.assets, a)
		o.index[a.id] = a
		ids = append(ids, a.id)
		snaps = append(snaps, a.snapshot())
	}
	o.mu.Unlock()

	o.notify(snaps...)

	log.Info().
		Int("files", len(files)).
		Msg("Ingestion complete")

	return ids, o.AnalyzePending(ctx)
}

func ingestKind(err error) error {
	for _, kind := range []error{filehandler.ErrSizeLimitExceeded, filehandler.ErrUnsupportedContainer, filehandler.ErrDecodeFailure} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return filehandler.ErrDecodeFailure
}

// AnalyzePending starts analysis for every queued asset concurrently and
// waits for all of them to settle. Each asset is updated as soon as its own
// call resolves; failures are recorded on the asset and never retried here.
func (o *Orchestrator) AnalyzePending(ctx context.Context) error {
	// Claim under the same lock that finds them, so overlapping callers
	// never share an asset.
	o.mu.Lock()
	var (
		queued []*asset
		snaps  []AssetSnapshot
	)
	for _, a := range o.assets {
		if a.state == StateQueued {
			a.state = StateAnalyzing
			queued = append(queued, a)
			snaps = append(snaps, a.snapshot())
		}
	}
	limit := o.opts.AnalysisConcurrency
	o.mu.Unlock()

	if len(queued) == 0 {
		return nil
	}

	for _, a := range queued {
		log.Debug().
			Str("asset", a.id).
			Str("from", string(StateQueued)).
			Str("to", string(StateAnalyzing)).
			Msg("Asset state changed")
	}
	o.notify(snaps...)

	log.Info().Int("assets", len(queued)).Int("concurrency", limit).Msg("Starting analysis phase")

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, a := range queued {
		g.Go(func() error {
			o.analyzeOne(ctx, a)
			return nil
		})
	}
	_ = g.Wait()

	log.Info().Int("assets", len(queued)).Msg("Analysis phase complete")
	return ctx.Err()
}

func (o *Orchestrator) analyzeOne(ctx context.Context, a *asset) {
	req := domain.AnalyzeRequest{AssetID: a.id, Image: a.norm.Input()}
	if a.norm.Metadata != nil {
		req.Context = a.norm.Metadata.FormatMetadataContext()
	}

	start := time.Now()
	meta, err := o.analyzer.Analyze(ctx, req)
	o.record("analyze", err, time.Since(start), a.id)
	if err != nil {
		log.Warn().Err(err).Str("asset", a.id).Msg("Analysis failed")
		o.fail(a, err)
		return
	}
	if terr := o.transition(a, StateReady, func(a *asset) { a.metadata = meta }); terr != nil {
		log.Error().Err(terr).Msg("Failed to record analysis result")
	}
}

// StartEnhancement runs one enhancement pass over every ready asset in batch
// order, one call at a time with Options.InterCallDelay after each. A
// credential failure halts the pass: the remaining assets stay ready and the
// returned error wraps ErrPassHalted and remote.ErrCredential.
func (o *Orchestrator) StartEnhancement(ctx context.Context) (PassReport, error) {
	var report PassReport

	o.mu.Lock()
	if o.enhancing {
		o.mu.Unlock()
		return report, ErrPassInProgress
	}
	var candidates []*asset
	for _, a := range o.assets {
		if a.state == StateReady {
			a.pending = true
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		o.mu.Unlock()
		return report, ErrNothingToProcess
	}
	o.enhancing = true
	o.mu.Unlock()

	defer o.endEnhancement(candidates)

	log.Info().Int("assets", len(candidates)).Str("tier", string(o.tier())).Msg("Starting enhancement pass")

	for i, a := range candidates {
		if err := ctx.Err(); err != nil {
			report.Skipped = append(report.Skipped, assetIDs(candidates[i:])...)
			return report, err
		}

		err := o.enhanceOne(ctx, a)
		switch {
		case err == nil:
			report.Completed = append(report.Completed, a.id)
		case errors.Is(err, remote.ErrCredential):
			report.Failed = append(report.Failed, a.id)
			report.Skipped = append(report.Skipped, assetIDs(candidates[i+1:])...)
			report.Halted = true
			log.Error().
				Str("asset", a.id).
				Int("skipped", len(report.Skipped)).
				Msg("Credential failure, halting enhancement pass")
			return report, fmt.Errorf("%w: %w", ErrPassHalted, err)
		default:
			report.Failed = append(report.Failed, a.id)
		}

		if i < len(candidates)-1 {
			if err := o.opts.Sleep(ctx, o.opts.InterCallDelay); err != nil {
				report.Skipped = append(report.Skipped, assetIDs(candidates[i+1:])...)
				return report, err
			}
		}
	}

	log.Info().
		Int("completed", len(report.Completed)).
		Int("failed", len(report.Failed)).
		Msg("Enhancement pass complete")

	return report, nil
}

func (o *Orchestrator) endEnhancement(candidates []*asset) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range candidates {
		a.pending = false
	}
	o.enhancing = false
}

func assetIDs(assets []*asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.id
	}
	return out
}

func (o *Orchestrator) tier() domain.QualityTier {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts.Tier
}

// EffectivePrompt resolves the prompt for an asset: with UseGlobalPrompt the
// global prompt always wins, otherwise a non-empty override wins over it.
func EffectivePrompt(opts Options, override string) string {
	if opts.UseGlobalPrompt {
		return opts.GlobalPrompt
	}
	if override != "" {
		return override
	}
	return opts.GlobalPrompt
}

func (o *Orchestrator) enhanceOne(ctx context.Context, a *asset) error {
	var (
		prompt   string
		tier     domain.QualityTier
		enhancer Enhancer
		fallback bool
	)
	err := o.transition(a, StateProcessing, func(a *asset) {
		prompt = EffectivePrompt(o.opts, a.userPrompt)
		tier = o.opts.Tier
		enhancer = o.enhancer
		fallback = o.opts.FallbackToOriginal
		a.effectivePrompt = prompt
		a.pending = false
	})
	if err != nil {
		return err
	}

	req := domain.EnhanceRequest{
		AssetID:         a.id,
		Image:           a.norm.Input(),
		Tier:            tier,
		AspectRatio:     domain.AspectRatioFor(a.norm.SourceWidth, a.norm.SourceHeight),
		PreserveSubject: true,
		Refinement:      prompt,
	}

	start := time.Now()
	result, err := enhancer.Enhance(ctx, req)
	if err == nil && !result.HasImage() {
		err = remote.Errorf(remote.ErrMalformedResponse, "enhance", "enhancer returned no image")
	}
	if err != nil && fallback {
		var rerr *remote.Error
		if errors.As(err, &rerr) && rerr.Exhausted {
			err = &remote.Error{Kind: remote.ErrEnhancementUnavailable, Op: rerr.Op, Attempts: rerr.Attempts, Err: rerr}
		}
	}
	o.record("enhance", err, time.Since(start), a.id)

	if err != nil {
		log.Warn().Err(err).Str("asset", a.id).Msg("Enhancement failed")
		o.fail(a, err)
		return err
	}
	return o.transition(a, StateCompleted, func(a *asset) { a.result = result })
}

func (o *Orchestrator) record(op string, err error, latency time.Duration, assetID string) {
	if o.opts.Metrics == nil {
		return
	}
	result, attempts := "success", 1
	if err != nil {
		result = "error"
		if kind := remote.KindOf(err); kind != nil {
			result = resultLabel(kind)
		}
		var rerr *remote.Error
		if errors.As(err, &rerr) && rerr.Attempts > 0 {
			attempts = rerr.Attempts
		}
	}
	o.opts.Metrics.RecordCall(op, result, latency, attempts, assetID)
}

func resultLabel(kind error) string {
	switch kind {
	case remote.ErrCredential:
		return "credential"
	case remote.ErrSafety:
		return "safety"
	case remote.ErrInvalidInput:
		return "invalid_input"
	case remote.ErrMalformedResponse:
		return "malformed"
	case remote.ErrEnhancementUnavailable:
		return "unavailable"
	case remote.ErrTransient:
		return "transient"
	default:
		return "failed"
	}
}

// beginSingle claims the enhancement slot for one asset and validates that
// it can re-enter processing.
func (o *Orchestrator) beginSingle(id string, allowed ...State) (*asset, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if a.norm == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRetryable, id)
	}
	if a.state.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrAssetBusy, id)
	}
	if !slices.Contains(allowed, a.state) {
		return nil, fmt.Errorf("asset %s: %w: %s -> %s", id, ErrInvalidTransition, a.state, StateProcessing)
	}
	if o.enhancing {
		return nil, ErrPassInProgress
	}
	o.enhancing = true
	return a, nil
}

func (o *Orchestrator) endSingle() {
	o.mu.Lock()
	o.enhancing = false
	o.mu.Unlock()
}

// Retry re-submits a completed or failed asset straight to processing.
func (o *Orchestrator) Retry(ctx context.Context, id string) error {
	a, err := o.beginSingle(id, StateCompleted, StateError)
	if err != nil {
		return err
	}
	defer o.endSingle()
	log.Info().Str("asset", id).Msg("Retrying enhancement")
	return o.enhanceOne(ctx, a)
}

// Refine sets a per-asset prompt and enhances that asset immediately.
func (o *Orchestrator) Refine(ctx context.Context, id, prompt string) error {
	a, err := o.beginSingle(id, StateReady, StateCompleted, StateError)
	if err != nil {
		return err
	}
	defer o.endSingle()

	o.mu.Lock()
	a.userPrompt = prompt
	o.mu.Unlock()

	log.Info().Str("asset", id).Msg("Refining enhancement")
	return o.enhanceOne(ctx, a)
}

// SetPrompt edits an asset's prompt override. It is rejected once the asset
// has entered enhancement.
func (o *Orchestrator) SetPrompt(id, prompt string) error {
	o.mu.Lock()
	a, ok := o.index[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	switch a.state {
	case StateQueued, StateAnalyzing, StateReady:
	default:
		o.mu.Unlock()
		return fmt.Errorf("%w: asset %s is %s", ErrPromptLocked, id, a.state)
	}
	a.userPrompt = prompt
	snap := a.snapshot()
	o.mu.Unlock()

	o.notify(snap)
	return nil
}

// SetGlobalPrompt sets the batch prompt and whether it overrides every asset.
func (o *Orchestrator) SetGlobalPrompt(prompt string, useForAll bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opts.GlobalPrompt = prompt
	o.opts.UseGlobalPrompt = useForAll
}

// SetTier changes the quality tier used by later enhancement calls.
func (o *Orchestrator) SetTier(tier domain.QualityTier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opts.Tier = tier
}

// SetEnhancer swaps the enhancement backend. It is rejected while enhancing.
func (o *Orchestrator) SetEnhancer(e Enhancer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enhancing {
		return ErrPassInProgress
	}
	o.enhancer = e
	return nil
}

// Remove drops an asset from the batch and releases its preview.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	a, ok := o.index[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	if a.state.IsActive() || a.pending {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAssetBusy, id)
	}
	delete(o.index, id)
	o.assets = slices.DeleteFunc(o.assets, func(x *asset) bool { return x == a })
	h := o.takePreview(a)
	snap := a.snapshot()
	snap.Removed = true
	o.mu.Unlock()

	err := o.releasePreview(h)
	o.notify(snap)
	return err
}

// Reset discards the whole batch and releases every preview.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.enhancing {
		o.mu.Unlock()
		return ErrBatchActive
	}
	for _, a := range o.assets {
		if a.state.IsActive() {
			o.mu.Unlock()
			return ErrBatchActive
		}
	}
	var handles []*preview.Handle
	for _, a := range o.assets {
		if h := o.takePreview(a); h != nil {
			handles = append(handles, h)
		}
	}
	count := len(o.assets)
	o.assets = nil
	o.index = make(map[string]*asset)
	o.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := o.releasePreview(h); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info().Int("assets", count).Msg("Batch reset")
	return errors.Join(errs...)
}

// takePreview marks a's preview released and returns it, or nil if there is
// nothing left to release. Callers hold o.mu.
func (o *Orchestrator) takePreview(a *asset) *preview.Handle {
	if a.released || a.norm == nil || a.norm.Preview == nil {
		return nil
	}
	a.released = true
	return a.norm.Preview
}

func (o *Orchestrator) releasePreview(h *preview.Handle) error {
	if h == nil || o.previews == nil {
		return nil
	}
	if err := o.previews.Release(h); err != nil {
		log.Warn().Err(err).Str("preview", h.ID).Msg("Failed to release preview")
		return err
	}
	return nil
}

// IsBatchActive reports whether any asset is analyzing or processing.
func (o *Orchestrator) IsBatchActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeLocked()
}

func (o *Orchestrator) activeLocked() bool {
	for _, a := range o.assets {
		if a.state.IsActive() {
			return true
		}
	}
	return false
}

// Asset returns a snapshot of one asset.
func (o *Orchestrator) Asset(id string) (AssetSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.index[id]
	if !ok {
		return AssetSnapshot{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return a.snapshot(), nil
}

// Snapshot returns a consistent copy of the batch in ingestion order.
func (o *Orchestrator) Snapshot() BatchSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := BatchSnapshot{
		Assets:          make([]AssetSnapshot, len(o.assets)),
		Active:          o.activeLocked(),
		Enhancing:       o.enhancing,
		GlobalPrompt:    o.opts.GlobalPrompt,
		UseGlobalPrompt: o.opts.UseGlobalPrompt,
		Tier:            o.opts.Tier,
	}
	for i, a := range o.assets {
		snap.Assets[i] = a.snapshot()
	}
	return snap
}

// Completed returns snapshots of completed assets in batch order.
func (o *Orchestrator) Completed() []AssetSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []AssetSnapshot
	for _, a := range o.assets {
		if a.state == StateCompleted {
			out = append(out, a.snapshot())
		}
	}
	return out
}
