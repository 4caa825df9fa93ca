// Package gtmfactory provides a high-level façade over the research engine
// and its services (session store, discovery catalog, workers and logging).
// Most applications interact with this package by:
//  1. Creating a Factory via New (in-memory services) or NewFromConfig
//     (file-backed store, configured model and catalog)
//  2. Conversing with a session until its strategic brief is complete
//  3. Planning, approving and executing drops, then reading the living
//     document and the metadata catalog
//
// The façade delegates orchestration to engine.Engine while keeping setup
// concise. Defaults are safe for local development and testing.
package gtmfactory

import (
	"context"
	"errors"
	"io"

	"github.com/milehighfry405/gtm-factory-sub000/artifact"
	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/engine"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
	"github.com/milehighfry405/gtm-factory-sub000/memory"
	"github.com/milehighfry405/gtm-factory-sub000/session"
	"github.com/milehighfry405/gtm-factory-sub000/synthesis"
)

// Options configures a Factory. Unset stores default to in-memory
// implementations; Engine receives the remaining engine options.
type Options struct {
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	Catalog       core.Catalog
	Engine        []func(o *engine.Options)
	Logger        logging.Logger
}

// Factory is the high-level façade aggregating the engine and its services.
type Factory struct {
	opts    Options
	engine  *engine.Engine
	closers []func() error
}

// New creates a Factory whose drops are executed by worker.
func New(worker core.Worker, optFns ...func(o *Options)) *Factory {
	opts := Options{
		ArtifactStore: artifact.NewInMemoryStore(),
		Catalog:       memory.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.New(opts.ArtifactStore, func(o *session.Options) { o.Logger = opts.Logger })
	}

	engineOpts := append([]func(o *engine.Options){func(o *engine.Options) {
		o.Catalog = opts.Catalog
		o.Logger = opts.Logger
	}}, opts.Engine...)

	return &Factory{opts: opts, engine: engine.New(opts.SessionStore, worker, engineOpts...)}
}

// Engine exposes the underlying engine.
func (f *Factory) Engine() *engine.Engine { return f.engine }

// Close releases resources acquired by NewFromConfig, such as the SQLite
// catalog and the log file.
func (f *Factory) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		errs = append(errs, f.closers[i]())
	}
	f.closers = nil
	return errors.Join(errs...)
}

// Converse appends user turns to the session and re-extracts its brief.
func (f *Factory) Converse(ctx context.Context, ref core.SessionRef, messages ...string) (*engine.ConverseResult, error) {
	turns := make([]core.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, core.Turn{Role: core.RoleUser, Content: m})
	}
	return f.engine.Converse(ctx, ref, turns...)
}

// PlanGoal records goal as a user turn and proposes the next drop for it.
// A *core.PlanningError carries the clarifying questions when the goal alone
// is not enough context.
func (f *Factory) PlanGoal(ctx context.Context, ref core.SessionRef, goal string) (*core.DropPlan, error) {
	if _, err := f.Converse(ctx, ref, goal); err != nil {
		return nil, err
	}
	return f.engine.Plan(ctx, ref)
}

// Plan proposes the next drop from the session's current brief.
func (f *Factory) Plan(ctx context.Context, ref core.SessionRef) (*core.DropPlan, error) {
	return f.engine.Plan(ctx, ref)
}

// Approve accepts the proposed plan.
func (f *Factory) Approve(ctx context.Context, ref core.SessionRef) error {
	return f.engine.Approve(ctx, ref)
}

// Reject declines the proposed plan with optional feedback.
func (f *Factory) Reject(ctx context.Context, ref core.SessionRef, feedback string) error {
	return f.engine.Reject(ctx, ref, feedback)
}

// Execute runs the approved drop.
func (f *Factory) Execute(ctx context.Context, ref core.SessionRef) (*core.DropSummary, error) {
	return f.engine.Execute(ctx, ref)
}

// Resolve settles a contested claim in favour of claimID.
func (f *Factory) Resolve(ctx context.Context, ref core.SessionRef, claimID string) (*core.LivingDocument, error) {
	return f.engine.Resolve(ctx, ref, claimID)
}

// CloseSession ends a session.
func (f *Factory) CloseSession(ctx context.Context, ref core.SessionRef) error {
	return f.engine.Close(ctx, ref)
}

// GetLivingDocument returns the session's current living document.
func (f *Factory) GetLivingDocument(ctx context.Context, ref core.SessionRef) (*core.LivingDocument, error) {
	return f.engine.GetLivingDocument(ctx, ref)
}

// RenderDocument returns the living document as markdown.
func (f *Factory) RenderDocument(ctx context.Context, ref core.SessionRef) (string, error) {
	doc, err := f.engine.GetLivingDocument(ctx, ref)
	if err != nil {
		return "", err
	}
	return synthesis.Render(doc)
}

// ExportHTML writes the living document to w as an HTML page.
func (f *Factory) ExportHTML(ctx context.Context, ref core.SessionRef, w io.Writer) error {
	md, err := f.RenderDocument(ctx, ref)
	if err != nil {
		return err
	}
	return WriteHTML(w, "Living Document: "+ref.Key(), md)
}

// FindRelated returns catalog records sharing tags, best match first.
func (f *Factory) FindRelated(ctx context.Context, tags []string, limit int) ([]core.MetadataRecord, error) {
	return f.engine.FindRelated(ctx, tags, limit)
}

// Session returns the session record.
func (f *Factory) Session(ctx context.Context, ref core.SessionRef) (*core.Session, error) {
	return f.engine.Session(ctx, ref)
}

// Sessions lists every stored session.
func (f *Factory) Sessions(ctx context.Context) ([]core.SessionRef, error) {
	return f.engine.Sessions(ctx)
}

// CurrentPlan returns the open drop's plan.
func (f *Factory) CurrentPlan(ctx context.Context, ref core.SessionRef) (*core.DropPlan, error) {
	return f.engine.CurrentPlan(ctx, ref)
}

// Summary returns a completed drop's summary.
func (f *Factory) Summary(ctx context.Context, ref core.SessionRef, dropID string) (*core.DropSummary, error) {
	return f.engine.Summary(ctx, ref, dropID)
}

// Analysis returns the critical analysis of a drop's raw findings.
func (f *Factory) Analysis(ctx context.Context, ref core.SessionRef, dropID string) (*core.Analysis, error) {
	return f.engine.Analysis(ctx, ref, dropID)
}

// RecoverAll returns interrupted drops to plan_approved.
func (f *Factory) RecoverAll(ctx context.Context) ([]core.SessionRef, error) {
	return f.engine.RecoverAll(ctx)
}

// Abandon closes an interrupted drop as all-failed without running it again.
func (f *Factory) Abandon(ctx context.Context, ref core.SessionRef, reason string) (*core.DropSummary, error) {
	return f.engine.Abandon(ctx, ref, reason)
}

// Reindex rebuilds the metadata catalog from the session store.
func (f *Factory) Reindex(ctx context.Context) (int, error) {
	return f.engine.Reindex(ctx)
}
