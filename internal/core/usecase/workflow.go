package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/core/ports"
)

const (
	stageClassify  = "classify"
	stageDecline   = "decline"
	stageSelfQuery = "self_query"
	stageRetrieve  = "retrieve"
	stageFuse      = "fuse"
	stageFallback  = "fallback_retrieve"
	stageRerank    = "rerank"
	stageGenerate  = "generate"
)

const defaultRetrieverTopK = 20

// Run is the request-scoped workflow context. Transitions receive a copy and
// return the updated copy.
type Run struct {
	State      domain.WorkflowState
	Query      domain.Query
	Snapshot   ports.IndexSnapshot
	Parsed     ParsedQuery
	Candidates []domain.Candidate
	Final      []domain.Candidate
	Documents  []domain.ScoredDocument
	Answer     string
	Trace      domain.RunTrace
}

type transition func(ctx context.Context, run Run) (domain.WorkflowState, Run, error)

type OrchestratorDeps struct {
	Classifier    ports.TopicClassifier
	Parser        *SelfQueryParser
	Fusion        HybridFusion
	Reranker      *CrossEncoderReranker
	Generator     ports.Generator
	Observer      ports.WorkflowObserver
	Logger        *zap.Logger
	RetrieverTopK int
}

// Orchestrator runs the recommendation state machine:
//
//	START -> TOPIC_REJECTED | FILTERED_RETRIEVED
//	FILTERED_RETRIEVED -> FALLBACK_RETRIEVED (empty) | RERANKED
//	FALLBACK_RETRIEVED -> RERANKED
//	RERANKED -> ANSWERED
//
// Any failing step ends in FAILED.
type Orchestrator struct {
	classifier ports.TopicClassifier
	parser     *SelfQueryParser
	fusion     HybridFusion
	reranker   *CrossEncoderReranker
	generator  ports.Generator
	observer   ports.WorkflowObserver
	topK       int
	logger     *zap.Logger
	tracer     trace.Tracer

	transitions map[domain.WorkflowState]transition
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := deps.Parser
	if parser == nil {
		parser = NewSelfQueryParser(nil, logger)
	}
	reranker := deps.Reranker
	if reranker == nil {
		reranker = NewCrossEncoderReranker(defaultRerankTopN, logger)
	}
	topK := deps.RetrieverTopK
	if topK <= 0 {
		topK = defaultRetrieverTopK
	}

	o := &Orchestrator{
		classifier: deps.Classifier,
		parser:     parser,
		fusion:     deps.Fusion,
		reranker:   reranker,
		generator:  deps.Generator,
		observer:   deps.Observer,
		topK:       topK,
		logger:     logger,
		tracer:     otel.Tracer("github.com/kirillkom/fashion-recommender/workflow"),
	}
	o.transitions = map[domain.WorkflowState]transition{
		domain.StateStart:             o.fromStart,
		domain.StateFilteredRetrieved: o.fromFilteredRetrieved,
		domain.StateFallbackRetrieved: o.fromFallbackRetrieved,
		domain.StateReranked:          o.fromReranked,
	}
	return o
}

// Execute drives one request from START to a terminal state.
func (o *Orchestrator) Execute(ctx context.Context, snapshot ports.IndexSnapshot, query domain.Query) (Run, error) {
	run := Run{
		State:    domain.StateStart,
		Query:    query,
		Snapshot: snapshot,
		Trace: domain.RunTrace{
			States:         []domain.WorkflowState{domain.StateStart},
			StageDurations: make(map[string]time.Duration),
		},
	}

	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("query.language", string(query.Language)),
	))
	defer span.End()

	if snapshot == nil {
		err := domain.WrapError(domain.ErrIndexUnavailable, "execute workflow", errors.New("no index snapshot"))
		return o.fail(span, run, &domain.StageError{Stage: stageRetrieve, Err: err})
	}
	run.Trace.IndexVersion = snapshot.Version()

	for !run.State.Terminal() {
		if err := ctx.Err(); err != nil {
			return o.fail(span, run, &domain.StageError{
				Stage: string(run.State),
				Err:   domain.WrapError(domain.ErrTemporary, "execute workflow", err),
			})
		}
		step, ok := o.transitions[run.State]
		if !ok {
			return o.fail(span, run, &domain.StageError{
				Stage: string(run.State),
				Err:   fmt.Errorf("no transition from state %s", run.State),
			})
		}

		next, updated, err := step(ctx, run)
		if err != nil {
			return o.fail(span, updated, err)
		}
		updated.State = next
		updated.Trace.States = append(updated.Trace.States, next)
		run = updated
	}

	run.Trace.Final = run.State
	span.SetAttributes(
		attribute.String("workflow.final_state", string(run.State)),
		attribute.Bool("workflow.fallback", run.Trace.FallbackUsed),
		attribute.Int("workflow.documents", len(run.Documents)),
	)
	o.logger.Info("workflow_completed",
		zap.String("final_state", string(run.State)),
		zap.String("index_version", run.Trace.IndexVersion),
		zap.String("predicate", run.Trace.Predicate.String()),
		zap.Bool("fallback", run.Trace.FallbackUsed),
		zap.Bool("filter_degraded", run.Trace.FilterDegraded),
		zap.Bool("rerank_degraded", run.Trace.RerankDegraded),
		zap.Int("documents", len(run.Documents)),
	)
	o.observe(run.Trace)
	return run, nil
}

func (o *Orchestrator) fromStart(ctx context.Context, run Run) (domain.WorkflowState, Run, error) {
	var inDomain bool
	err := o.stage(ctx, &run, stageClassify, func(ctx context.Context) error {
		var err error
		inDomain, err = o.classify(ctx, run)
		return err
	})
	if err != nil {
		return domain.StateFailed, run, err
	}
	if !inDomain {
		run.Answer = o.decline(ctx, &run)
		run.Final = []domain.Candidate{}
		run.Documents = []domain.ScoredDocument{}
		return domain.StateTopicRejected, run, nil
	}

	_ = o.stage(ctx, &run, stageSelfQuery, func(ctx context.Context) error {
		run.Parsed = o.parser.Parse(ctx, run.Query, run.Snapshot.Schema())
		return nil
	})
	run.Trace.Residual = run.Parsed.Residual
	run.Trace.Predicate = run.Parsed.Predicate
	run.Trace.FilterDegraded = run.Parsed.Degraded

	candidates, err := o.retrieveAndFuse(ctx, &run, stageRetrieve, run.Parsed.Residual, run.Parsed.Predicate)
	if err != nil {
		return domain.StateFailed, run, err
	}
	run.Candidates = candidates
	return domain.StateFilteredRetrieved, run, nil
}

func (o *Orchestrator) fromFilteredRetrieved(ctx context.Context, run Run) (domain.WorkflowState, Run, error) {
	if len(run.Candidates) > 0 {
		return o.rerank(ctx, run)
	}

	run.Trace.FallbackUsed = true
	if run.Parsed.Predicate.IsEmpty() && run.Parsed.Residual == run.Query.Text {
		// the filtered pass was already an unfiltered query over the same text
		return domain.StateFallbackRetrieved, run, nil
	}

	candidates, err := o.retrieveAndFuse(ctx, &run, stageFallback, run.Query.Text, domain.FilterPredicate{})
	if err != nil {
		return domain.StateFailed, run, err
	}
	run.Candidates = candidates
	return domain.StateFallbackRetrieved, run, nil
}

func (o *Orchestrator) fromFallbackRetrieved(ctx context.Context, run Run) (domain.WorkflowState, Run, error) {
	return o.rerank(ctx, run)
}

func (o *Orchestrator) fromReranked(ctx context.Context, run Run) (domain.WorkflowState, Run, error) {
	docs := make([]domain.ScoredDocument, 0, len(run.Final))
	for _, c := range run.Final {
		doc, ok := run.Snapshot.Document(c.DocumentID)
		if !ok {
			continue
		}
		score := c.FusedScore
		if c.RerankScore != nil {
			score = *c.RerankScore
		}
		docs = append(docs, domain.ScoredDocument{Document: doc, Score: score})
	}
	req := domain.GenerationRequest{Query: run.Query, Documents: docs, NoMatch: len(docs) == 0}
	run.Trace.NoMatch = req.NoMatch

	var answer string
	err := o.stage(ctx, &run, stageGenerate, func(ctx context.Context) error {
		if o.generator == nil {
			return domain.WrapError(domain.ErrGenerationFailure, "generate answer", errors.New("no generator configured"))
		}
		out, err := o.generator.Generate(ctx, req)
		if err != nil {
			if domain.IsKind(err, domain.ErrGenerationFailure) {
				return err
			}
			return domain.WrapError(domain.ErrGenerationFailure, "generate answer", err)
		}
		answer = strings.TrimSpace(out)
		if answer == "" && !req.NoMatch {
			return domain.WrapError(domain.ErrGenerationFailure, "generate answer", errors.New("empty answer"))
		}
		return nil
	})
	if err != nil {
		return domain.StateFailed, run, err
	}
	if answer == "" {
		answer = domain.Message(domain.MessageNoMatch, run.Query.Language)
	}

	run.Answer = answer
	run.Documents = docs
	return domain.StateAnswered, run, nil
}

// decline asks the generator for an off-topic reply. Any failure falls back to
// the localized template; a decline never fails the request.
func (o *Orchestrator) decline(ctx context.Context, run *Run) string {
	template := domain.Message(domain.MessageDecline, run.Query.Language)
	if o.generator == nil {
		return template
	}
	var answer string
	err := o.stage(ctx, run, stageDecline, func(ctx context.Context) error {
		out, err := o.generator.Generate(ctx, domain.GenerationRequest{Query: run.Query, OffTopic: true})
		answer = strings.TrimSpace(out)
		return err
	})
	if err != nil || answer == "" {
		if err != nil {
			o.logger.Warn("decline_generation_degraded", zap.Error(err))
		}
		return template
	}
	return answer
}

func (o *Orchestrator) rerank(ctx context.Context, run Run) (domain.WorkflowState, Run, error) {
	_ = o.stage(ctx, &run, stageRerank, func(ctx context.Context) error {
		reranker := o.reranker.WithTopN(run.Snapshot.RerankTopN())
		final, degraded := reranker.Rerank(ctx, run.Query.Text, run.Candidates, run.Snapshot.Scorer(), run.Snapshot.Document)
		run.Final = final
		run.Trace.RerankDegraded = degraded
		return nil
	})
	return domain.StateReranked, run, nil
}

func (o *Orchestrator) classify(ctx context.Context, run Run) (bool, error) {
	guard := func() (bool, error) {
		return NewKeywordTopicGuard(run.Snapshot.Schema()).IsInDomain(ctx, run.Query)
	}
	if o.classifier == nil {
		return guard()
	}
	inDomain, err := o.classifier.IsInDomain(ctx, run.Query)
	if err == nil {
		return inDomain, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	o.logger.Warn("topic_classifier_degraded", zap.Error(err))
	return guard()
}

// retrieveAndFuse queries both retrievers concurrently and fuses once both
// have returned.
func (o *Orchestrator) retrieveAndFuse(
	ctx context.Context,
	run *Run,
	stage string,
	text string,
	predicate domain.FilterPredicate,
) ([]domain.Candidate, error) {
	sparse, dense := run.Snapshot.Sparse(), run.Snapshot.Dense()
	if sparse == nil || dense == nil {
		return nil, &domain.StageError{
			Stage: stage,
			Err:   domain.WrapError(domain.ErrIndexUnavailable, "retrieve", errors.New("retriever not loaded")),
		}
	}

	var sparseOut, denseOut []domain.Candidate
	err := o.stage(ctx, run, stage, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			out, err := sparse.Retrieve(gctx, text, predicate, o.topK)
			if err != nil {
				return fmt.Errorf("sparse retrieve: %w", err)
			}
			sparseOut = out
			return nil
		})
		g.Go(func() error {
			out, err := dense.Retrieve(gctx, text, predicate, o.topK)
			if err != nil {
				return fmt.Errorf("dense retrieve: %w", err)
			}
			denseOut = out
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	var fused []domain.Candidate
	_ = o.stage(ctx, run, stageFuse, func(context.Context) error {
		fused = o.fusion.Fuse(denseOut, sparseOut)
		return nil
	})
	return fused, nil
}

func (o *Orchestrator) stage(ctx context.Context, run *Run, name string, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "workflow."+name)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	run.Trace.StageDurations[name] += time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			return err
		}
		return &domain.StageError{Stage: name, Err: err}
	}
	return nil
}

func (o *Orchestrator) fail(span trace.Span, run Run, err error) (Run, error) {
	stage := domain.FailedStage(err)
	if stage == "" {
		stage = string(run.State)
		err = &domain.StageError{Stage: stage, Err: err}
	}
	run.State = domain.StateFailed
	run.Trace.States = append(run.Trace.States, domain.StateFailed)
	run.Trace.Final = domain.StateFailed
	run.Trace.FailedStage = stage

	span.RecordError(err)
	span.SetStatus(codes.Error, "workflow failed")
	o.logger.Error("workflow_failed",
		zap.String("stage", stage),
		zap.String("index_version", run.Trace.IndexVersion),
		zap.Error(err),
	)
	o.observe(run.Trace)
	return run, err
}

func (o *Orchestrator) observe(rt domain.RunTrace) {
	if o.observer != nil {
		o.observer.ObserveRun(rt)
	}
}
