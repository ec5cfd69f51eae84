package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/providers/genai"
	"contentforge/internal/storage"
)

// Provider is the generative capability the processor drives. Satisfied by
// *genai.Client; tests substitute fakes.
type Provider interface {
	GenerateArticle(ctx context.Context, instruction, systemPrompt string) (*genai.ArticleDraft, error)
	GenerateVisionArticle(ctx context.Context, imageData []byte, mimeType, instruction, systemPrompt string) (*genai.ArticleDraft, error)
	GenerateImage(ctx context.Context, prompt string) (*genai.ImageAsset, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, string, error)
}

// Notifier broadcasts job snapshots to subscribers. Satisfied by
// *progress.Broker.
type Notifier interface {
	PublishJob(ctx context.Context, job *domain.Job)
}

// ImageStore persists generated image bytes and returns the storage key.
type ImageStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Options configures a Processor.
type Options struct {
	Jobs     domain.JobRepository
	Articles domain.ArticleRepository
	Provider Provider
	Notify   Notifier
	Store    ImageStore
	Logger   infra.Logger

	// JobTimeout bounds one whole batch; CallTimeout bounds each provider
	// call. Zero values fall back to the worker defaults.
	JobTimeout  time.Duration
	CallTimeout time.Duration

	// StorageBaseURL prefixes storage keys when building article image URLs.
	StorageBaseURL string
}

const (
	defaultJobTimeout  = 9 * time.Minute
	defaultCallTimeout = 60 * time.Second
)

// ErrNoJob is returned by ProcessNext when no pending job is available.
var ErrNoJob = errors.New("no job available")

// Processor drives one claimed job from processing to a terminal status,
// producing articles along the way. Items are generated strictly
// sequentially: image generation depends on the text output of the same
// item, and provider rate limits favor serialization.
type Processor struct {
	jobs        domain.JobRepository
	articles    domain.ArticleRepository
	provider    Provider
	notify      Notifier
	store       ImageStore
	logger      infra.Logger
	jobTimeout  time.Duration
	callTimeout time.Duration
	baseURL     string
}

// NewProcessor wires a processor from its collaborators.
func NewProcessor(opts Options) *Processor {
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Processor{
		jobs:        opts.Jobs,
		articles:    opts.Articles,
		provider:    opts.Provider,
		notify:      opts.Notify,
		store:       opts.Store,
		logger:      opts.Logger,
		jobTimeout:  jobTimeout,
		callTimeout: callTimeout,
		baseURL:     strings.TrimRight(opts.StorageBaseURL, "/"),
	}
}

// ProcessNext claims one job and runs it to a terminal status. Returns
// ErrNoJob when nothing is claimable. Claiming is a guarded transition, so
// concurrent workers and duplicate wakeups each end up with at most one run
// per job. Processing rows whose last write predates the batch budget by a
// margin are claimed as well; their previous worker crashed mid-batch and
// the run resumes from the recorded progress.
func (p *Processor) ProcessNext(ctx context.Context) error {
	job, err := p.jobs.ClaimPending(ctx, p.jobTimeout+time.Minute)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrNoJob
		}
		return fmt.Errorf("claim job: %w", err)
	}
	p.runJob(ctx, job)
	return nil
}

// Run claims and processes jobs until the context ends. Wakeups arrive on
// the wake channel when new jobs are created; the poll interval covers
// missed notifications and jobs left over from crashed workers.
func (p *Processor) Run(ctx context.Context, wake <-chan string, poll time.Duration) error {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	p.logger.Info().Msg("worker: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := p.ProcessNext(ctx)
		if err == nil {
			// More work may be queued behind the job just finished.
			continue
		}
		if !errors.Is(err, ErrNoJob) {
			p.logger.Error().Err(err).Msg("worker: failed to claim job")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-time.After(poll):
		}
	}
}

func (p *Processor) runJob(ctx context.Context, job *domain.Job) {
	logger := p.logger.With().Str("job_id", job.ID).Str("mode", string(job.Mode)).Logger()
	logger.Info().Int("count", job.Count).Msg("worker: picked job")

	p.publish(ctx, job)

	// The batch budget uses its own context so a timed-out job can still be
	// marked failed through the parent.
	batchCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	// Resume from the recorded progress so a re-claimed job (crashed worker)
	// does not regenerate items it already persisted.
	for item := job.Progress + 1; item <= job.Count; item++ {
		if halted := p.checkCancelled(ctx, job, logger); halted {
			return
		}

		logger.Info().Int("item", item).Msg("worker: generating article")
		article, err := p.generateItem(batchCtx, job, item)
		if err != nil {
			p.fail(ctx, job, err, logger)
			return
		}

		if err := p.articles.Create(ctx, article); err != nil {
			p.fail(ctx, job, fmt.Errorf("%w: persist article: %v", domain.ErrStore, err), logger)
			return
		}

		if err := p.jobs.UpdateProgress(ctx, job.ID, item); err != nil {
			// A lost progress write means the job was cancelled under us;
			// the stored status stands and no processing snapshot goes out.
			if errors.Is(err, domain.ErrInvalidState) {
				logger.Info().Int("item", item).Msg("worker: job no longer processing, halting")
				p.publishCurrent(ctx, job.ID)
				return
			}
			p.fail(ctx, job, fmt.Errorf("%w: record progress: %v", domain.ErrStore, err), logger)
			return
		}
		job.Progress = item
		p.publish(ctx, job)
	}

	if err := p.jobs.Finish(ctx, job.ID, domain.JobStatusCompleted, ""); err != nil {
		// A cancellation racing the last item wins; never overwrite it.
		if errors.Is(err, domain.ErrInvalidState) {
			p.publishCurrent(ctx, job.ID)
			return
		}
		logger.Error().Err(err).Msg("worker: completion write failed")
		return
	}
	job.Status = domain.JobStatusCompleted
	p.publish(ctx, job)
	logger.Info().Msg("worker: job completed")
}

// checkCancelled re-reads the job once per iteration boundary. Cancellation
// is cooperative: an in-flight provider call always finishes first, bounding
// cancellation latency to at most one item.
func (p *Processor) checkCancelled(ctx context.Context, job *domain.Job, logger infra.Logger) bool {
	current, err := p.jobs.GetByID(ctx, job.ID)
	if err != nil {
		logger.Error().Err(err).Msg("worker: status re-read failed")
		p.fail(ctx, job, fmt.Errorf("%w: re-read job: %v", domain.ErrStore, err), logger)
		return true
	}
	if current.Status == domain.JobStatusCancelled {
		logger.Info().Msg("worker: job cancelled, halting")
		p.publish(ctx, current)
		return true
	}
	if current.Status != domain.JobStatusProcessing {
		// Already terminal through some other path; nothing left to do.
		return true
	}
	return false
}

func (p *Processor) generateItem(ctx context.Context, job *domain.Job, item int) (*domain.Article, error) {
	switch job.Mode {
	case domain.ModeImage:
		return p.generateFromImage(ctx, job, item)
	default:
		return p.generateFromText(ctx, job, item)
	}
}

func (p *Processor) generateFromText(ctx context.Context, job *domain.Job, item int) (*domain.Article, error) {
	var instruction string
	if job.Mode == domain.ModeWebsite {
		instruction = fmt.Sprintf(
			"Analyze the content of the website at this URL: %s. Based on its content, create an engaging social media post written in %s. Create a new title, content, and a creative image prompt.",
			job.Topic, job.Language)
	} else {
		instruction = fmt.Sprintf(
			"Generate one social media post about the following topic: %q. The post must be written in %s.",
			job.Topic, job.Language)
	}

	draft, err := p.providerDraft(ctx, func(callCtx context.Context) (*genai.ArticleDraft, error) {
		return p.provider.GenerateArticle(callCtx, instruction, job.SystemPrompt)
	})
	if err != nil {
		return nil, err
	}
	draft.ImagePrompt = genai.AppendSuffix(draft.ImagePrompt, job.ImagePromptSuffix)

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	asset, err := p.provider.GenerateImage(callCtx, draft.ImagePrompt)
	cancel()
	if err != nil {
		return nil, classify(ctx, err)
	}

	key, err := p.store.Write(ctx, storage.ImageKey(job.ID, item, asset.Format), asset.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: store image: %v", domain.ErrStore, err)
	}

	return &domain.Article{
		ID:          uuid.NewString(),
		UserID:      job.UserID,
		JobID:       job.ID,
		Title:       draft.Title,
		Content:     draft.Content,
		ImageURL:    p.imageURL(key),
		ImagePrompt: draft.ImagePrompt,
		Topic:       job.Topic,
		Mode:        job.Mode,
		Status:      domain.ArticleStatusDraft,
	}, nil
}

func (p *Processor) generateFromImage(ctx context.Context, job *domain.Job, item int) (*domain.Article, error) {
	sourceURL := job.SourceImage(item)
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: no source image for item %d", domain.ErrProvider, item)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	data, mime, err := p.provider.FetchImage(callCtx, sourceURL)
	cancel()
	if err != nil {
		return nil, classify(ctx, err)
	}

	instruction := fmt.Sprintf(
		"Describe this image and write a social media post about it in %s. Provide a title, content, and a new image prompt to recreate a similar, high-quality image.",
		job.Language)

	draft, err := p.providerDraft(ctx, func(callCtx context.Context) (*genai.ArticleDraft, error) {
		return p.provider.GenerateVisionArticle(callCtx, data, mime, instruction, job.SystemPrompt)
	})
	if err != nil {
		return nil, err
	}

	// The source image is reused as-is; no new image is generated.
	return &domain.Article{
		ID:          uuid.NewString(),
		UserID:      job.UserID,
		JobID:       job.ID,
		Title:       draft.Title,
		Content:     draft.Content,
		ImageURL:    sourceURL,
		ImagePrompt: draft.ImagePrompt,
		Mode:        job.Mode,
		Status:      domain.ArticleStatusDraft,
	}, nil
}

func (p *Processor) providerDraft(ctx context.Context, call func(context.Context) (*genai.ArticleDraft, error)) (*genai.ArticleDraft, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	draft, err := call(callCtx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return draft, nil
}

// classify folds context expiry into the timeout taxonomy; everything else
// surfaces as the provider error it already is.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}

// fail records the first error and stops the batch. Articles persisted by
// earlier iterations are preserved; there is no rollback.
func (p *Processor) fail(ctx context.Context, job *domain.Job, cause error, logger infra.Logger) {
	logger.Error().Err(cause).Msg("worker: job failed")

	// The batch context may already be past its deadline; write the terminal
	// status through a detached context so the failure is never lost.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.jobs.Finish(writeCtx, job.ID, domain.JobStatusFailed, cause.Error()); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// Lost the race against a cancellation; its status stands.
			p.publishCurrent(writeCtx, job.ID)
			return
		}
		logger.Error().Err(err).Msg("worker: failure write failed")
		return
	}
	job.Status = domain.JobStatusFailed
	job.Error = cause.Error()
	p.publish(writeCtx, job)
}

func (p *Processor) publish(ctx context.Context, job *domain.Job) {
	if p.notify == nil {
		return
	}
	p.notify.PublishJob(ctx, job)
}

func (p *Processor) publishCurrent(ctx context.Context, jobID string) {
	if p.notify == nil {
		return
	}
	if current, err := p.jobs.GetByID(ctx, jobID); err == nil {
		p.notify.PublishJob(ctx, current)
	}
}

func (p *Processor) imageURL(key string) string {
	if p.baseURL == "" {
		return key
	}
	return p.baseURL + "/" + key
}
