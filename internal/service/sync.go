package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"feed-translator/internal/engine"
	"feed-translator/internal/model"
	"feed-translator/internal/store"
)

// ErrFeedBusy 同一订阅源已有同步在进行
var ErrFeedBusy = errors.New("feed sync already in progress")

const (
	StageFetch     = "fetch"
	StageTranslate = "translate"
	StageSummarize = "summarize"
	StagePublish   = "publish"
)

// Fetcher 条件抓取订阅源
type Fetcher interface {
	Fetch(ctx context.Context, url, etag string) (*FetchResult, error)
}

// FeedReport 一次同步的结果，阶段状态与 Feed 上的字段一致
type FeedReport struct {
	Slug        string        `json:"slug"`
	Fetch       *bool         `json:"fetch"`
	Translation *bool         `json:"translation"`
	Summary     *bool         `json:"summary"`
	Updated     bool          `json:"updated"`
	Entries     int           `json:"entries"`
	EntryErrors int           `json:"entry_errors"`
	Tokens      int           `json:"tokens"`
	Characters  int           `json:"characters"`
	Published   bool          `json:"published"`
	Duration    time.Duration `json:"duration"`
}

// SyncOptions 同步参数
type SyncOptions struct {
	Workers    int
	MaxEntries int
	BaseURL    string
}

// Orchestrator 按 fetch → translate → summarize 的顺序同步订阅源，
// 同一订阅源不会被两个 worker 同时处理
type Orchestrator struct {
	repo      *store.Repository
	fetcher   Fetcher
	processor *EntryProcessor
	engines   EngineSource
	publisher Publisher
	metrics   *Metrics
	logger    *zap.Logger
	opts      SyncOptions
	now       func() time.Time

	mu       sync.Mutex
	inflight map[uint]struct{}
	wg       sync.WaitGroup
}

func NewOrchestrator(repo *store.Repository, fetcher Fetcher, processor *EntryProcessor, engines EngineSource,
	publisher Publisher, metrics *Metrics, logger *zap.Logger, opts SyncOptions) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Orchestrator{
		repo:      repo,
		fetcher:   fetcher,
		processor: processor,
		engines:   engines,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("sync"),
		opts:      opts,
		now:       time.Now,
		inflight:  make(map[uint]struct{}),
	}
}

func (o *Orchestrator) acquire(id uint) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	o.wg.Add(1)
	return true
}

func (o *Orchestrator) release(id uint) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
	o.wg.Done()
}

// Busy 订阅源是否正在同步
func (o *Orchestrator) Busy(id uint) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inflight[id]
	return busy
}

// Exclusive 占用订阅源后执行 fn，期间不会开始新的同步
func (o *Orchestrator) Exclusive(id uint, fn func() error) error {
	if !o.acquire(id) {
		return ErrFeedBusy
	}
	defer o.release(id)
	return fn()
}

// Wait 等待进行中的同步结束，ctx 到期时返回其错误
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncBucket 并发同步一个刷新间隔下的全部订阅源。
// 单个订阅源的失败只记录在它自己的状态里
func (o *Orchestrator) SyncBucket(ctx context.Context, bucket model.RefreshBucket) ([]FeedReport, error) {
	start := o.now()
	feeds, err := o.repo.FeedsByBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	o.logger.Info("sync bucket", zap.Stringer("bucket", bucket), zap.Int("feeds", len(feeds)))

	reports := make([]FeedReport, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i := range feeds {
		feed := &feeds[i]
		g.Go(func() error {
			report, err := o.SyncFeed(gctx, feed)
			if err != nil {
				if errors.Is(err, ErrFeedBusy) {
					o.logger.Info("skip busy feed", zap.String("slug", feed.Slug))
				} else {
					o.logger.Error("sync feed failed", zap.String("slug", feed.Slug), zap.Error(err))
				}
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	o.metrics.ObserveSync(bucket.String(), time.Since(start))
	return reports, ctx.Err()
}

// SyncFeed 同步一个订阅源。阶段失败写入 feed 状态和操作日志，不作为错误返回；
// 只有订阅源正忙或上下文取消时返回错误
func (o *Orchestrator) SyncFeed(ctx context.Context, feed *model.Feed) (report FeedReport, err error) {
	report.Slug = feed.Slug
	if !o.acquire(feed.ID) {
		return report, ErrFeedBusy
	}
	defer o.release(feed.ID)

	start := o.now()
	defer func() { report.Duration = time.Since(start) }()
	log := o.logger.With(zap.String("slug", feed.Slug), zap.String("url", feed.URL))

	updated := o.fetch(ctx, feed, log)
	report.Fetch = feed.FetchStatus
	report.Updated = updated
	if isFalse(feed.FetchStatus) {
		return report, ctx.Err()
	}

	entries, err := o.repo.Entries(ctx, feed.ID)
	if err != nil {
		log.Error("load entries failed", zap.Error(err))
		return report, ctx.Err()
	}
	report.Entries = len(entries)
	if len(entries) == 0 {
		return report, ctx.Err()
	}

	changed, failed := updated, false
	if feed.TranslateTitle || feed.TranslateContent {
		res := o.runStage(ctx, feed, entries, StageTranslate, log)
		report.Translation = feed.TranslationStatus
		failed = failed || isFalse(feed.TranslationStatus)
		report.EntryErrors += res.errors
		report.Tokens += res.cost.Tokens
		report.Characters += res.cost.Characters
		changed = changed || res.changed
	}
	if feed.Summarize {
		res := o.runStage(ctx, feed, entries, StageSummarize, log)
		report.Summary = feed.SummaryStatus
		failed = failed || isFalse(feed.SummaryStatus)
		report.EntryErrors += res.errors
		report.Tokens += res.cost.Tokens
		report.Characters += res.cost.Characters
		changed = changed || res.changed
	}

	// 有阶段失败时继续使用上一次的输出；上一次发布失败时没有变化也重新发布
	if (changed || feed.ArtifactStale) && !failed && o.publisher != nil {
		report.Published = o.publish(ctx, feed, entries, log) == nil
	}
	return report, ctx.Err()
}

// fetch 返回是否拿到了新内容。抓取期间 FetchStatus 为空，304 时恢复原值
func (o *Orchestrator) fetch(ctx context.Context, feed *model.Feed, log *zap.Logger) bool {
	prev := feed.FetchStatus
	feed.FetchStatus = nil
	o.saveFeed(ctx, feed, log, "FetchStatus")

	res, err := o.fetcher.Fetch(ctx, feed.URL, feed.ETag)
	now := o.now()
	if err != nil {
		feed.FetchStatus = model.Bool(false)
		feed.AppendLog(now, "fetch failed: %v", err)
		log.Warn("fetch failed", zap.Error(err))
		o.metrics.Stage(StageFetch, false)
		o.saveFeed(ctx, feed, log, "FetchStatus", "Log")
		return false
	}
	if !res.Updated {
		log.Debug("feed not modified")
		feed.FetchStatus = prev
		o.saveFeed(ctx, feed, log, "FetchStatus")
		return false
	}

	if res.Feed != nil && (feed.Name == "" || feed.Name == feed.URL) {
		if res.Feed.Title != "" {
			feed.Name = res.Feed.Title
		}
	}
	fresh := EntriesFromFeed(res.Feed, o.opts.MaxEntries, now)
	feed.ETag = res.ETag
	feed.LastFetch = &now
	feed.FetchStatus = model.Bool(true)
	feed.AppendLog(now, "fetched %d entries", len(fresh))

	err = o.repo.SaveFetch(ctx, feed, fresh, []string{"Name", "ETag", "LastFetch", "FetchStatus", "Log"})
	if err != nil {
		feed.FetchStatus = model.Bool(false)
		feed.AppendLog(now, "save entries failed: %v", err)
		log.Error("save fetched entries failed", zap.Error(err))
		o.metrics.Stage(StageFetch, false)
		o.saveFeed(ctx, feed, log, "FetchStatus", "Log")
		return false
	}
	o.metrics.Stage(StageFetch, true)
	log.Info("feed fetched", zap.Int("entries", len(fresh)))
	return true
}

func isFalse(b *bool) bool { return b != nil && !*b }

type stageResult struct {
	cost    Cost
	errors  int
	changed bool
}

// runStage 对每个条目执行翻译或摘要，最后一次性写回变化的条目和 feed 字段。
// 条目级错误只记录；缺少引擎或写入失败时阶段失败。
// ctx 取消时已完成的条目仍然写回，阶段记为失败
func (o *Orchestrator) runStage(ctx context.Context, feed *model.Feed, entries []model.Entry, stage string, log *zap.Logger) stageResult {
	var (
		res     stageResult
		status  **bool
		fields  []string
		columns []string
		engID   *uint
		process func(ctx context.Context, eng engine.Engine, e *model.Entry) (Cost, error)
		dirty   func(before, after *model.Entry) bool
	)
	switch stage {
	case StageTranslate:
		status, engID = &feed.TranslationStatus, feed.TranslatorID
		fields = []string{"TranslationStatus", "TotalTokens", "TotalCharacters", "Log"}
		columns = store.TranslateEntryColumns
		process = func(ctx context.Context, eng engine.Engine, e *model.Entry) (Cost, error) {
			return o.processor.Translate(ctx, feed, eng, e)
		}
		dirty = func(before, after *model.Entry) bool {
			return before.TranslatedTitle != after.TranslatedTitle || before.TranslatedContent != after.TranslatedContent
		}
	default:
		status, engID = &feed.SummaryStatus, feed.SummarizerID
		fields = []string{"SummaryStatus", "TotalTokens", "TotalCharacters", "Log"}
		columns = store.SummaryEntryColumns
		process = func(ctx context.Context, eng engine.Engine, e *model.Entry) (Cost, error) {
			return o.processor.Summarize(ctx, feed, eng, e)
		}
		dirty = func(before, after *model.Entry) bool { return before.AISummary != after.AISummary }
	}

	*status = nil
	o.saveFeed(ctx, feed, log, fields[0])
	fail := func(format string, args ...any) stageResult {
		*status = model.Bool(false)
		feed.AppendLog(o.now(), "%s failed: %s", stage, fmt.Sprintf(format, args...))
		o.metrics.Stage(stage, false)
		o.saveFeed(ctx, feed, log, fields...)
		return res
	}

	eng, err := o.engines.Engine(ctx, engID)
	if err != nil {
		log.Warn("no engine for stage", zap.String("stage", stage), zap.Error(err))
		return fail("%v", err)
	}

	var mutated []model.Entry
	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		before := entries[i]
		cost, err := process(ctx, eng, &entries[i])
		res.cost.AddCost(cost)
		if err != nil {
			res.errors++
			log.Warn("entry failed", zap.String("stage", stage), zap.String("guid", entries[i].GUID), zap.Error(err))
		}
		if dirty(&before, &entries[i]) {
			mutated = append(mutated, entries[i])
		}
	}
	interrupted := ctx.Err()
	saveCtx := ctx
	if interrupted != nil {
		saveCtx = context.WithoutCancel(ctx)
	}

	// 写入失败时恢复计数器和日志
	tokens, characters, prevLog := feed.TotalTokens, feed.TotalCharacters, feed.Log
	// 每个服务只按一种方式计费
	if res.cost.Tokens > 0 {
		feed.TotalTokens += int64(res.cost.Tokens)
	} else {
		feed.TotalCharacters += int64(res.cost.Characters)
	}
	if interrupted != nil {
		*status = model.Bool(false)
		feed.AppendLog(o.now(), "%s interrupted: %v, %d updated, %d failed, %d tokens, %d characters",
			stage, interrupted, len(mutated), res.errors, res.cost.Tokens, res.cost.Characters)
	} else {
		*status = model.Bool(true)
		feed.AppendLog(o.now(), "%s done: %d updated, %d failed, %d tokens, %d characters",
			stage, len(mutated), res.errors, res.cost.Tokens, res.cost.Characters)
	}
	if err := o.repo.SaveStage(saveCtx, feed, fields, mutated, columns); err != nil {
		feed.TotalTokens, feed.TotalCharacters, feed.Log = tokens, characters, prevLog
		log.Error("save stage failed", zap.String("stage", stage), zap.Error(err))
		return fail("%v", err)
	}
	o.metrics.AddCost(feed.Slug, res.cost)
	o.metrics.Stage(stage, interrupted == nil)
	res.changed = len(mutated) > 0
	log.Info("stage done", zap.String("stage", stage), zap.Int("updated", len(mutated)),
		zap.Int("errors", res.errors), zap.Bool("interrupted", interrupted != nil))
	return res
}

// publish 失败时保留上一次成功的输出文件，并标记为待重新发布
func (o *Orchestrator) publish(ctx context.Context, feed *model.Feed, entries []model.Entry, log *zap.Logger) error {
	data, err := RenderAtom(feed, entries, o.opts.BaseURL, o.now())
	if err == nil {
		err = o.publisher.Publish(ctx, feed.Slug, data)
	}
	if err != nil {
		log.Error("publish failed", zap.Error(err))
		o.metrics.Stage(StagePublish, false)
		feed.ArtifactStale = true
		feed.AppendLog(o.now(), "publish failed: %v", err)
		o.saveFeed(ctx, feed, log, "ArtifactStale", "Log")
		return err
	}
	if feed.ArtifactStale {
		feed.ArtifactStale = false
		o.saveFeed(ctx, feed, log, "ArtifactStale")
	}
	o.metrics.Stage(StagePublish, true)
	return nil
}

// Republish 重新生成输出文件，用于重置之后
func (o *Orchestrator) Republish(ctx context.Context, feed *model.Feed) error {
	if o.publisher == nil {
		return nil
	}
	entries, err := o.repo.Entries(ctx, feed.ID)
	if err != nil {
		return err
	}
	return o.publish(ctx, feed, entries, o.logger.With(zap.String("slug", feed.Slug)))
}

// Render 用库中的条目生成指定格式的文档，不发布
func (o *Orchestrator) Render(ctx context.Context, feed *model.Feed, format FeedFormat) ([]byte, error) {
	entries, err := o.repo.Entries(ctx, feed.ID)
	if err != nil {
		return nil, err
	}
	return Render(feed, entries, o.opts.BaseURL, o.now(), format)
}

func (o *Orchestrator) saveFeed(ctx context.Context, feed *model.Feed, log *zap.Logger, fields ...string) {
	// 取消后仍然写回状态
	if err := o.repo.UpdateFeed(context.WithoutCancel(ctx), feed, fields...); err != nil {
		log.Error("save feed failed", zap.Strings("fields", fields), zap.Error(err))
	}
}
