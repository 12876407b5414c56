// Package newsfeed は公式ニュースフィードの自動取込ジョブを提供する。
// RSS/Atomフィードを定期取得し、新着記事をお知らせとして登録する。
// 取込済み判定はフィード項目のGUIDで行う。
package newsfeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/repository"
	"github.com/straycat158/craftboard/internal/security"
)

// maxItemsPerCycle は1サイクルで取り込む最大記事数。
const maxItemsPerCycle = 20

// feedFetchTimeout はフィード取得のタイムアウト。
const feedFetchTimeout = 30 * time.Second

// maxFeedResponseSize はフィードレスポンスの最大サイズ（10MB）。
const maxFeedResponseSize = 10 * 1024 * 1024

// NewsImportedRecorder は取込件数のメトリクス記録インターフェース。
type NewsImportedRecorder interface {
	RecordNewsImported(count int)
}

// ImporterConfig は取込ジョブの設定。
type ImporterConfig struct {
	// FeedURL は取込元フィードのURL。空の場合はジョブを起動しない。
	FeedURL string
	// Interval は取込の実行間隔（デフォルト: 30分）。
	Interval time.Duration
}

// Importer はニュースフィードの取込ジョブ。
type Importer struct {
	announcementRepo repository.AnnouncementRepository
	ssrfGuard        security.SSRFGuardService
	sanitizer        security.ContentSanitizerService
	recorder         NewsImportedRecorder
	logger           *slog.Logger
	config           ImporterConfig
}

// NewImporter はImporterの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewImporter(
	announcementRepo repository.AnnouncementRepository,
	ssrfGuard security.SSRFGuardService,
	sanitizer security.ContentSanitizerService,
	recorder NewsImportedRecorder,
	logger *slog.Logger,
	config ImporterConfig,
) *Importer {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Minute
	}
	return &Importer{
		announcementRepo: announcementRepo,
		ssrfGuard:        ssrfGuard,
		sanitizer:        sanitizer,
		recorder:         recorder,
		logger:           logger,
		config:           config,
	}
}

// Start は取込ジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (i *Importer) Start(ctx context.Context) {
	if i.config.FeedURL == "" {
		i.logger.Info("ニュースフィードURLが未設定のため取込ジョブを起動しません")
		return
	}

	ticker := time.NewTicker(i.config.Interval)
	defer ticker.Stop()

	i.logger.Info("ニュース取込ジョブを開始しました",
		slog.String("feed_url", i.config.FeedURL),
		slog.Duration("interval", i.config.Interval),
	)

	// 起動直後に1回実行
	if err := i.RunOnce(ctx); err != nil {
		i.logger.Error("ニュース取込サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("ニュース取込ジョブを停止しました")
			return
		case <-ticker.C:
			if err := i.RunOnce(ctx); err != nil {
				i.logger.Error("ニュース取込サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回の取込サイクルを実行する。
// フィードを取得し、GUIDで未取込の記事をお知らせとして登録する。
// 登録されたお知らせはDBトリガー経由でannouncementsトピックに配信される。
func (i *Importer) RunOnce(ctx context.Context) error {
	start := time.Now()

	feed, err := i.fetchFeed(ctx)
	if err != nil {
		return fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	imported := i.importFeed(ctx, feed)

	duration := time.Since(start)
	i.logger.Info("ニュース取込サイクルが完了しました",
		slog.Int("item_count", len(feed.Items)),
		slog.Int("imported_count", imported),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// importFeed はフィード内の各記事を取り込み、新規取込件数を返す。
func (i *Importer) importFeed(ctx context.Context, feed *gofeed.Feed) int {
	items := feed.Items
	if len(items) > maxItemsPerCycle {
		items = items[:maxItemsPerCycle]
	}

	imported := 0
	for _, item := range items {
		ok, err := i.importItem(ctx, item)
		if err != nil {
			i.logger.Error("記事の取込に失敗しました",
				slog.String("guid", itemGUID(item)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			imported++
		}
	}

	if i.recorder != nil && imported > 0 {
		i.recorder.RecordNewsImported(imported)
	}

	return imported
}

// fetchFeed はSSRF防止付きHTTPクライアントでフィードを取得・パースする。
func (i *Importer) fetchFeed(ctx context.Context) (*gofeed.Feed, error) {
	if err := i.ssrfGuard.ValidateURL(i.config.FeedURL); err != nil {
		return nil, fmt.Errorf("feed URL blocked: %w", err)
	}

	client := i.ssrfGuard.NewSafeClient(feedFetchTimeout, maxFeedResponseSize)

	parser := gofeed.NewParser()
	parser.Client = client

	feed, err := parser.ParseURLWithContext(i.config.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feed parse failed: %w", err)
	}
	return feed, nil
}

// importItem は1件のフィード項目を取り込む。
// 既に取込済みの場合はfalseを返す。
func (i *Importer) importItem(ctx context.Context, item *gofeed.Item) (bool, error) {
	guid := itemGUID(item)
	if guid == "" {
		return false, fmt.Errorf("item has no GUID or link")
	}

	existing, err := i.announcementRepo.FindBySourceGUID(ctx, guid)
	if err != nil {
		return false, fmt.Errorf("failed to check existing announcement: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	sanitized := i.sanitizer.Sanitize(content)

	createdAt := time.Now()
	if item.PublishedParsed != nil {
		createdAt = *item.PublishedParsed
	}

	a := &model.Announcement{
		ID:         uuid.New().String(),
		Title:      item.Title,
		Content:    sanitized,
		SourceURL:  item.Link,
		SourceGUID: guid,
		CreatedAt:  createdAt,
	}

	if err := i.announcementRepo.Create(ctx, a); err != nil {
		return false, fmt.Errorf("failed to create announcement: %w", err)
	}

	i.logger.Info("ニュース記事を取り込みました",
		slog.String("announcement_id", a.ID),
		slog.String("title", a.Title),
		slog.String("guid", guid),
	)

	return true, nil
}

// itemGUID はフィード項目の一意識別子を返す。GUIDが無い場合はリンクで代用する。
func itemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}
