// Package cleanup は処理済みメッセージマーカーの自動削除ジョブを提供する。
// 保持期間（デフォルト7日）を超過したマーカーを定期バッチで削除し、
// マーカーの無制限な増加を防ぐ。保持期間経過後は同一メッセージIDの
// 再処理が再び可能になる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
)

// CleanupJob は保持期間を超過した処理済みマーカーの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	relay         repository.RelayRepository
	logger        *slog.Logger
	RetentionDays int // マーカーの保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数はmodel.ProcessedRetention（7日）に従う。
func NewCleanupJob(relay repository.RelayRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		relay:         relay,
		logger:        logger,
		RetentionDays: int(model.ProcessedRetention / (24 * time.Hour)),
	}
}

// Run は保持期間を超過した処理済みマーカーを削除する。
// created_atがRetentionDays日前より古い行をDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := start.Add(-time.Duration(j.RetentionDays) * 24 * time.Hour)
	deleted, err := j.relay.DeleteProcessedOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("処理済みマーカークリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("処理済みマーカークリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("処理済みマーカークリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
