package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
)

// InviteRevoker は招待リンク失効操作のインターフェース。
type InviteRevoker interface {
	RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error
}

// InviteSweep は有効期間を超過した招待リンクを失効させるスイープ。
// 購読状態とは独立に動作し、発行済みリンクの寿命を上限で抑える。
type InviteSweep struct {
	invites repository.InviteRepository
	sender  InviteRevoker
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	ttl     time.Duration
}

// NewInviteSweep はInviteSweepの新しいインスタンスを生成する。
// ttlが0以下の場合はデフォルト値model.InviteTTL（1時間）を使用する。
func NewInviteSweep(
	invites repository.InviteRepository,
	sender InviteRevoker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	ttl time.Duration,
) *InviteSweep {
	if ttl <= 0 {
		ttl = model.InviteTTL
	}
	return &InviteSweep{
		invites: invites,
		sender:  sender,
		metrics: collector,
		logger:  logger,
		ttl:     ttl,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *InviteSweep) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("招待リンク期限スイープを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("ttl", s.ttl),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx, time.Now()); err != nil {
		s.logger.Error("招待リンク期限スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("招待リンク期限スイープを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, time.Now()); err != nil {
				s.logger.Error("招待リンク期限スイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は有効期間を超過した招待リンクを失効させ、行を削除する。
// 失効に失敗した項目は行を残し、次のティックで再試行する。
func (s *InviteSweep) RunOnce(ctx context.Context, now time.Time) error {
	expired, err := s.invites.ListExpired(ctx, now.Add(-s.ttl))
	if err != nil {
		return fmt.Errorf("failed to list expired invites: %w", err)
	}

	for _, invite := range expired {
		if !invite.Expired(now, s.ttl) {
			continue
		}
		if err := s.sender.RevokeChatInviteLink(ctx, invite.ChannelID, invite.InviteLink); err != nil {
			s.logger.Error("期限切れ招待リンクの失効に失敗しました",
				slog.String("invite_link", invite.InviteLink),
				slog.Int64("channel_id", invite.ChannelID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := s.invites.DeleteByID(ctx, invite.ID); err != nil {
			s.logger.Error("期限切れ招待リンクの削除に失敗しました",
				slog.String("invite_id", invite.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.metrics.RecordInviteRevoked()
		s.logger.Info("期限切れ招待リンクを失効させました",
			slog.String("invite_link", invite.InviteLink),
		)
	}

	return nil
}
