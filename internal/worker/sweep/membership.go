// Package sweep は購読期限と招待リンクの定期リコンサイル処理を提供する。
// 各スイープは逐次実行のフルスキャンであり、項目ごとにストアへ反映する。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/telegram"
)

// 購読期限関連の定型メッセージ。
const (
	msgWarning = "You will be removed from the premium channels in 24 hours.\n\nContact the admin to renew your subscription."
	msgRemoved = "You have been removed from the premium channels.\n\nContact the admin to renew your subscription."
)

// MembershipSender はメンバーシップスイープが使用する送信操作のインターフェース。
type MembershipSender interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error
	BanChatMember(ctx context.Context, chatID, userID int64) error
	UnbanChatMember(ctx context.Context, chatID, userID int64) error
}

// MembershipSweep は購読期限の警告と追放を行うスイープ。
// 60秒間隔のティッカーで起動され、warn_dateを経過した未警告メンバーへの
// 警告送信と、removal_dateを経過したメンバーの追放処理を1パスで実行する。
type MembershipSweep struct {
	members  repository.MemberRepository
	channels repository.ChannelRepository
	invites  repository.InviteRepository
	sender   MembershipSender
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	adminID  int64
}

// NewMembershipSweep はMembershipSweepの新しいインスタンスを生成する。
func NewMembershipSweep(
	members repository.MemberRepository,
	channels repository.ChannelRepository,
	invites repository.InviteRepository,
	sender MembershipSender,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	adminID int64,
) *MembershipSweep {
	return &MembershipSweep{
		members:  members,
		channels: channels,
		invites:  invites,
		sender:   sender,
		metrics:  collector,
		logger:   logger,
		adminID:  adminID,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// エラーはログに記録され、ループを停止させることはない。
func (s *MembershipSweep) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("メンバーシップスイープを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx, time.Now()); err != nil {
		s.logger.Error("メンバーシップスイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("メンバーシップスイープを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, time.Now()); err != nil {
				s.logger.Error("メンバーシップスイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は警告パスと追放パスを1回ずつ実行する。
// メンバーごとの失敗はログに記録して次のメンバーへ進む。
func (s *MembershipSweep) RunOnce(ctx context.Context, now time.Time) error {
	if err := s.warnPass(ctx, now); err != nil {
		return err
	}
	return s.removalPass(ctx, now)
}

// warnPass はwarn_dateを経過した未警告メンバーへ警告を送信する。
// 送信の成否に関わらず警告済みとして記録し、スイープが同一メンバーで
// 停滞しないようにする（再送キューは持たない）。
func (s *MembershipSweep) warnPass(ctx context.Context, now time.Time) error {
	due, err := s.members.ListDueForWarning(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list members due for warning: %w", err)
	}

	for _, member := range due {
		if !member.DueForWarning(now) {
			continue
		}
		if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: member.UserID,
			Text:   msgWarning,
		}); err != nil {
			if telegram.IsBlocked(err) {
				s.notifyAdmin(ctx, fmt.Sprintf(
					"User %d has blocked the bot. Cannot send warning.", member.UserID))
			} else {
				s.logger.Error("期限警告の送信に失敗しました",
					slog.Int64("user_id", member.UserID),
					slog.String("error", err.Error()),
				)
			}
		} else {
			s.metrics.RecordWarningSent()
		}

		if err := s.members.MarkWarned(ctx, member.UserID); err != nil {
			s.logger.Error("警告済みフラグの記録に失敗しました",
				slog.Int64("user_id", member.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// removalPass はremoval_dateを経過したメンバーを追放する。
func (s *MembershipSweep) removalPass(ctx context.Context, now time.Time) error {
	due, err := s.members.ListDueForRemoval(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list members due for removal: %w", err)
	}

	for _, member := range due {
		if !member.DueForRemoval(now) {
			continue
		}
		s.removeMember(ctx, member)
	}

	return nil
}

// removeMember は1人のメンバーを全チャンネルから追放する。
// チャンネルごとに招待リンクの失効とBAN+BAN解除（kick相当）を行い、
// 個別の失敗はログに記録して次のチャンネルへ進む。
// 全チャンネル処理後、退会通知をベストエフォートで送信し、
// 一部チャンネルで失敗していてもメンバーレコードを無条件に削除する
// （at-least-once、再試行なし）。
func (s *MembershipSweep) removeMember(ctx context.Context, member *model.Member) {
	channels, err := s.channels.ListAll(ctx)
	if err != nil {
		s.logger.Error("チャンネル一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		channels = nil
	}

	for _, channel := range channels {
		invites, err := s.invites.ListByChannelAndUser(ctx, channel.ChannelID, member.UserID)
		if err != nil {
			s.logger.Error("招待リンクの取得に失敗しました",
				slog.Int64("channel_id", channel.ChannelID),
				slog.Int64("user_id", member.UserID),
				slog.String("error", err.Error()),
			)
		}
		for _, invite := range invites {
			if err := s.sender.RevokeChatInviteLink(ctx, channel.ChannelID, invite.InviteLink); err != nil {
				s.logger.Warn("招待リンクの失効に失敗しました",
					slog.String("invite_link", invite.InviteLink),
					slog.String("error", err.Error()),
				)
			}
			if err := s.invites.DeleteByID(ctx, invite.ID); err != nil {
				s.logger.Error("招待リンクの削除に失敗しました",
					slog.String("invite_id", invite.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.metrics.RecordInviteRevoked()
		}

		// BAN+BAN解除の組み合わせで追放する（kickプリミティブがないため）
		if err := s.sender.BanChatMember(ctx, channel.ChannelID, member.UserID); err != nil {
			s.logger.Error("メンバーのBANに失敗しました",
				slog.Int64("channel_id", channel.ChannelID),
				slog.Int64("user_id", member.UserID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.sender.UnbanChatMember(ctx, channel.ChannelID, member.UserID); err != nil {
			s.logger.Error("メンバーのBAN解除に失敗しました",
				slog.Int64("channel_id", channel.ChannelID),
				slog.Int64("user_id", member.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: member.UserID,
		Text:   msgRemoved,
	}); err != nil {
		if telegram.IsBlocked(err) {
			s.notifyAdmin(ctx, fmt.Sprintf(
				"User %d has blocked the bot. Cannot send removal notification.", member.UserID))
		} else {
			s.logger.Error("退会通知の送信に失敗しました",
				slog.Int64("user_id", member.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.members.DeleteByID(ctx, member.UserID); err != nil {
		s.logger.Error("メンバーレコードの削除に失敗しました",
			slog.Int64("user_id", member.UserID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.metrics.RecordMemberRemoved()
	s.logger.Info("メンバーの追放処理が完了しました",
		slog.Int64("user_id", member.UserID),
	)
}

// notifyAdmin は管理者への通知をベストエフォートで送信する。
func (s *MembershipSweep) notifyAdmin(ctx context.Context, text string) {
	if _, err := s.sender.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: s.adminID,
		Text:   text,
	}); err != nil {
		s.logger.Error("管理者への通知に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
