package relay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/telegram"
)

// --- モック定義 ---

// mockMemberRepo はMemberRepositoryのテスト用モック。
type mockMemberRepo struct {
	listAllFunc func(ctx context.Context) ([]*model.Member, error)
}

func (m *mockMemberRepo) FindByID(ctx context.Context, userID int64) (*model.Member, error) {
	return nil, nil
}

func (m *mockMemberRepo) Upsert(ctx context.Context, member *model.Member) error {
	return nil
}

func (m *mockMemberRepo) MarkWarned(ctx context.Context, userID int64) error {
	return nil
}

func (m *mockMemberRepo) ListDueForWarning(ctx context.Context, now time.Time) ([]*model.Member, error) {
	return nil, nil
}

func (m *mockMemberRepo) ListDueForRemoval(ctx context.Context, now time.Time) ([]*model.Member, error) {
	return nil, nil
}

func (m *mockMemberRepo) ListAll(ctx context.Context) ([]*model.Member, error) {
	if m.listAllFunc != nil {
		return m.listAllFunc(ctx)
	}
	return nil, nil
}

func (m *mockMemberRepo) DeleteByID(ctx context.Context, userID int64) error {
	return nil
}

// mockRelayRepo はRelayRepositoryのテスト用モック。
type mockRelayRepo struct {
	createLinkFunc               func(ctx context.Context, link *model.RelayLink) error
	findLinkByForwardedIDFunc    func(ctx context.Context, forwardedMessageID int64) (*model.RelayLink, error)
	markProcessedFunc            func(ctx context.Context, messageID, userID int64, now time.Time) error
	isProcessedFunc              func(ctx context.Context, messageID, userID int64) (bool, error)
	deleteProcessedOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockRelayRepo) CreateLink(ctx context.Context, link *model.RelayLink) error {
	if m.createLinkFunc != nil {
		return m.createLinkFunc(ctx, link)
	}
	return nil
}

func (m *mockRelayRepo) FindLinkByForwardedID(ctx context.Context, forwardedMessageID int64) (*model.RelayLink, error) {
	if m.findLinkByForwardedIDFunc != nil {
		return m.findLinkByForwardedIDFunc(ctx, forwardedMessageID)
	}
	return nil, nil
}

func (m *mockRelayRepo) MarkProcessed(ctx context.Context, messageID, userID int64, now time.Time) error {
	if m.markProcessedFunc != nil {
		return m.markProcessedFunc(ctx, messageID, userID, now)
	}
	return nil
}

func (m *mockRelayRepo) IsProcessed(ctx context.Context, messageID, userID int64) (bool, error) {
	if m.isProcessedFunc != nil {
		return m.isProcessedFunc(ctx, messageID, userID)
	}
	return false, nil
}

func (m *mockRelayRepo) DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteProcessedOlderThanFunc != nil {
		return m.deleteProcessedOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// mockPlatformSender はPlatformSenderのテスト用モック。
type mockPlatformSender struct {
	sendMessageFunc    func(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	forwardMessageFunc func(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error)
	copyMessageFunc    func(ctx context.Context, toChatID, fromChatID, messageID int64) error
}

func (m *mockPlatformSender) SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
	if m.sendMessageFunc != nil {
		return m.sendMessageFunc(ctx, params)
	}
	return &telegram.Message{MessageID: 1}, nil
}

func (m *mockPlatformSender) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error) {
	if m.forwardMessageFunc != nil {
		return m.forwardMessageFunc(ctx, toChatID, fromChatID, messageID)
	}
	return &telegram.Message{MessageID: 500}, nil
}

func (m *mockPlatformSender) CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error {
	if m.copyMessageFunc != nil {
		return m.copyMessageFunc(ctx, toChatID, fromChatID, messageID)
	}
	return nil
}

// mockMetrics はMetricsCollectorのテスト用モック。呼び出し回数を記録する。
type mockMetrics struct {
	relayForwarded int
	duplicates     int
	broadcastSent  int
	broadcastFail  int
}

func (m *mockMetrics) RecordSend(method string)         {}
func (m *mockMetrics) RecordSendFailure(method string)  {}
func (m *mockMetrics) RecordRetry(method string)        {}
func (m *mockMetrics) RecordWarningSent()               {}
func (m *mockMetrics) RecordMemberRemoved()             {}
func (m *mockMetrics) RecordInviteIssued()              {}
func (m *mockMetrics) RecordInviteRevoked()             {}
func (m *mockMetrics) RecordRelayForwarded()            { m.relayForwarded++ }
func (m *mockMetrics) RecordDuplicateDropped()          { m.duplicates++ }
func (m *mockMetrics) RecordBroadcast(sent, failed int) { m.broadcastSent += sent; m.broadcastFail += failed }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

const testAdminID int64 = 999

func newTestService(members *mockMemberRepo, relayRepo *mockRelayRepo, sender *mockPlatformSender) (*Service, *mockMetrics) {
	var buf bytes.Buffer
	m := &mockMetrics{}
	return NewService(members, relayRepo, sender, m, newTestLogger(&buf), testAdminID), m
}

func userMessage(messageID, userID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: messageID,
		From:      &telegram.User{ID: userID, FirstName: "Alice"},
		Chat:      telegram.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
}

// --- 受信メッセージ転送のテスト ---

func TestHandleInbound_ForwardsAndRecords(t *testing.T) {
	var forwardedTo int64
	var link *model.RelayLink
	var marked bool

	relayRepo := &mockRelayRepo{
		createLinkFunc: func(ctx context.Context, l *model.RelayLink) error {
			link = l
			return nil
		},
		markProcessedFunc: func(ctx context.Context, messageID, userID int64, now time.Time) error {
			marked = true
			if messageID != 42 || userID != 100 {
				t.Errorf("MarkProcessed(%d, %d), want (42, 100)", messageID, userID)
			}
			return nil
		},
	}

	sender := &mockPlatformSender{
		forwardMessageFunc: func(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error) {
			forwardedTo = toChatID
			return &telegram.Message{MessageID: 500}, nil
		},
	}

	s, m := newTestService(&mockMemberRepo{}, relayRepo, sender)
	err := s.HandleInbound(context.Background(), userMessage(42, 100, "hello"), time.Now())
	if err != nil {
		t.Fatalf("HandleInbound() がエラーを返した: %v", err)
	}

	if forwardedTo != testAdminID {
		t.Errorf("転送先 = %d, want %d", forwardedTo, testAdminID)
	}
	if link == nil || link.ForwardedMessageID != 500 || link.UserID != 100 {
		t.Errorf("対応付けが記録されるべき: %+v", link)
	}
	if !marked {
		t.Error("処理済みマーカーが記録されるべき")
	}
	if m.relayForwarded != 1 {
		t.Errorf("relayForwarded = %d, want 1", m.relayForwarded)
	}
}

func TestHandleInbound_DuplicateMessage_DroppedWithoutForward(t *testing.T) {
	relayRepo := &mockRelayRepo{
		isProcessedFunc: func(ctx context.Context, messageID, userID int64) (bool, error) {
			return true, nil
		},
	}

	var forwardCalls int
	sender := &mockPlatformSender{
		forwardMessageFunc: func(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error) {
			forwardCalls++
			return &telegram.Message{MessageID: 500}, nil
		},
	}

	s, m := newTestService(&mockMemberRepo{}, relayRepo, sender)
	err := s.HandleInbound(context.Background(), userMessage(42, 100, "hello"), time.Now())
	if err != nil {
		t.Fatalf("HandleInbound() がエラーを返した: %v", err)
	}

	// 重複は転送せず黙って破棄する
	if forwardCalls != 0 {
		t.Errorf("転送回数 = %d, want 0", forwardCalls)
	}
	if m.duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", m.duplicates)
	}
}

func TestHandleInbound_AdminMessage_Ignored(t *testing.T) {
	var forwardCalls int
	sender := &mockPlatformSender{
		forwardMessageFunc: func(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error) {
			forwardCalls++
			return &telegram.Message{MessageID: 500}, nil
		},
	}

	s, _ := newTestService(&mockMemberRepo{}, &mockRelayRepo{}, sender)
	err := s.HandleInbound(context.Background(), userMessage(42, testAdminID, "hello"), time.Now())
	if err != nil {
		t.Fatalf("HandleInbound() がエラーを返した: %v", err)
	}

	if forwardCalls != 0 {
		t.Errorf("管理者のメッセージは転送されないべき: forwardCalls = %d", forwardCalls)
	}
}

func TestHandleInbound_ForwardError_ReturnsError(t *testing.T) {
	sender := &mockPlatformSender{
		forwardMessageFunc: func(ctx context.Context, toChatID, fromChatID, messageID int64) (*telegram.Message, error) {
			return nil, errors.New("forward failed")
		},
	}

	var marked bool
	relayRepo := &mockRelayRepo{
		markProcessedFunc: func(ctx context.Context, messageID, userID int64, now time.Time) error {
			marked = true
			return nil
		},
	}

	s, _ := newTestService(&mockMemberRepo{}, relayRepo, sender)
	err := s.HandleInbound(context.Background(), userMessage(42, 100, "hello"), time.Now())
	if err == nil {
		t.Fatal("転送失敗時はエラーを返すべき")
	}

	// 転送に失敗した場合はマーカーを記録せず、再配信時に再処理できるようにする
	if marked {
		t.Error("転送失敗時はマーカーを記録しないべき")
	}
}

func TestHandleInbound_AckFailureDoesNotFail(t *testing.T) {
	sender := &mockPlatformSender{
		sendMessageFunc: func(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
			return nil, errors.New("send failed")
		},
	}

	s, _ := newTestService(&mockMemberRepo{}, &mockRelayRepo{}, sender)
	// 受付返信の失敗は転送の完了を妨げない
	if err := s.HandleInbound(context.Background(), userMessage(42, 100, "hello"), time.Now()); err != nil {
		t.Fatalf("HandleInbound() がエラーを返した: %v", err)
	}
}

// --- 管理者返信のテスト ---

func TestHandleAdminReply_DeliversToLinkedUser(t *testing.T) {
	relayRepo := &mockRelayRepo{
		findLinkByForwardedIDFunc: func(ctx context.Context, forwardedMessageID int64) (*model.RelayLink, error) {
			if forwardedMessageID != 500 {
				t.Errorf("forwardedMessageID = %d, want 500", forwardedMessageID)
			}
			return &model.RelayLink{ForwardedMessageID: 500, UserID: 100}, nil
		},
	}

	var sentTo int64
	var sentText string
	sender := &mockPlatformSender{
		sendMessageFunc: func(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
			sentTo = params.ChatID
			sentText = params.Text
			return &telegram.Message{MessageID: 1}, nil
		},
	}

	s, _ := newTestService(&mockMemberRepo{}, relayRepo, sender)

	msg := &telegram.Message{
		MessageID:      600,
		From:           &telegram.User{ID: testAdminID},
		Chat:           telegram.Chat{ID: testAdminID, Type: "private"},
		Text:           "here is your answer",
		ReplyToMessage: &telegram.Message{MessageID: 500},
	}

	reply, err := s.HandleAdminReply(context.Background(), msg)
	if err != nil {
		t.Fatalf("HandleAdminReply() がエラーを返した: %v", err)
	}

	if sentTo != 100 {
		t.Errorf("送信先 = %d, want 100", sentTo)
	}
	if sentText != "here is your answer" {
		t.Errorf("送信テキスト = %q, want %q", sentText, "here is your answer")
	}
	if reply != "Reply sent to user." {
		t.Errorf("reply = %q, want %q", reply, "Reply sent to user.")
	}
}

func TestHandleAdminReply_NoReplyTo_ReturnsUsageError(t *testing.T) {
	s, _ := newTestService(&mockMemberRepo{}, &mockRelayRepo{}, &mockPlatformSender{})

	msg := &telegram.Message{
		MessageID: 600,
		From:      &telegram.User{ID: testAdminID},
		Chat:      telegram.Chat{ID: testAdminID, Type: "private"},
		Text:      "orphan reply",
	}

	_, err := s.HandleAdminReply(context.Background(), msg)
	var botErr *model.BotError
	if !errors.As(err, &botErr) || botErr.Code != model.ErrCodeUsage {
		t.Errorf("HandleAdminReply() = %v, want USAGE", err)
	}
}

func TestHandleAdminReply_NoLinkedUser_ReturnsBotError(t *testing.T) {
	var sendCalls int
	sender := &mockPlatformSender{
		sendMessageFunc: func(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
			sendCalls++
			return &telegram.Message{MessageID: 1}, nil
		},
	}

	s, _ := newTestService(&mockMemberRepo{}, &mockRelayRepo{}, sender)

	msg := &telegram.Message{
		MessageID:      600,
		From:           &telegram.User{ID: testAdminID},
		Chat:           telegram.Chat{ID: testAdminID, Type: "private"},
		Text:           "reply to unlinked message",
		ReplyToMessage: &telegram.Message{MessageID: 777},
	}

	_, err := s.HandleAdminReply(context.Background(), msg)
	var botErr *model.BotError
	if !errors.As(err, &botErr) || botErr.Code != model.ErrCodeNoLinkedUser {
		t.Errorf("HandleAdminReply() = %v, want NO_LINKED_USER", err)
	}

	// 対応付けがない場合は何も送信しない
	if sendCalls != 0 {
		t.Errorf("送信回数 = %d, want 0", sendCalls)
	}
}

func TestHandleAdminReply_UserBlockedBot_ReturnsNotice(t *testing.T) {
	relayRepo := &mockRelayRepo{
		findLinkByForwardedIDFunc: func(ctx context.Context, forwardedMessageID int64) (*model.RelayLink, error) {
			return &model.RelayLink{ForwardedMessageID: 500, UserID: 100}, nil
		},
	}

	sender := &mockPlatformSender{
		sendMessageFunc: func(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
			return nil, &telegram.APIError{Code: 403, Description: "Forbidden: bot was blocked by the user"}
		},
	}

	s, _ := newTestService(&mockMemberRepo{}, relayRepo, sender)

	msg := &telegram.Message{
		MessageID:      600,
		From:           &telegram.User{ID: testAdminID},
		Chat:           telegram.Chat{ID: testAdminID, Type: "private"},
		Text:           "answer",
		ReplyToMessage: &telegram.Message{MessageID: 500},
	}

	reply, err := s.HandleAdminReply(context.Background(), msg)
	if err != nil {
		t.Fatalf("HandleAdminReply() がエラーを返した: %v", err)
	}
	if reply != "User has blocked the bot." {
		t.Errorf("reply = %q, want %q", reply, "User has blocked the bot.")
	}
}

// --- ブロードキャストのテスト ---

func TestBroadcast_CopiesToAllMembers(t *testing.T) {
	members := &mockMemberRepo{
		listAllFunc: func(ctx context.Context) ([]*model.Member, error) {
			return []*model.Member{{UserID: 100}, {UserID: 200}, {UserID: 300}}, nil
		},
	}

	var copiedTo []int64
	sender := &mockPlatformSender{
		copyMessageFunc: func(ctx context.Context, toChatID, fromChatID, messageID int64) error {
			copiedTo = append(copiedTo, toChatID)
			return nil
		},
	}

	s, m := newTestService(members, &mockRelayRepo{}, sender)
	sent, failed, err := s.Broadcast(context.Background(), testAdminID, 42)
	if err != nil {
		t.Fatalf("Broadcast() がエラーを返した: %v", err)
	}

	if sent != 3 || failed != 0 {
		t.Errorf("sent = %d, failed = %d, want 3, 0", sent, failed)
	}
	if len(copiedTo) != 3 {
		t.Errorf("配信先数 = %d, want 3", len(copiedTo))
	}
	if m.broadcastSent != 3 {
		t.Errorf("broadcastSent = %d, want 3", m.broadcastSent)
	}
}

func TestBroadcast_PerMemberFailureDoesNotStopOthers(t *testing.T) {
	members := &mockMemberRepo{
		listAllFunc: func(ctx context.Context) ([]*model.Member, error) {
			return []*model.Member{{UserID: 100}, {UserID: 200}, {UserID: 300}}, nil
		},
	}

	sender := &mockPlatformSender{
		copyMessageFunc: func(ctx context.Context, toChatID, fromChatID, messageID int64) error {
			if toChatID == 200 {
				return &telegram.APIError{Code: 403, Description: "Forbidden: bot was blocked by the user"}
			}
			return nil
		},
	}

	s, _ := newTestService(members, &mockRelayRepo{}, sender)
	sent, failed, err := s.Broadcast(context.Background(), testAdminID, 42)
	if err != nil {
		t.Fatalf("Broadcast() がエラーを返した: %v", err)
	}

	if sent != 2 || failed != 1 {
		t.Errorf("sent = %d, failed = %d, want 2, 1", sent, failed)
	}
}

func TestBroadcast_ListError_ReturnsError(t *testing.T) {
	members := &mockMemberRepo{
		listAllFunc: func(ctx context.Context) ([]*model.Member, error) {
			return nil, errors.New("db connection failed")
		},
	}

	s, _ := newTestService(members, &mockRelayRepo{}, &mockPlatformSender{})
	if _, _, err := s.Broadcast(context.Background(), testAdminID, 42); err == nil {
		t.Fatal("一覧取得失敗時はエラーを返すべき")
	}
}

func TestHandleInbound_AcksSender(t *testing.T) {
	var ackText string
	sender := &mockPlatformSender{
		sendMessageFunc: func(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
			if params.ChatID == 100 {
				ackText = params.Text
			}
			return &telegram.Message{MessageID: 1}, nil
		},
	}

	s, _ := newTestService(&mockMemberRepo{}, &mockRelayRepo{}, sender)
	if err := s.HandleInbound(context.Background(), userMessage(42, 100, "hello"), time.Now()); err != nil {
		t.Fatalf("HandleInbound() がエラーを返した: %v", err)
	}

	if !strings.Contains(ackText, "forwarded") {
		t.Errorf("送信者へ転送完了の返信が届くべき: %q", ackText)
	}
}
