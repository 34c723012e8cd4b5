// Package telegram はTelegram Bot APIのクライアントと
// レート制限対応の送信ラッパーを提供する。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// defaultBaseURL はBot APIのエンドポイント。
const defaultBaseURL = "https://api.telegram.org"

// Client はTelegram Bot APIのクライアント。
// 全メソッドはJSONボディのPOSTで呼び出し、apiResponseエンベロープを解読する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合は本番エンドポイントを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		token:      token,
	}
}

// apiResponse はBot APIの共通応答エンベロープ。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// call はBot APIメソッドを呼び出し、結果をresultにデコードする。
// resultがnilの場合は応答のResultを捨てる。
// APIがok:falseを返した場合は*APIErrorを返す。
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	var body io.Reader
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode request params: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", method, err)
	}

	if !envelope.OK {
		apiErr := &APIError{
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode result for %s: %w", method, err)
		}
	}

	return nil
}

// SendMessage はテキストメッセージを送信する。
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	msg := &Message{}
	if err := c.call(ctx, "sendMessage", params, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage はメッセージを削除する。
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]int64{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// ForwardMessage はメッセージを転送し、転送先で作成されたメッセージを返す。
func (c *Client) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*Message, error) {
	msg := &Message{}
	err := c.call(ctx, "forwardMessage", map[string]int64{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}, msg)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// CopyMessage はメッセージを転送元の表示なしで複製する。
// ブロードキャストのテンプレート配信に使用する。
func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error {
	return c.call(ctx, "copyMessage", map[string]int64{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}, nil)
}

// GetChat はチャット情報を取得する。ユーザー表示名の解決に使用する。
func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	chat := &Chat{}
	if err := c.call(ctx, "getChat", map[string]int64{"chat_id": chatID}, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// CreateChatInviteLink は単一使用の招待リンクを作成する。
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int) (*ChatInviteLink, error) {
	link := &ChatInviteLink{}
	err := c.call(ctx, "createChatInviteLink", map[string]int64{
		"chat_id":      chatID,
		"member_limit": int64(memberLimit),
	}, link)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RevokeChatInviteLink は招待リンクを失効させる。
func (c *Client) RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error {
	return c.call(ctx, "revokeChatInviteLink", map[string]any{
		"chat_id":     chatID,
		"invite_link": inviteLink,
	}, nil)
}

// BanChatMember はメンバーをチャンネルからBANする。
func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "banChatMember", map[string]int64{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

// UnbanChatMember はメンバーのBANを解除する。
// BANと組み合わせて追放（kick）として使用する。
func (c *Client) UnbanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "unbanChatMember", map[string]int64{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

// AnswerCallbackQuery はコールバッククエリへの応答を返す。
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]string{
		"callback_query_id": callbackQueryID,
	}, nil)
}

// GetUpdates はロングポーリングで更新イベントを取得する。
// offsetには最後に処理したupdate_id+1を渡す。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]int64{
		"offset":  offset,
		"timeout": int64(timeout.Seconds()),
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}
