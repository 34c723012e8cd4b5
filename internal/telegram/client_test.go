package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	client := NewClient(server.Client(), newTestLogger(&buf), server.URL, "test-token")
	return client, server
}

func TestClient_SendMessage_Success(t *testing.T) {
	var gotPath string
	var gotBody SendMessageParams

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": 42,
				"chat":       map[string]any{"id": 100, "type": "private"},
			},
		})
	})

	msg, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID: 100,
		Text:   "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage() がエラーを返した: %v", err)
	}

	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("path = %q, want %q", gotPath, "/bottest-token/sendMessage")
	}
	if gotBody.ChatID != 100 || gotBody.Text != "hello" {
		t.Errorf("body = %+v", gotBody)
	}
	if msg.MessageID != 42 {
		t.Errorf("MessageID = %d, want 42", msg.MessageID)
	}
}

func TestClient_APIErrorResponse_ReturnsAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  400,
			"description": "Bad Request: chat not found",
		})
	})

	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 100, Text: "hello"})
	if err == nil {
		t.Fatal("ok:false応答でエラーが返るべき")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("エラー型 = %T, want *APIError", err)
	}
	if apiErr.Code != 400 {
		t.Errorf("Code = %d, want 400", apiErr.Code)
	}
	if !strings.Contains(apiErr.Description, "chat not found") {
		t.Errorf("Description = %q", apiErr.Description)
	}
}

func TestClient_RateLimitResponse_CarriesRetryAfter(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests: retry after 7",
			"parameters":  map[string]any{"retry_after": 7},
		})
	})

	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 100, Text: "hello"})

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("エラー型 = %T, want *APIError", err)
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want %v", apiErr.RetryAfter, 7*time.Second)
	}
	if apiErr.Kind() != ErrKindRateLimited {
		t.Errorf("Kind() = %v, want ErrKindRateLimited", apiErr.Kind())
	}
}

func TestClient_GetUpdates_DecodesUpdates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		if params["offset"] != float64(10) {
			t.Errorf("offset = %v, want 10", params["offset"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{
					"update_id": 10,
					"message": map[string]any{
						"message_id": 1,
						"from":       map[string]any{"id": 100, "first_name": "Alice"},
						"chat":       map[string]any{"id": 100, "type": "private"},
						"text":       "/start",
					},
				},
			},
		})
	})

	updates, err := client.GetUpdates(context.Background(), 10, 30*time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() がエラーを返した: %v", err)
	}

	if len(updates) != 1 {
		t.Fatalf("更新件数 = %d, want 1", len(updates))
	}
	if updates[0].UpdateID != 10 {
		t.Errorf("UpdateID = %d, want 10", updates[0].UpdateID)
	}
	if updates[0].Message == nil || updates[0].Message.Text != "/start" {
		t.Errorf("Message = %+v", updates[0].Message)
	}
}

func TestClient_CreateChatInviteLink_SendsMemberLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		if params["member_limit"] != float64(1) {
			t.Errorf("member_limit = %v, want 1", params["member_limit"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"invite_link": "https://t.me/+abc", "member_limit": 1},
		})
	})

	link, err := client.CreateChatInviteLink(context.Background(), -1001, 1)
	if err != nil {
		t.Fatalf("CreateChatInviteLink() がエラーを返した: %v", err)
	}
	if link.InviteLink != "https://t.me/+abc" {
		t.Errorf("InviteLink = %q", link.InviteLink)
	}
}

func TestClient_MalformedResponse_ReturnsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	if _, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 100, Text: "x"}); err == nil {
		t.Fatal("不正なJSON応答でエラーが返るべき")
	}
}

func TestClient_ContextCancel_AbortsRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 1}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := client.SendMessage(ctx, SendMessageParams{ChatID: 100, Text: "x"}); err == nil {
		t.Fatal("コンテキストキャンセル時はエラーが返るべき")
	}
}
