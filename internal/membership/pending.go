package membership

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingTTL は保留中の承認/拒否判断の有効期間。
// 管理者が長期間放置したボタンは失効扱いとなる。
const pendingTTL = 24 * time.Hour

// PendingDecision は管理者の判断待ち状態の参加リクエストを表す。
// 不透明トークンをキーとしてメモリ上にのみ保持する。
// プロセス再起動で失われるが、失効済みトークンへの押下には
// 定義済みの応答（再リクエスト案内）を返す。
type PendingDecision struct {
	Token       string
	UserID      int64
	DisplayName string
	CreatedAt   time.Time
}

// PendingRegistry は保留中判断のスレッドセーフなレジストリ。
type PendingRegistry struct {
	mu      sync.Mutex
	entries map[string]*PendingDecision
}

// NewPendingRegistry はPendingRegistryの新しいインスタンスを生成する。
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{
		entries: make(map[string]*PendingDecision),
	}
}

// Register は参加リクエストを登録し、判断用の不透明トークンを返す。
// 登録のたびに期限切れエントリを刈り取る。
func (r *PendingRegistry) Register(userID int64, displayName string, now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, entry := range r.entries {
		if now.Sub(entry.CreatedAt) > pendingTTL {
			delete(r.entries, token)
		}
	}

	token := uuid.NewString()
	r.entries[token] = &PendingDecision{
		Token:       token,
		UserID:      userID,
		DisplayName: displayName,
		CreatedAt:   now,
	}
	return token
}

// Take はトークンに対応する保留中判断を取り出して削除する。
// 未登録または期限切れの場合はnilを返す。
// 取り出しは一度きりであり、同一ボタンの二度押しは失効扱いになる。
func (r *PendingRegistry) Take(token string, now time.Time) *PendingDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok {
		return nil
	}
	delete(r.entries, token)

	if now.Sub(entry.CreatedAt) > pendingTTL {
		return nil
	}
	return entry
}

// Len は保留中判断の件数を返す。テスト用。
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
