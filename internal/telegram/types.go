package telegram

// Update はBot APIから受信する更新イベントを表す。
// メッセージまたはコールバッククエリのいずれかが設定される。
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message はチャット内のメッセージを表す。
type Message struct {
	MessageID       int64    `json:"message_id"`
	From            *User    `json:"from,omitempty"`
	Chat            Chat     `json:"chat"`
	Text            string   `json:"text,omitempty"`
	ReplyToMessage  *Message `json:"reply_to_message,omitempty"`
	ForwardFromChat *Chat    `json:"forward_from_chat,omitempty"`
}

// User はTelegramユーザーを表す。
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat はチャット（個人・グループ・チャンネル）を表す。
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// CallbackQuery はインラインボタン押下のコールバックを表す。
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// InlineKeyboardMarkup はインラインキーボードを表す。
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton はインラインキーボードの1ボタンを表す。
// URLまたはCallbackDataのどちらか一方を設定する。
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// ChatInviteLink はチャンネルの招待リンクを表す。
type ChatInviteLink struct {
	InviteLink  string `json:"invite_link"`
	MemberLimit int    `json:"member_limit,omitempty"`
	IsRevoked   bool   `json:"is_revoked,omitempty"`
}

// SendMessageParams はsendMessage呼び出しのパラメータ。
type SendMessageParams struct {
	ChatID      int64                 `json:"chat_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}
