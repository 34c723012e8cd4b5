package security

import "testing"

func TestNameSanitizer_Sanitize(t *testing.T) {
	s := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "通常の名前はそのまま",
			input: "Alice",
			want:  "Alice",
		},
		{
			name:  "HTMLタグを除去",
			input: "<b>Alice</b>",
			want:  "Alice",
		},
		{
			name:  "scriptタグと中身を除去",
			input: "<script>alert('x')</script>Alice",
			want:  "Alice",
		},
		{
			name:  "aタグを除去しテキストを残す",
			input: `<a href="https://evil.example">Alice</a>`,
			want:  "Alice",
		},
		{
			name:  "前後の空白を除去",
			input: "  Alice  ",
			want:  "Alice",
		},
		{
			name:  "空文字列はプレースホルダ",
			input: "",
			want:  "Unknown User",
		},
		{
			name:  "除去後に空になる入力はプレースホルダ",
			input: "<img src=x>",
			want:  "Unknown User",
		},
		{
			name:  "空白のみの入力はプレースホルダ",
			input: "   ",
			want:  "Unknown User",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNameSanitizer_Idempotent(t *testing.T) {
	s := NewNameSanitizer()

	input := "<b>Alice</b>"
	first := s.Sanitize(input)
	second := s.Sanitize(first)

	// 同一入力に対して常に同一出力
	if first != second {
		t.Errorf("サニタイズは冪等であるべき: first=%q second=%q", first, second)
	}
}
