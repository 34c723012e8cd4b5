package model

import (
	"testing"
	"time"
)

func TestMember_DueForWarning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		member Member
		want   bool
	}{
		{
			name:   "warn_date経過かつ未警告は対象",
			member: Member{WarnDate: now.Add(-time.Minute), Warned: false},
			want:   true,
		},
		{
			name:   "warn_dateちょうども対象",
			member: Member{WarnDate: now, Warned: false},
			want:   true,
		},
		{
			name:   "警告済みは対象外",
			member: Member{WarnDate: now.Add(-time.Minute), Warned: true},
			want:   false,
		},
		{
			name:   "warn_date未到達は対象外",
			member: Member{WarnDate: now.Add(time.Minute), Warned: false},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.member.DueForWarning(now); got != tt.want {
				t.Errorf("DueForWarning() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMember_DueForRemoval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		member Member
		want   bool
	}{
		{
			name:   "removal_date経過は対象",
			member: Member{RemovalDate: now.Add(-time.Minute)},
			want:   true,
		},
		{
			name:   "removal_dateちょうども対象",
			member: Member{RemovalDate: now},
			want:   true,
		},
		{
			name:   "removal_date未到達は対象外",
			member: Member{RemovalDate: now.Add(time.Minute)},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.member.DueForRemoval(now); got != tt.want {
				t.Errorf("DueForRemoval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInvite_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		invite Invite
		want   bool
	}{
		{
			name:   "発行から1時間超過は期限切れ",
			invite: Invite{CreatedAt: now.Add(-InviteTTL - time.Minute)},
			want:   true,
		},
		{
			name:   "ちょうど1時間は期限切れ",
			invite: Invite{CreatedAt: now.Add(-InviteTTL)},
			want:   true,
		},
		{
			name:   "発行直後は有効",
			invite: Invite{CreatedAt: now.Add(-time.Minute)},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.invite.Expired(now, InviteTTL); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBotError_Error(t *testing.T) {
	err := NewDecisionExpiredError()
	if err.Code != ErrCodeDecisionExpired {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeDecisionExpired)
	}
	if err.Reply == "" {
		t.Error("Replyは空であってはならない")
	}
	if err.Error() == "" {
		t.Error("Error()は空であってはならない")
	}
}
