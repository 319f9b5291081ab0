package gmail

import (
	"reflect"
	"testing"
)

func TestReplyRecipient(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		want    string
		wantErr bool
	}{
		{
			name: "name and address",
			from: "Alice Example <alice@example.com>",
			want: "alice@example.com",
		},
		{
			name: "bare address",
			from: "bob@example.com",
			want: "bob@example.com",
		},
		{
			name: "surrounding whitespace",
			from: "  carol@example.com  ",
			want: "carol@example.com",
		},
		{
			name: "quoted name with angle brackets",
			from: `"Example, Alice" <alice@example.com>`,
			want: "alice@example.com",
		},
		{
			name:    "no address",
			from:    "Mailer Daemon",
			wantErr: true,
		},
		{
			name:    "empty",
			from:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReplyRecipient(tt.from)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReplyRecipient(%q) error = %v, wantErr %v", tt.from, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ReplyRecipient(%q) = %q, want %q", tt.from, got, tt.want)
			}
		})
	}
}

func TestNormalizeReplySubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"Quarterly review", "Re: Quarterly review"},
		{"Re: Quarterly review", "Re: Quarterly review"},
		{"RE: Quarterly review", "RE: Quarterly review"},
		{"", "Re: "},
	}

	for _, tt := range tests {
		if got := normalizeReplySubject(tt.subject); got != tt.want {
			t.Errorf("normalizeReplySubject(%q) = %q, want %q", tt.subject, got, tt.want)
		}
	}
}

func TestReferenceChain(t *testing.T) {
	tests := []struct {
		name    string
		replyTo *ParsedEmail
		want    []string
	}{
		{
			name: "existing chain extended",
			replyTo: &ParsedEmail{
				References:      "<root@h> <mid@h>",
				MessageIDHeader: "<last@h>",
			},
			want: []string{"root@h", "mid@h", "last@h"},
		},
		{
			name: "no prior references",
			replyTo: &ParsedEmail{
				MessageIDHeader: "<only@h>",
			},
			want: []string{"only@h"},
		},
		{
			name:    "nothing to thread on",
			replyTo: &ParsedEmail{},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := referenceChain(tt.replyTo)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("referenceChain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripAngles(t *testing.T) {
	if got := stripAngles(" <id@host> "); got != "id@host" {
		t.Errorf("stripAngles() = %q, want %q", got, "id@host")
	}
	if got := stripAngles("id@host"); got != "id@host" {
		t.Errorf("stripAngles() = %q, want %q", got, "id@host")
	}
}
