package common

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`<b>&"'</b>`, "&lt;b&gt;&amp;&quot;&#39;&lt;/b&gt;"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EscapeHTML(tt.in); got != tt.want {
			t.Errorf("EscapeHTML(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeTextStripsInvisible(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ali\u202ece", "Alice"},             // RTL override
		{"Bo\u200bb", "Bob"},                 // zero-width space
		{"line\r\nbreak", "linebreak"},        // управляющие
		{"Ёжик\u00adтест", "Ёжиктест"},       // soft hyphen
		{"обычный текст", "обычный текст"},
	}
	for _, tt := range tests {
		if got := SanitizeText(tt.in); got != tt.want {
			t.Errorf("SanitizeText(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}

func TestUserDisplay(t *testing.T) {
	tests := []struct {
		user *tgbotapi.User
		want string
	}{
		{&tgbotapi.User{FirstName: "Ada", LastName: "Lovelace", UserName: "ada"}, "Ada Lovelace @ada"},
		{&tgbotapi.User{FirstName: "Ada"}, "Ada @-"},
		{&tgbotapi.User{FirstName: "Ada", UserName: "ada"}, "Ada @ada"},
	}
	for _, tt := range tests {
		if got := UserDisplay(tt.user); got != tt.want {
			t.Errorf("UserDisplay = %q, ожидалось %q", got, tt.want)
		}
	}
}

func TestChatLabel(t *testing.T) {
	tests := []struct {
		title, username string
		want            string
	}{
		{"My Group", "mygroup", "@mygroup : My Group"},
		{"My Group", "", "My Group"},
		{"", "mygroup", "@mygroup"},
		{"", "", "unknown"},
	}
	for _, tt := range tests {
		if got := ChatLabel(tt.title, tt.username); got != tt.want {
			t.Errorf("ChatLabel(%q, %q) = %q, ожидалось %q", tt.title, tt.username, got, tt.want)
		}
	}
}
