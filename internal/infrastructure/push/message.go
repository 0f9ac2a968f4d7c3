package push

import (
	"encoding/json"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxBodyRunes = 120

type Message struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon"`
	Badge string      `json:"badge"`
	Data  MessageData `json:"data"`
	Tag   string      `json:"tag"`
}

type MessageData struct {
	URL string `json:"url"`
}

// NewChatMessage builds the notification for a new customer message. The tag
// is scoped to the conversation so the browser collapses repeats.
func NewChatMessage(conversationID uuid.UUID, content, icon, badge string) Message {
	return Message{
		Title: "New customer message",
		Body:  Truncate(content, MaxBodyRunes),
		Icon:  icon,
		Badge: badge,
		Data:  MessageData{URL: "/admin/chat?conversation=" + url.QueryEscape(conversationID.String())},
		Tag:   fmt.Sprintf("chat-%s", conversationID),
	}
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Truncate cuts s to at most max runes, ending in "..." when shortened.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
