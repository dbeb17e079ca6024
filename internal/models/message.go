package models

import "time"

// ChannelMessage is a media-bearing message observed in a source channel
type ChannelMessage struct {
	ChannelID       int64     `json:"channelId"`
	MessageID       int64     `json:"messageId"`
	ContentID       string    `json:"contentId"`
	ContentUniqueID string    `json:"contentUniqueId"`
	FileName        string    `json:"fileName,omitempty"`
	Caption         string    `json:"caption,omitempty"`
	ByteSize        int64     `json:"byteSize,omitempty"`
	MimeKind        string    `json:"mimeKind,omitempty"`
	Kind            MediaKind `json:"mediaKind"`
	SentAt          time.Time `json:"sentAt,omitempty"`
}

// MessageRef identifies a message placed by the delivery identity,
// either in the holding channel or at the requester's end
type MessageRef struct {
	ChatID    int64 `json:"chatId"`
	MessageID int64 `json:"messageId"`
}
