package models

import (
	"fmt"
	"time"
)

// MediaKind represents the kind of media carried by a record
type MediaKind string

const (
	MediaKindDocument  MediaKind = "document"
	MediaKindVideo     MediaKind = "video"
	MediaKindAudio     MediaKind = "audio"
	MediaKindPhoto     MediaKind = "photo"
	MediaKindVoice     MediaKind = "voice"
	MediaKindAnimation MediaKind = "animation"
)

// kindLabels maps each media kind to its user-facing label
var kindLabels = map[MediaKind]string{
	MediaKindDocument:  "📄 Document",
	MediaKindVideo:     "🎥 Video",
	MediaKindAudio:     "🎵 Audio",
	MediaKindPhoto:     "🖼 Photo",
	MediaKindVoice:     "🎤 Voice",
	MediaKindAnimation: "🎞 Animation",
}

// Label returns the user-facing label for the media kind.
// Unknown kinds fall back to the document label.
func (k MediaKind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return kindLabels[MediaKindDocument]
}

// IsValid reports whether the media kind is one of the known kinds
func (k MediaKind) IsValid() bool {
	_, ok := kindLabels[k]
	return ok
}

// MediaRecord represents one distinct piece of content observed in a source channel
type MediaRecord struct {
	ContentID       string    `json:"contentId" db:"content_id"`
	ContentUniqueID string    `json:"contentUniqueId" db:"content_unique_id"`
	DisplayName     string    `json:"displayName" db:"display_name"`
	ByteSize        int64     `json:"byteSize" db:"byte_size"`
	MimeKind        string    `json:"mimeKind" db:"mime_kind"`
	Kind            MediaKind `json:"mediaKind" db:"media_kind"`
	SourceChannel   int64     `json:"sourceChannel" db:"source_channel"`
	SourceMessageID int64     `json:"sourceMessageId" db:"source_message_id"`
	AccessCount     int64     `json:"accessCount" db:"access_count"`
	FirstSeenAt     time.Time `json:"firstSeenAt" db:"first_seen_at"`
	LastUpdatedAt   time.Time `json:"lastUpdatedAt" db:"last_updated_at"`
	LastAccessedAt  time.Time `json:"lastAccessedAt" db:"last_accessed_at"`
}

// SizeDisplay returns the record size as a human-readable string
func (r *MediaRecord) SizeDisplay() string {
	const mb = 1024 * 1024
	if r.ByteSize < mb {
		return fmt.Sprintf("%.2f KB", float64(r.ByteSize)/1024)
	}
	return fmt.Sprintf("%.2f MB", float64(r.ByteSize)/mb)
}

// TokenMapping represents the alias from a short selection token to a content ID
type TokenMapping struct {
	Token     string    `json:"token" db:"token"`
	ContentID string    `json:"contentId" db:"content_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
