// Package bus defines the envelope type that producers hand to the notifiers.
package bus

import (
	"strconv"

	"github.com/google/uuid"
)

// Envelope is one logical notification (text plus optional media) addressed to
// one or more targets on a single backend.
//
// Envelopes are immutable: the With* methods return derived copies and the
// getters return copies of the underlying slices.
type Envelope struct {
	id      string   // correlation id for logs
	backend Backend  // destination backend
	text    string   // message text
	photos  []string // photo URLs; nil means absent
	videos  []string // video URLs; nil means absent
	targets []string // chat ids or endpoint URLs, depending on backend
}

// NewEnvelope creates an Envelope for backend addressed to targets.
func NewEnvelope(backend Backend, targets []string, text string) Envelope {
	return Envelope{
		id:      uuid.NewString(),
		backend: backend,
		text:    text,
		targets: cloneStrings(targets),
	}
}

// NewTelegramEnvelope addresses Telegram chats by id.
func NewTelegramEnvelope(chatIDs []int64, text string) Envelope {
	targets := make([]string, 0, len(chatIDs))
	for _, id := range chatIDs {
		targets = append(targets, strconv.FormatInt(id, 10))
	}
	return NewEnvelope(BackendTelegram, targets, text)
}

// NewDiscordEnvelope addresses Discord webhook URLs.
func NewDiscordEnvelope(webhookURLs []string, text string) Envelope {
	return NewEnvelope(BackendDiscord, webhookURLs, text)
}

// NewCqhttpEnvelope addresses cqhttp send endpoints
// (e.g. http://127.0.0.1:5700/send_private_msg?user_id=1).
func NewCqhttpEnvelope(urls []string, text string) Envelope {
	return NewEnvelope(BackendCqhttp, urls, text)
}

// NewSlackEnvelope addresses Slack incoming webhook URLs.
func NewSlackEnvelope(webhookURLs []string, text string) Envelope {
	return NewEnvelope(BackendSlack, webhookURLs, text)
}

func (e Envelope) ID() string        { return e.id }
func (e Envelope) Backend() Backend  { return e.backend }
func (e Envelope) Text() string      { return e.text }
func (e Envelope) Photos() []string  { return cloneStrings(e.photos) }
func (e Envelope) Videos() []string  { return cloneStrings(e.videos) }
func (e Envelope) Targets() []string { return cloneStrings(e.targets) }
func (e Envelope) HasMedia() bool    { return len(e.photos) > 0 || len(e.videos) > 0 }

// WithText returns a copy of e carrying text instead of the original text.
func (e Envelope) WithText(text string) Envelope {
	d := e.clone()
	d.text = text
	return d
}

// WithPhotos returns a copy of e carrying the given photo URLs.
func (e Envelope) WithPhotos(urls ...string) Envelope {
	d := e.clone()
	d.photos = cloneStrings(urls)
	return d
}

// WithVideos returns a copy of e carrying the given video URLs.
func (e Envelope) WithVideos(urls ...string) Envelope {
	d := e.clone()
	d.videos = cloneStrings(urls)
	return d
}

// WithoutMedia returns a text-only copy of e.
func (e Envelope) WithoutMedia() Envelope {
	d := e.clone()
	d.photos = nil
	d.videos = nil
	return d
}

// WithTargets returns a copy of e addressed to targets.
func (e Envelope) WithTargets(targets ...string) Envelope {
	d := e.clone()
	d.targets = cloneStrings(targets)
	return d
}

// Preview returns a short snippet of the text for logging.
func (e Envelope) Preview() string {
	preview := e.text
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	return preview
}

func (e Envelope) clone() Envelope {
	return Envelope{
		id:      e.id,
		backend: e.backend,
		text:    e.text,
		photos:  cloneStrings(e.photos),
		videos:  cloneStrings(e.videos),
		targets: cloneStrings(e.targets),
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
