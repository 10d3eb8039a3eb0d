package gateway

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// MediaKind is the gateway's media type parameter.
type MediaKind string

const (
	MediaVoice    MediaKind = "ptt"
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
)

// Valid reports whether the gateway accepts the kind.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaVoice, MediaImage, MediaDocument:
		return true
	}
	return false
}

func (k MediaKind) textPrefix() string {
	switch k {
	case MediaVoice:
		return "🎵"
	case MediaImage:
		return "🖼"
	default:
		return "📎"
	}
}

// MediaMessage is an outbound attachment.
type MediaMessage struct {
	URL     string
	Kind    MediaKind
	Caption string
}

// FallbackText renders the attachment as a plain text message.
func (m MediaMessage) FallbackText() string {
	line := m.Kind.textPrefix() + " " + m.URL
	if caption := strings.TrimSpace(m.Caption); caption != "" {
		return caption + "\n" + line
	}
	return line
}

// Validate checks the media type and that the URL is publicly reachable.
func (m MediaMessage) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w %q", ErrUnsupportedMedia, m.Kind)
	}
	return CheckPublicURL(m.URL)
}

// CheckPublicURL rejects media URLs whose host the gateway cannot reach.
func CheckPublicURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNonPublicMedia, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrNonPublicMedia, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrNonPublicMedia)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return fmt.Errorf("%w: %s", ErrNonPublicMedia, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("%w: %s", ErrNonPublicMedia, host)
		}
	}
	return nil
}
