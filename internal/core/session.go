package core

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/vovakirdan/lexyo-server/internal/abuse"
)

// AdminPseudo is the display name reserved for elevated sessions.
const AdminPseudo = "Lexyo"

const defaultLocale = "en"

var (
	pseudoPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,13}$`)
	reservedPseudos = map[string]struct{}{"lexyo": {}, "admin": {}, "system": {}}
)

// ValidPseudo reports whether pseudo is an acceptable display name.
func ValidPseudo(pseudo string) bool {
	return pseudoPattern.MatchString(pseudo)
}

// ReservedPseudo reports whether pseudo is reserved for the system.
func ReservedPseudo(pseudo string) bool {
	_, ok := reservedPseudos[strings.ToLower(pseudo)]
	return ok
}

// normalizeLocale reduces a client locale ("fr-CA", "pt_BR") to its base language.
func normalizeLocale(raw string) string {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")
	if raw == "" {
		return defaultLocale
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return defaultLocale
	}
	base, confidence := tag.Base()
	if confidence == language.No || base.String() == "und" {
		return defaultLocale
	}
	return base.String()
}

// Session is a registered participant bound to one live connection.
type Session struct {
	ConnID     string
	Pseudo     string
	PrevPseudo string
	Locale     string
	// Identity is the stable id supplied by the client. It may be empty.
	Identity      string
	Room          string
	Color         string
	Admin         bool
	Spam          abuse.Counters
	LastMessageAt time.Time

	client *Client
}

// Key is the identity used for bans, kicks and moderation; it falls back to
// the connection id when the client supplied none.
func (s *Session) Key() string {
	if s.Identity != "" {
		return s.Identity
	}
	return s.ConnID
}
