// Package translate localizes chat text. It never fails: on any backend error the
// original text is returned unchanged.
package translate

import (
	"context"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/store"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Backend performs the actual translation.
type Backend interface {
	Translate(ctx context.Context, text, src, tgt string) (string, error)
	// TranslateBatch must return exactly len(texts) results in order.
	TranslateBatch(ctx context.Context, texts []string, src, tgt string) ([]string, error)
}

// Service fronts a Backend with an in-memory LRU and an optional persistent cache.
type Service struct {
	backend Backend
	memo    *lru.Cache[string, string]
	disk    store.TranslationCache
	log     *zerolog.Logger
}

// New returns a Service. backend and disk may be nil; a nil backend makes every call a passthrough.
func New(backend Backend, cacheSize int, disk store.TranslationCache, logger *zerolog.Logger) (*Service, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	memo, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{backend: backend, memo: memo, disk: disk, log: logger}, nil
}

// ContainsURL reports whether text carries an http(s) link.
func ContainsURL(text string) bool {
	return urlPattern.MatchString(text)
}

func skip(text, src, tgt string) bool {
	return strings.TrimSpace(text) == "" || src == tgt || tgt == "" || ContainsURL(text)
}

func cacheKey(text, src, tgt string) string {
	return src + "|" + tgt + "|" + text
}

func (s *Service) lookup(ctx context.Context, key string) (string, bool) {
	if v, ok := s.memo.Get(key); ok {
		return v, true
	}
	if s.disk == nil {
		return "", false
	}
	v, ok, err := s.disk.GetTranslation(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("translation cache read failed")
		return "", false
	}
	if ok {
		s.memo.Add(key, v)
	}
	return v, ok
}

func (s *Service) remember(ctx context.Context, key, translated string) {
	s.memo.Add(key, translated)
	if s.disk == nil {
		return
	}
	if err := s.disk.PutTranslation(ctx, key, translated); err != nil {
		s.log.Warn().Err(err).Msg("translation cache write failed")
	}
}

// Translate returns text in tgt, or text itself when translation is unnecessary or fails.
func (s *Service) Translate(ctx context.Context, text, src, tgt string) string {
	if s.backend == nil || skip(text, src, tgt) {
		return text
	}
	key := cacheKey(text, src, tgt)
	if v, ok := s.lookup(ctx, key); ok {
		return v
	}

	out, err := s.backend.Translate(ctx, text, src, tgt)
	if err != nil || strings.TrimSpace(out) == "" {
		s.log.Warn().Err(err).Str("src", src).Str("tgt", tgt).Msg("translation failed, using original")
		return text
	}
	s.remember(ctx, key, out)
	return out
}

// TranslateBatch translates texts preserving order and length.
func (s *Service) TranslateBatch(ctx context.Context, texts []string, src, tgt string) []string {
	out := make([]string, len(texts))
	copy(out, texts)
	if s.backend == nil || len(texts) == 0 || src == tgt || tgt == "" {
		return out
	}

	var (
		pending []string
		slots   []int
	)
	for i, text := range texts {
		if skip(text, src, tgt) {
			continue
		}
		if v, ok := s.lookup(ctx, cacheKey(text, src, tgt)); ok {
			out[i] = v
			continue
		}
		pending = append(pending, text)
		slots = append(slots, i)
	}
	if len(pending) == 0 {
		return out
	}

	translated, err := s.backend.TranslateBatch(ctx, pending, src, tgt)
	if err != nil || len(translated) != len(pending) {
		s.log.Debug().Err(err).Int("count", len(pending)).Msg("batch translation failed, falling back to single calls")
		for j, i := range slots {
			out[i] = s.Translate(ctx, pending[j], src, tgt)
		}
		return out
	}

	for j, i := range slots {
		if strings.TrimSpace(translated[j]) == "" {
			continue
		}
		out[i] = translated[j]
		s.remember(ctx, cacheKey(pending[j], src, tgt), translated[j])
	}
	return out
}
