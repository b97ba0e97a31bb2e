// Package jsonfs stores room history and the public room directory as JSON files.
//
// Layout under the data directory:
//
//	channels.json        public room directory
//	public/<room>.json   public history, clear text
//	private/<room>.json  private history, payloads sealed with store.Cipher
package jsonfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/store"
)

const (
	directoryFile = "channels.json"
	publicDir     = "public"
	privateDir    = "private"
	historyExt    = ".json"
)

// Options configures a Store.
type Options struct {
	Dir           string
	HistoryLimit  int
	Cipher        store.Cipher
	OfficialRooms []string
}

// Store implements store.Store on the local filesystem. One mutex serializes
// read-modify-write cycles on history files.
type Store struct {
	mu         sync.Mutex
	dirFile    string
	publicDir  string
	privateDir string
	limit      int
	cipher     store.Cipher
	officials  []string
	log        *zerolog.Logger
	now        func() time.Time
}

// New prepares the directory layout and returns a Store.
func New(opts Options, logger *zerolog.Logger) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("jsonfs: data dir is required")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s := &Store{
		dirFile:    filepath.Join(opts.Dir, directoryFile),
		publicDir:  filepath.Join(opts.Dir, publicDir),
		privateDir: filepath.Join(opts.Dir, privateDir),
		limit:      opts.HistoryLimit,
		cipher:     opts.Cipher,
		officials:  append([]string(nil), opts.OfficialRooms...),
		log:        logger,
		now:        time.Now,
	}

	for _, dir := range []string{opts.Dir, s.publicDir, s.privateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) historyPath(room string) (string, error) {
	if room == "" || room == store.PrivatePrefix ||
		strings.ContainsAny(room, `/\`+"\x00") || strings.Contains(room, "..") {
		return "", fmt.Errorf("%w: %q", store.ErrBadRoomName, room)
	}
	if store.IsPrivate(room) {
		return filepath.Join(s.privateDir, room+historyExt), nil
	}
	return filepath.Join(s.publicDir, room+historyExt), nil
}

// Append adds rec to the room history and trims it to the configured cap.
func (s *Store) Append(ctx context.Context, room string, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.historyPath(room)
	if err != nil {
		return err
	}

	private := store.IsPrivate(room)
	if private {
		if s.cipher == nil {
			return store.ErrNoCipher
		}
		sealed, err := s.cipher.Seal(rec.Payload())
		if err != nil {
			return fmt.Errorf("seal record: %w", err)
		}
		rec = rec.WithPayload(sealed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.readHistory(path, room)
	records = append(records, rec)
	if s.limit > 0 && len(records) > s.limit {
		records = records[len(records)-s.limit:]
	}

	if err := writeAtomic(path, records); err != nil {
		return fmt.Errorf("write history %s: %w", room, err)
	}
	return nil
}

// History returns the newest limit records, oldest first. Private payloads are opened;
// records that fail to open are skipped.
func (s *Store) History(ctx context.Context, room string, limit int) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.historyPath(room)
	if err != nil {
		return nil, err
	}
	private := store.IsPrivate(room)
	if private && s.cipher == nil {
		return nil, store.ErrNoCipher
	}

	s.mu.Lock()
	records := s.readHistory(path, room)
	s.mu.Unlock()

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	if !private {
		return records, nil
	}

	opened := make([]store.Record, 0, len(records))
	for _, rec := range records {
		plain, err := s.cipher.Open(rec.Payload())
		if err != nil {
			s.log.Warn().Err(err).Str("room", room).Msg("skipping unreadable private record")
			continue
		}
		opened = append(opened, rec.WithPayload(plain))
	}
	return opened, nil
}

// readHistory loads a history file. Missing or corrupt files read as empty.
func (s *Store) readHistory(path, room string) []store.Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("room", room).Msg("read history failed")
		}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("corrupt history, treating as empty")
		return nil
	}

	records := make([]store.Record, 0, len(raw))
	for _, item := range raw {
		var rec store.Record
		if err := json.Unmarshal(item, &rec); err != nil {
			s.log.Debug().Err(err).Str("room", room).Msg("dropping malformed record")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Remove deletes the room history file.
func (s *Store) Remove(ctx context.Context, room string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.historyPath(room)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove history %s: %w", room, err)
	}
	return nil
}

// PublicRooms lists public rooms that have a history file.
func (s *Store) PublicRooms(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.publicDir)
	if err != nil {
		return nil, fmt.Errorf("list public history: %w", err)
	}

	rooms := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, historyExt) {
			continue
		}
		rooms = append(rooms, strings.TrimSuffix(name, historyExt))
	}
	return rooms, nil
}

// LoadDirectory reads the public directory. Private names are ignored, a corrupt
// file reads as empty, and every official room is present in the result.
func (s *Store) LoadDirectory(ctx context.Context) (map[string]store.RoomMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := make(map[string]store.RoomMeta)

	s.mu.Lock()
	data, err := os.ReadFile(s.dirFile)
	s.mu.Unlock()

	switch {
	case errors.Is(err, os.ErrNotExist):
		s.log.Info().Msg("directory file missing, seeding official rooms")
	case err != nil:
		return nil, fmt.Errorf("read directory: %w", err)
	default:
		var loaded map[string]store.RoomMeta
		if err := json.Unmarshal(data, &loaded); err != nil {
			s.log.Warn().Err(err).Msg("corrupt directory file, resetting")
		}
		for name, meta := range loaded {
			if store.IsPrivate(name) {
				s.log.Warn().Str("room", name).Msg("ignoring private room in directory")
				continue
			}
			dir[name] = meta
		}
	}

	s.seedOfficials(dir)
	return dir, nil
}

// SaveDirectory atomically writes the public directory.
func (s *Store) SaveDirectory(ctx context.Context, dir map[string]store.RoomMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out := make(map[string]store.RoomMeta, len(dir))
	for name, meta := range dir {
		if store.IsPrivate(name) {
			continue
		}
		out[name] = meta
	}
	s.seedOfficials(out)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.dirFile, out); err != nil {
		return fmt.Errorf("write directory: %w", err)
	}
	return nil
}

func (s *Store) seedOfficials(dir map[string]store.RoomMeta) {
	now := s.now()
	for _, name := range s.officials {
		meta, ok := dir[name]
		if !ok {
			meta = store.RoomMeta{CreatedAt: now, LastActivity: now}
		}
		meta.Official = true
		dir[name] = meta
	}
}

// writeAtomic writes v as JSON to a temp file in the same directory and renames it over path.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
