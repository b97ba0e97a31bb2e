package core

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/lexyo-server/internal/store"
)

// restore loads the persisted directory and history-backed rooms. It runs on
// the hub goroutine before any client is served.
func (h *ChatHub) restore(ctx context.Context) {
	if h.store == nil {
		return
	}
	dir, err := h.store.LoadDirectory(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("load directory failed, starting with official rooms")
		dir = nil
	}
	rooms, err := h.store.PublicRooms(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("list history failed")
		rooms = nil
	}
	recovered := h.reg.Restore(dir, rooms, h.now())
	h.log.Info().
		Int("rooms", len(h.reg.Channels())).
		Int("recovered", recovered).
		Msg("directory restored")
	if recovered > 0 {
		h.scheduleSave()
	}
}

// scheduleSave coalesces directory writes into one per SaveDebounce.
func (h *ChatHub) scheduleSave() {
	if h.store == nil || h.saveTimer != nil {
		return
	}
	h.saveTimer = time.AfterFunc(h.opts.SaveDebounce, func() {
		select {
		case h.jobs <- h.flushSave:
		case <-h.done:
		}
	})
}

func (h *ChatHub) flushSave() {
	h.saveTimer = nil
	h.saveDirectory()
}

// saveDirectory snapshots the directory now and writes it on the persister.
func (h *ChatHub) saveDirectory() {
	if h.store == nil {
		return
	}
	snapshot := h.reg.Directory()
	h.disk.submit("save directory", func(ctx context.Context) {
		if err := h.store.SaveDirectory(ctx, snapshot); err != nil {
			h.log.Error().Err(err).Msg("save directory failed")
		}
	})
}

func (h *ChatHub) appendRecord(room string, rec store.Record) {
	if h.store == nil {
		return
	}
	h.disk.submit("append", func(ctx context.Context) {
		if err := h.store.Append(ctx, room, rec); err != nil {
			if errors.Is(err, store.ErrNoCipher) {
				h.log.Error().Err(err).Str("room", room).Msg("private_secret not set, private record dropped")
				return
			}
			h.log.Error().Err(err).Str("room", room).Msg("append history failed")
		}
	})
}

func (h *ChatHub) removeHistory(room string) {
	if h.store == nil {
		return
	}
	h.disk.submit("remove", func(ctx context.Context) {
		if err := h.store.Remove(ctx, room); err != nil {
			h.log.Error().Err(err).Str("room", room).Msg("remove history failed")
		}
	})
}

// syncPrivate reconciles private rooms with live identities and deletes the
// history of rooms nobody is connected to anymore.
func (h *ChatHub) syncPrivate() {
	for _, id := range h.reg.SyncPrivateRooms() {
		h.removeHistory(id)
		h.log.Debug().Str("room", id).Msg("private room reaped")
	}
}

// sweep deletes idle public rooms and prunes abuse bookkeeping.
func (h *ChatHub) sweep() {
	now := h.now()
	deleted := h.reg.SweepIdle(now, h.opts.RoomTTL)
	for _, name := range deleted {
		h.removeHistory(name)
		h.toAll(&Event{Kind: EventRoomDeleted, Room: name})
		h.log.Info().Str("room", name).Msg("idle room deleted")
	}
	if len(deleted) > 0 {
		h.broadcastChannels()
		h.scheduleSave()
	}
	h.syncPrivate()
	h.limiter.Prune(now)
	h.guard.Prune(now)
}

// handleDisconnect removes the session of c, if any, and notifies its room.
func (h *ChatHub) handleDisconnect(c *Client) {
	s, ok := h.reg.RemoveSession(c.ID)
	if !ok {
		return
	}
	h.syncPrivate()

	room := s.Room
	if room != "" {
		h.noticeRoom(room, s.Pseudo+" left "+room+".")
		h.sendRoomUsers(room)
		h.reg.Touch(room, h.now(), false)
	}
	h.scheduleSave()
	h.broadcastCounts()
	h.log.Info().Str("conn_id", c.ID).Str("pseudo", s.Pseudo).Str("room", room).Msg("session closed")
}

// sendHistory loads the room history for s and delivers it, translated when
// history translation is enabled. s must still be in room on delivery.
func (h *ChatHub) sendHistory(s *Session, room string) {
	if h.store == nil {
		h.emit(s, &Event{Kind: EventRoomHistory, Room: room})
		return
	}
	limit := h.opts.HistoryLimit
	awaitDisk(h, func(ctx context.Context) []store.Record {
		records, err := h.store.History(ctx, room, limit)
		if err != nil && !errors.Is(err, store.ErrNoCipher) {
			h.log.Error().Err(err).Str("room", room).Msg("load history failed")
		}
		return records
	}, func(records []store.Record) {
		if !h.alive(s) || s.Room != room {
			return
		}
		if !h.opts.TranslateHistory || h.translator == nil {
			h.emit(s, &Event{Kind: EventRoomHistory, Room: room, History: historyEntries(records, nil, "")})
			return
		}
		h.translateHistory(s, room, records)
	})
}

func (h *ChatHub) translateHistory(s *Session, room string, records []store.Record) {
	target := s.Locale
	var (
		idx   []int
		texts []string
	)
	for i, rec := range records {
		body, ok := rec.Body.(store.Text)
		if !ok || body.SourceLang == target || body.Original == "" {
			continue
		}
		idx = append(idx, i)
		texts = append(texts, body.Original)
	}
	if len(idx) == 0 {
		h.emit(s, &Event{Kind: EventRoomHistory, Room: room, History: historyEntries(records, nil, target)})
		return
	}

	await(h, func(ctx context.Context) map[int]string {
		out := make(map[int]string, len(idx))
		// Records of one source language are batched together.
		bySource := make(map[string][]int)
		for n, i := range idx {
			src := records[i].Body.(store.Text).SourceLang
			bySource[src] = append(bySource[src], n)
		}
		for src, ns := range bySource {
			batch := make([]string, len(ns))
			for j, n := range ns {
				batch[j] = texts[n]
			}
			translated := h.translator.TranslateBatch(ctx, batch, src, target)
			for j, n := range ns {
				if j < len(translated) {
					out[idx[n]] = translated[j]
				}
			}
		}
		return out
	}, func(translated map[int]string) {
		if !h.alive(s) || s.Room != room {
			return
		}
		h.emit(s, &Event{Kind: EventRoomHistory, Room: room, History: historyEntries(records, translated, target)})
	})
}

func historyEntries(records []store.Record, translated map[int]string, target string) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(records))
	for i, rec := range records {
		entry := HistoryEntry{Record: rec, Translated: rec.Payload()}
		if t, ok := translated[i]; ok {
			entry.Translated = t
			entry.TargetLang = target
		}
		out = append(out, entry)
	}
	return out
}
