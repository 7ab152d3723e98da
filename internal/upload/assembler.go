package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/insight-engine/internal/filestore"
)

// MaxChunks bounds a single upload session
const MaxChunks = 500

// SessionTTL is how long an unfinished session may go without a new chunk
const SessionTTL = time.Hour

const (
	combinedPrefix = "combined-"
	combinedSuffix = ".txt"
)

// ChunkResult reports the state of an upload session after a chunk is stored
type ChunkResult struct {
	SessionID  string `json:"sessionId"`
	ChunkIndex int    `json:"chunkIndex"`
	Total      int    `json:"totalChunks"`
	IsComplete bool   `json:"isComplete"`
	FilePath   string `json:"filePath,omitempty"`
}

type session struct {
	total    int
	received map[int]bool
	touched  time.Time
}

// Assembler stores text chunks and joins them once every index has arrived
type Assembler struct {
	files  filestore.Store
	logger *slog.Logger
	newID  func() string
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewAssembler(files filestore.Store, logger *slog.Logger) *Assembler {
	return &Assembler{
		files:    files,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func chunkKey(sessionID string, index int) string {
	return fmt.Sprintf("text-%s-%d.txt", sessionID, index)
}

// CombinedKey is the file store key of a reassembled session
func CombinedKey(sessionID string) string {
	return combinedPrefix + sessionID + combinedSuffix
}

// IsCombinedKey reports whether key names a reassembled session, i.e. CombinedKey of a UUID
func IsCombinedKey(key string) bool {
	id, ok := strings.CutPrefix(key, combinedPrefix)
	if !ok {
		return false
	}
	id, ok = strings.CutSuffix(id, combinedSuffix)
	if !ok {
		return false
	}
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

// SaveChunk stores one chunk. A new session id is generated when sessionID is empty.
func (a *Assembler) SaveChunk(ctx context.Context, sessionID string, index, total int, text string) (ChunkResult, error) {
	if total < 1 || total > MaxChunks {
		return ChunkResult{}, fmt.Errorf("totalChunks must be between 1 and %d", MaxChunks)
	}
	if index < 0 || index >= total {
		return ChunkResult{}, fmt.Errorf("chunkIndex %d out of range for %d chunks", index, total)
	}
	if sessionID == "" {
		sessionID = a.newID()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return ChunkResult{}, fmt.Errorf("invalid sessionId: %w", err)
	}

	if err := a.files.Save(ctx, chunkKey(sessionID, index), strings.NewReader(text)); err != nil {
		return ChunkResult{}, fmt.Errorf("save chunk: %w", err)
	}

	now := a.now()
	a.mu.Lock()
	stale := a.takeStaleLocked(now, sessionID)
	s, ok := a.sessions[sessionID]
	if !ok {
		s = &session{total: total, received: make(map[int]bool)}
		a.sessions[sessionID] = s
	}
	if s.total != total {
		a.mu.Unlock()
		a.discard(ctx, stale)
		return ChunkResult{}, fmt.Errorf("totalChunks changed from %d to %d", s.total, total)
	}
	s.received[index] = true
	s.touched = now
	complete := len(s.received) == s.total
	if complete {
		delete(a.sessions, sessionID)
	}
	a.mu.Unlock()
	a.discard(ctx, stale)

	a.logger.Debug("Text chunk saved",
		slog.String("session_id", sessionID),
		slog.Int("chunk", index+1),
		slog.Int("total", total),
	)

	result := ChunkResult{SessionID: sessionID, ChunkIndex: index, Total: total}
	if !complete {
		return result, nil
	}

	key, err := a.combine(ctx, sessionID, total)
	if err != nil {
		return ChunkResult{}, err
	}
	result.IsComplete = true
	result.FilePath = key
	return result, nil
}

// takeStaleLocked removes sessions idle for longer than SessionTTL, except keep
func (a *Assembler) takeStaleLocked(now time.Time, keep string) map[string]*session {
	var stale map[string]*session
	for id, s := range a.sessions {
		if id == keep || now.Sub(s.touched) <= SessionTTL {
			continue
		}
		if stale == nil {
			stale = make(map[string]*session)
		}
		stale[id] = s
		delete(a.sessions, id)
	}
	return stale
}

// discard deletes the chunks of abandoned sessions
func (a *Assembler) discard(ctx context.Context, stale map[string]*session) {
	for id, s := range stale {
		for index := range s.received {
			if err := a.files.Delete(ctx, chunkKey(id, index)); err != nil {
				a.logger.Warn("Failed to delete abandoned chunk",
					slog.String("session_id", id),
					slog.Int("chunk", index),
					slog.Any("error", err),
				)
			}
		}
		a.logger.Info("Abandoned upload session evicted",
			slog.String("session_id", id),
			slog.Int("received", len(s.received)),
			slog.Int("total", s.total),
		)
	}
}

// combine concatenates chunks in index order and removes them
func (a *Assembler) combine(ctx context.Context, sessionID string, total int) (string, error) {
	readers := make([]io.Reader, 0, total)
	closers := make([]io.Closer, 0, total)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for i := 0; i < total; i++ {
		rc, err := a.files.Open(ctx, chunkKey(sessionID, i))
		if err != nil {
			return "", fmt.Errorf("open chunk %d: %w", i, err)
		}
		readers = append(readers, rc)
		closers = append(closers, rc)
	}

	key := CombinedKey(sessionID)
	if err := a.files.Save(ctx, key, io.MultiReader(readers...)); err != nil {
		return "", fmt.Errorf("save combined text: %w", err)
	}

	for i := 0; i < total; i++ {
		if err := a.files.Delete(ctx, chunkKey(sessionID, i)); err != nil {
			a.logger.Warn("Failed to delete chunk",
				slog.String("session_id", sessionID),
				slog.Int("chunk", i),
				slog.Any("error", err),
			)
		}
	}

	a.logger.Info("All chunks combined", slog.String("session_id", sessionID), slog.Int("chunks", total))
	return key, nil
}
