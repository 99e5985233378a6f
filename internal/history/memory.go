package history

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const DefaultMaxSessions = 1024

// MemoryStore keeps encoded turns in process memory. The least recently
// used session is evicted once maxSessions is reached.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, []string]
	logger   *zap.Logger
}

func NewMemoryStore(maxSessions int, logger *zap.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	cache, err := lru.New[string, []string](maxSessions)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{sessions: cache, logger: logger}, nil
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	entry, err := Encode(turn)
	if err != nil {
		return err
	}
	return m.AppendRaw(ctx, sessionID, entry)
}

// AppendRaw stores an entry as is, without encoding
func (m *MemoryStore) AppendRaw(_ context.Context, sessionID, entry string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, _ := m.sessions.Get(sessionID)
	m.sessions.Add(sessionID, append(entries, entry))
	return nil
}

func (m *MemoryStore) FetchRecent(_ context.Context, sessionID string, maxTurns int) ([]Turn, error) {
	m.mu.Lock()
	entries, _ := m.sessions.Get(sessionID)
	entries = append([]string(nil), entries...)
	m.mu.Unlock()

	turns, raw := decodeTail(entries, maxTurns)
	logRaw(m.logger, sessionID, raw)
	return turns, nil
}

// decodeTail decodes the last maxTurns entries and counts those read as raw
// text. Order is the entry's position in the whole session.
func decodeTail(entries []string, maxTurns int) ([]Turn, int) {
	if maxTurns <= 0 || len(entries) == 0 {
		return nil, 0
	}
	offset := 0
	if len(entries) > maxTurns {
		offset = len(entries) - maxTurns
	}
	turns := make([]Turn, 0, len(entries)-offset)
	raw := 0
	for i, e := range entries[offset:] {
		turn, outcome := Decode(e, offset+i)
		if outcome == DecodedRaw {
			raw++
		}
		turns = append(turns, turn)
	}
	return turns, raw
}

func logRaw(logger *zap.Logger, sessionID string, raw int) {
	if raw > 0 {
		logger.Warn("history entries read as raw text", zap.String("session", sessionID), zap.Int("raw", raw))
	}
}
