package history

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversation_turns_session_idx
	ON conversation_turns (session_id, id);
`

// PostgresStore keeps encoded turns in the conversation_turns table
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// OpenPostgres connects with the lib/pq driver
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create conversation schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	entry, err := Encode(turn)
	if err != nil {
		return err
	}
	return s.AppendRaw(ctx, sessionID, entry)
}

func (s *PostgresStore) AppendRaw(ctx context.Context, sessionID, entry string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (session_id, payload) VALUES ($1, $2)`,
		sessionID, entry,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

type turnRow struct {
	Seq     int    `db:"seq"`
	Payload string `db:"payload"`
}

func (s *PostgresStore) FetchRecent(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error) {
	if maxTurns <= 0 {
		return nil, nil
	}
	var rows []turnRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, payload FROM (
			SELECT row_number() OVER (ORDER BY id) - 1 AS seq, id, payload
			FROM conversation_turns
			WHERE session_id = $1
		) t
		ORDER BY id DESC
		LIMIT $2`,
		sessionID, maxTurns,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch turns: %w", err)
	}

	turns := make([]Turn, 0, len(rows))
	raw := 0
	for i := len(rows) - 1; i >= 0; i-- {
		turn, outcome := Decode(rows[i].Payload, rows[i].Seq)
		if outcome == DecodedRaw {
			raw++
		}
		turns = append(turns, turn)
	}
	logRaw(s.logger, sessionID, raw)
	return turns, nil
}
