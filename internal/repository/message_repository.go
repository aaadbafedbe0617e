package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"investly/internal/domain"
)

// MessageRepositoryImpl implements domain.MessageStore on PostgreSQL
type MessageRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepositoryImpl {
	return &MessageRepositoryImpl{db: db}
}

// Save inserts a message record, assigning its id and timestamp when unset
func (r *MessageRepositoryImpl) Save(ctx context.Context, record *domain.MessageRecord) (uuid.UUID, error) {
	prepareRecord(record)

	query := `
		INSERT INTO messages (id, scope, role, text, thread_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.Scope,
		record.Role,
		record.Text,
		record.ThreadID,
		record.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save message: %w", err)
	}

	return record.ID, nil
}

// FindLatestOpenThread returns the thread id of the scope's newest record
func (r *MessageRepositoryImpl) FindLatestOpenThread(ctx context.Context, scope string) (string, bool, error) {
	query := `
		SELECT thread_id
		FROM messages
		WHERE scope = $1 AND thread_id <> ''
		ORDER BY created_at DESC
		LIMIT 1
	`

	var threadID string
	err := r.db.QueryRow(ctx, query, scope).Scan(&threadID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find thread for scope %s: %w", scope, err)
	}

	return threadID, true, nil
}

// History returns the scope's records oldest first
func (r *MessageRepositoryImpl) History(ctx context.Context, scope string) ([]domain.MessageRecord, error) {
	query := `
		SELECT id, scope, role, text, thread_id, created_at
		FROM messages
		WHERE scope = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []domain.MessageRecord
	for rows.Next() {
		var rec domain.MessageRecord
		if err := rows.Scan(&rec.ID, &rec.Scope, &rec.Role, &rec.Text, &rec.ThreadID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func sortByCreated(records []domain.MessageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

func prepareRecord(record *domain.MessageRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}

var (
	_ domain.MessageArchive = (*MessageRepositoryImpl)(nil)
	_ domain.MessageArchive = (*BoltMessageStore)(nil)
)
