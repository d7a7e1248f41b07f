package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kavrell/dustward/internal/game"
)

// ErrSaveNotFound marks a lookup for a save that does not exist.
var ErrSaveNotFound = errors.New("save not found")

// SaveMeta is the listing view of a save slot.
type SaveMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveState is the full durable session state: character sheet, digest,
// and in-game clock. Transcript blocks live in their own table.
type SaveState struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Character          game.Character `json:"character"`
	DigestText         string         `json:"digest_text"`
	DigestCompressedAt time.Time      `json:"digest_compressed_at"`
	ClockDay           int            `json:"clock_day"`
	ClockMinute        int            `json:"clock_minute"`
}

// CreateSave starts a new save slot and returns its ID.
func (s *Store) CreateSave(ctx context.Context, name string, ch *game.Character) (string, error) {
	data, err := json.Marshal(ch)
	if err != nil {
		return "", fmt.Errorf("marshal character: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(ctx, `
		INSERT INTO saves (id, name, character)
		VALUES ($1, $2, $3)`,
		id, name, data,
	)
	if err != nil {
		return "", fmt.Errorf("create save %q: %w", name, err)
	}
	return id, nil
}

// GetSave loads a save slot by ID.
func (s *Store) GetSave(ctx context.Context, id string) (*SaveState, error) {
	return s.scanSave(s.db.QueryRow(ctx, `
		SELECT id, name, character, digest_text, digest_compressed_at, clock_day, clock_minute
		FROM saves WHERE id = $1`, id))
}

// FindSaveByName loads a save slot by its unique name.
func (s *Store) FindSaveByName(ctx context.Context, name string) (*SaveState, error) {
	return s.scanSave(s.db.QueryRow(ctx, `
		SELECT id, name, character, digest_text, digest_compressed_at, clock_day, clock_minute
		FROM saves WHERE name = $1`, name))
}

func (s *Store) scanSave(row pgx.Row) (*SaveState, error) {
	var st SaveState
	var charJSON []byte
	var compressedAt *time.Time
	err := row.Scan(&st.ID, &st.Name, &charJSON, &st.DigestText, &compressedAt, &st.ClockDay, &st.ClockMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load save: %w", err)
	}
	if err := json.Unmarshal(charJSON, &st.Character); err != nil {
		return nil, fmt.Errorf("unmarshal character: %w", err)
	}
	if compressedAt != nil {
		st.DigestCompressedAt = *compressedAt
	}
	return &st, nil
}

// ListSaves returns all save slots, most recently touched first.
func (s *Store) ListSaves(ctx context.Context) ([]SaveMeta, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM saves ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer rows.Close()

	var metas []SaveMeta
	for rows.Next() {
		var m SaveMeta
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan save: %w", err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// UpdateSave persists the checkpointed session state.
func (s *Store) UpdateSave(ctx context.Context, st *SaveState) error {
	data, err := json.Marshal(st.Character)
	if err != nil {
		return fmt.Errorf("marshal character: %w", err)
	}

	var compressedAt *time.Time
	if !st.DigestCompressedAt.IsZero() {
		compressedAt = &st.DigestCompressedAt
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE saves
		SET character = $2, digest_text = $3, digest_compressed_at = $4,
		    clock_day = $5, clock_minute = $6, updated_at = now()
		WHERE id = $1`,
		st.ID, data, st.DigestText, compressedAt, st.ClockDay, st.ClockMinute,
	)
	if err != nil {
		return fmt.Errorf("update save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSaveNotFound
	}
	return nil
}

// DeleteSave removes a save slot and its transcript.
func (s *Store) DeleteSave(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM saves WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSaveNotFound
	}
	return nil
}
