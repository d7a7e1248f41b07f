package store

import (
	"context"
	"fmt"

	"github.com/kavrell/dustward/internal/prompt"
)

// AppendBlock records a transcript block under a save.
func (s *Store) AppendBlock(ctx context.Context, saveID string, b prompt.Block) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transcript_blocks (id, save_id, kind, content, cost, anchor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, saveID, string(b.Kind), b.Content, b.Cost, b.Anchor, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append block: %w", err)
	}
	return nil
}

// LoadBlocks returns the live transcript of a save, oldest first. Blocks
// already folded into the digest are skipped.
func (s *Store) LoadBlocks(ctx context.Context, saveID string) ([]prompt.Block, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, content, cost, anchor, created_at
		FROM transcript_blocks
		WHERE save_id = $1 AND absorbed = FALSE
		ORDER BY created_at ASC`, saveID)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	defer rows.Close()

	var blocks []prompt.Block
	for rows.Next() {
		var b prompt.Block
		var kind string
		if err := rows.Scan(&b.ID, &kind, &b.Content, &b.Cost, &b.Anchor, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.Kind = prompt.Kind(kind)
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// MarkAbsorbed flags blocks as folded into the digest so a reload does
// not replay them into the window.
func (s *Store) MarkAbsorbed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE transcript_blocks SET absorbed = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark absorbed: %w", err)
	}
	return nil
}
