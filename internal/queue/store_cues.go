package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reelscribe/internal/subtitles"
)

// SaveCues persists a file's source cues. Cues are write-once: when the file
// already has cues nothing is written and false is returned.
func (s *Store) SaveCues(ctx context.Context, fileID string, cues []subtitles.Cue) (bool, error) {
	written := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		written = false
		var existing int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM subtitle_cues WHERE file_id = ?`, fileID,
		).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO subtitle_cues (file_id, idx, start_ms, end_ms, source_text, detected_language)
             VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, cue := range cues {
			if _, err := stmt.ExecContext(ctx,
				fileID, cue.Index, cue.Start.Milliseconds(), cue.End.Milliseconds(), cue.Text, nullableString(cue.Language),
			); err != nil {
				return fmt.Errorf("insert cue %d: %w", cue.Index, err)
			}
		}
		written = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("save cues for %s: %w", fileID, err)
	}
	return written, nil
}

// LoadCues returns a file's source cues in index order with any stored
// language detection in Cue.Language.
func (s *Store) LoadCues(ctx context.Context, fileID string) ([]subtitles.Cue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, start_ms, end_ms, source_text, detected_language
         FROM subtitle_cues WHERE file_id = ? ORDER BY idx`, fileID)
	if err != nil {
		return nil, fmt.Errorf("load cues: %w", err)
	}
	defer rows.Close()

	var cues []subtitles.Cue
	for rows.Next() {
		var (
			cue      subtitles.Cue
			startMS  int64
			endMS    int64
			detected sql.NullString
		)
		if err := rows.Scan(&cue.Index, &startMS, &endMS, &cue.Text, &detected); err != nil {
			return nil, err
		}
		cue.Start = time.Duration(startMS) * time.Millisecond
		cue.End = time.Duration(endMS) * time.Millisecond
		cue.Language = detected.String
		cues = append(cues, cue)
	}
	return cues, rows.Err()
}

// SaveDetections stores detected languages keyed by cue index. Cues that
// already carry a detection keep it; the number of cues updated is returned.
func (s *Store) SaveDetections(ctx context.Context, fileID string, detections map[int]string) (int, error) {
	if len(detections) == 0 {
		return 0, nil
	}
	updated := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		updated = 0
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE subtitle_cues SET detected_language = ?
             WHERE file_id = ? AND idx = ? AND detected_language IS NULL`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for idx, lang := range detections {
			if lang == "" {
				continue
			}
			res, err := stmt.ExecContext(ctx, lang, fileID, idx)
			if err != nil {
				return fmt.Errorf("update cue %d: %w", idx, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			updated += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save detections for %s: %w", fileID, err)
	}
	return updated, nil
}

// SaveTranslations stores the translated text of every cue for lang,
// replacing a previous translation. The cues must match the stored source
// cues one for one in index and timing; otherwise ErrCuesMismatch is
// returned and nothing is written.
func (s *Store) SaveTranslations(ctx context.Context, fileID, lang string, cues []subtitles.Cue) error {
	source, err := s.LoadCues(ctx, fileID)
	if err != nil {
		return err
	}
	if err := subtitles.VerifyAlignment(source, cues); err != nil {
		return fmt.Errorf("save translations for %s/%s: %w: %w", fileID, lang, ErrCuesMismatch, err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO cue_translations (file_id, idx, language, text) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, cue := range cues {
			if _, err := stmt.ExecContext(ctx, fileID, cue.Index, lang, cue.Text); err != nil {
				return fmt.Errorf("insert translation %d: %w", cue.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save translations for %s/%s: %w", fileID, lang, err)
	}
	return nil
}

// LoadTranslations returns the cues of lang with the source timings. It
// returns nil when no translation is stored.
func (s *Store) LoadTranslations(ctx context.Context, fileID, lang string) ([]subtitles.Cue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.idx, c.start_ms, c.end_ms, t.text
         FROM subtitle_cues c
         JOIN cue_translations t ON t.file_id = c.file_id AND t.idx = c.idx
         WHERE c.file_id = ? AND t.language = ?
         ORDER BY c.idx`, fileID, lang)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	defer rows.Close()

	var cues []subtitles.Cue
	for rows.Next() {
		var (
			cue     subtitles.Cue
			startMS int64
			endMS   int64
		)
		if err := rows.Scan(&cue.Index, &startMS, &endMS, &cue.Text); err != nil {
			return nil, err
		}
		cue.Start = time.Duration(startMS) * time.Millisecond
		cue.End = time.Duration(endMS) * time.Millisecond
		cue.Language = lang
		cues = append(cues, cue)
	}
	return cues, rows.Err()
}
