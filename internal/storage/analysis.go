package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveAnalysis writes an analysis row and its per-category breakdown in one
// transaction and returns the analysis row id. A row is written whether or
// not the verdict flagged anything; category rows accompany flagged results
// only.
func (s *Store) SaveAnalysis(a Analysis, categories []AnalysisCategory) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning analysis transaction: %w", err)
	}
	defer tx.Rollback()

	var transcriptionID interface{}
	if a.TranscriptionID != nil {
		transcriptionID = *a.TranscriptionID
	}

	res, err := tx.Exec(`
		INSERT INTO analyses (video_id, transcription_id, content_type, is_flagged, highest_severity, verdict_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.VideoID, transcriptionID, a.ContentType, boolToInt(a.Flagged), a.HighestSeverity, a.VerdictJSON,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, c := range categories {
		if _, err := tx.Exec(`
			INSERT INTO analysis_categories (analysis_id, category_name, severity, keywords_json, match_count)
			VALUES (?, ?, ?, ?, ?)`,
			id, c.Name, c.Severity, c.KeywordsJSON, c.Count,
		); err != nil {
			return 0, fmt.Errorf("inserting analysis category %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing analysis: %w", err)
	}
	return id, nil
}

// VideoAnalyses returns all analysis rows for a video in creation order.
func (s *Store) VideoAnalyses(videoID int64) ([]Analysis, error) {
	rows, err := s.db.Query(`
		SELECT id, video_id, transcription_id, content_type, is_flagged, highest_severity, verdict_json, created_at
		FROM analyses WHERE video_id = ? ORDER BY id ASC`, videoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// AnalysisCategories returns the per-category breakdown rows for an analysis.
func (s *Store) AnalysisCategories(analysisID int64) ([]AnalysisCategory, error) {
	rows, err := s.db.Query(`
		SELECT id, analysis_id, category_name, severity, keywords_json, match_count
		FROM analysis_categories WHERE analysis_id = ? ORDER BY category_name ASC`, analysisID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AnalysisCategory
	for rows.Next() {
		var c AnalysisCategory
		if err := rows.Scan(&c.ID, &c.AnalysisID, &c.Name, &c.Severity, &c.KeywordsJSON, &c.Count); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// VideoHasFlaggedContent reports whether any analysis of the video flagged
// content.
func (s *Store) VideoHasFlaggedContent(videoID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM analyses WHERE video_id = ? AND is_flagged = 1`, videoID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanAnalysis(rows *sql.Rows) (Analysis, error) {
	var a Analysis
	var transcriptionID sql.NullInt64
	var flagged int
	var createdAt string
	if err := rows.Scan(&a.ID, &a.VideoID, &transcriptionID, &a.ContentType, &flagged, &a.HighestSeverity, &a.VerdictJSON, &createdAt); err != nil {
		return Analysis{}, err
	}
	if transcriptionID.Valid {
		a.TranscriptionID = &transcriptionID.Int64
	}
	a.Flagged = flagged != 0
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Analysis{}, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = t
	return a, nil
}
