package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertChannel looks up a channel by its external id and either updates the
// mutable attributes in place or inserts a new row. The internal row id is
// returned in both cases, so repeated calls with the same external id are
// idempotent.
func (s *Store) UpsertChannel(ch Channel) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	var id int64
	err = tx.QueryRow(`SELECT id FROM channels WHERE channel_id = ?`, ch.ChannelID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(`
			INSERT INTO channels (channel_id, name, subscribers, description, url, thumbnail, scraped_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ch.ChannelID, ch.Name, ch.Subscribers, ch.Description, ch.URL, ch.Thumbnail, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting channel %s: %w", ch.ChannelID, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("looking up channel %s: %w", ch.ChannelID, err)
	default:
		if _, err := tx.Exec(`
			UPDATE channels SET name = ?, subscribers = ?, description = ?, url = ?, thumbnail = ?, scraped_at = ?
			WHERE id = ?`,
			ch.Name, ch.Subscribers, ch.Description, ch.URL, ch.Thumbnail, now, id,
		); err != nil {
			return 0, fmt.Errorf("updating channel %s: %w", ch.ChannelID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing channel upsert: %w", err)
	}
	return id, nil
}

// UpsertVideo looks up a video by its external id and updates or inserts it.
// The channel foreign key must reference an existing channel row;
// ErrChannelMissing is returned otherwise.
func (s *Store) UpsertVideo(v Video) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM channels WHERE id = ?`, v.ChannelID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking channel %d: %w", v.ChannelID, err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("upserting video %s: %w", v.VideoID, ErrChannelMissing)
	}

	var id int64
	err = tx.QueryRow(`SELECT id FROM videos WHERE video_id = ?`, v.VideoID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(`
			INSERT INTO videos (video_id, channel_id, title, url, views, upload_date, likes, description, thumbnail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.VideoID, v.ChannelID, v.Title, v.URL, v.Views, v.UploadDate, v.Likes, v.Description, v.Thumbnail,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting video %s: %w", v.VideoID, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("looking up video %s: %w", v.VideoID, err)
	default:
		if _, err := tx.Exec(`
			UPDATE videos SET title = ?, url = ?, views = ?, upload_date = ?, likes = ?, description = ?, thumbnail = ?
			WHERE id = ?`,
			v.Title, v.URL, v.Views, v.UploadDate, v.Likes, v.Description, v.Thumbnail, id,
		); err != nil {
			return 0, fmt.Errorf("updating video %s: %w", v.VideoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing video upsert: %w", err)
	}
	return id, nil
}

// GetChannel returns a channel row by internal id.
func (s *Store) GetChannel(id int64) (Channel, error) {
	var ch Channel
	var scrapedAt string
	err := s.db.QueryRow(`
		SELECT id, channel_id, name, subscribers, description, url, thumbnail, scraped_at
		FROM channels WHERE id = ?`, id,
	).Scan(&ch.ID, &ch.ChannelID, &ch.Name, &ch.Subscribers, &ch.Description, &ch.URL, &ch.Thumbnail, &scrapedAt)
	if err == sql.ErrNoRows {
		return Channel{}, ErrNotFound
	}
	if err != nil {
		return Channel{}, err
	}
	t, err := time.Parse(time.RFC3339, scrapedAt)
	if err != nil {
		return Channel{}, fmt.Errorf("parsing scraped_at: %w", err)
	}
	ch.ScrapedAt = t
	return ch, nil
}

// FindChannelByExternalID returns a channel row by its external id.
func (s *Store) FindChannelByExternalID(channelID string) (Channel, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM channels WHERE channel_id = ?`, channelID).Scan(&id)
	if err == sql.ErrNoRows {
		return Channel{}, ErrNotFound
	}
	if err != nil {
		return Channel{}, err
	}
	return s.GetChannel(id)
}

// ListChannels returns channels ordered by most recent scrape.
func (s *Store) ListChannels(limit int) ([]Channel, error) {
	rows, err := s.db.Query(`
		SELECT id, channel_id, name, subscribers, description, url, thumbnail, scraped_at
		FROM channels ORDER BY scraped_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Channel
	for rows.Next() {
		var ch Channel
		var scrapedAt string
		if err := rows.Scan(&ch.ID, &ch.ChannelID, &ch.Name, &ch.Subscribers, &ch.Description, &ch.URL, &ch.Thumbnail, &scrapedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, scrapedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing scraped_at: %w", err)
		}
		ch.ScrapedAt = t
		results = append(results, ch)
	}
	return results, rows.Err()
}

// GetVideo returns a video row by internal id.
func (s *Store) GetVideo(id int64) (Video, error) {
	var v Video
	err := s.db.QueryRow(`
		SELECT id, video_id, channel_id, title, url, views, upload_date, likes, description, thumbnail
		FROM videos WHERE id = ?`, id,
	).Scan(&v.ID, &v.VideoID, &v.ChannelID, &v.Title, &v.URL, &v.Views, &v.UploadDate, &v.Likes, &v.Description, &v.Thumbnail)
	if err == sql.ErrNoRows {
		return Video{}, ErrNotFound
	}
	return v, err
}

// FindVideoByExternalID returns a video row by its external id.
func (s *Store) FindVideoByExternalID(videoID string) (Video, error) {
	var v Video
	err := s.db.QueryRow(`
		SELECT id, video_id, channel_id, title, url, views, upload_date, likes, description, thumbnail
		FROM videos WHERE video_id = ?`, videoID,
	).Scan(&v.ID, &v.VideoID, &v.ChannelID, &v.Title, &v.URL, &v.Views, &v.UploadDate, &v.Likes, &v.Description, &v.Thumbnail)
	if err == sql.ErrNoRows {
		return Video{}, ErrNotFound
	}
	return v, err
}

// VideosForChannel returns all videos belonging to a channel row.
func (s *Store) VideosForChannel(channelID int64) ([]Video, error) {
	rows, err := s.db.Query(`
		SELECT id, video_id, channel_id, title, url, views, upload_date, likes, description, thumbnail
		FROM videos WHERE channel_id = ? ORDER BY id ASC`, channelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.VideoID, &v.ChannelID, &v.Title, &v.URL, &v.Views, &v.UploadDate, &v.Likes, &v.Description, &v.Thumbnail); err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

// ReplaceComments swaps a video's stored comments for the given set in one
// transaction, so rescraping a video never duplicates rows.
func (s *Store) ReplaceComments(videoID int64, comments []Comment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning comments transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM comments WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("clearing comments for video %d: %w", videoID, err)
	}

	for _, c := range comments {
		if _, err := tx.Exec(`
			INSERT INTO comments (video_id, author, comment_text, likes, comment_date, is_verified, is_pinned)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			videoID, c.Author, c.Text, c.Likes, c.Date, boolToInt(c.Verified), boolToInt(c.Pinned),
		); err != nil {
			return fmt.Errorf("inserting comment: %w", err)
		}
	}

	return tx.Commit()
}

// CommentsForVideo returns a video's stored comments in insertion order.
func (s *Store) CommentsForVideo(videoID int64) ([]Comment, error) {
	rows, err := s.db.Query(`
		SELECT id, video_id, author, comment_text, likes, comment_date, is_verified, is_pinned
		FROM comments WHERE video_id = ? ORDER BY id ASC`, videoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Comment
	for rows.Next() {
		var c Comment
		var verified, pinned int
		if err := rows.Scan(&c.ID, &c.VideoID, &c.Author, &c.Text, &c.Likes, &c.Date, &verified, &pinned); err != nil {
			return nil, err
		}
		c.Verified = verified != 0
		c.Pinned = pinned != 0
		results = append(results, c)
	}
	return results, rows.Err()
}

// SaveTranscription stores transcribed speech for a video and returns the
// new row id.
func (s *Store) SaveTranscription(t Transcription) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO transcriptions (video_id, content, language, created_at)
		VALUES (?, ?, ?, ?)`,
		t.VideoID, t.Text, t.Language, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting transcription: %w", err)
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
