package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// FrameSummary is the persisted outline of one processed frame.
type FrameSummary struct {
	CameraID     string         `json:"camera_id"`
	FrameNumber  int64          `json:"frame"`
	Timestamp    time.Time      `json:"timestamp"`
	Detections   int            `json:"detections"`
	Dropped      int            `json:"dropped"`
	Tracks       int            `json:"tracks"`
	Alerts       int            `json:"alerts"`
	Occupancy    map[string]int `json:"occupancy,omitempty"`
	ProcessingMs float64        `json:"processing_ms"`
	FPS          float64        `json:"fps"`
}

// RecordFrameSummary stores one frame summary, replacing any earlier row for
// the same camera and frame number.
func (db *DB) RecordFrameSummary(s FrameSummary) error {
	occ, err := json.Marshal(s.Occupancy)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT OR REPLACE INTO frame_summaries (
			camera_id, frame_number, timestamp_unix, detections, dropped, tracks,
			alerts, occupancy, processing_ms, fps
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.CameraID, s.FrameNumber, toUnix(s.Timestamp), s.Detections, s.Dropped, s.Tracks,
		s.Alerts, string(occ), s.ProcessingMs, s.FPS,
	)
	if err != nil {
		return fmt.Errorf("record frame %s/%d: %w", s.CameraID, s.FrameNumber, err)
	}
	return nil
}

// FrameSummaries returns a camera's summaries in [start, end], oldest first.
// limit <= 0 returns every row.
func (db *DB) FrameSummaries(camera string, start, end time.Time, limit int) ([]FrameSummary, error) {
	query := `
		SELECT camera_id, frame_number, timestamp_unix, detections, dropped, tracks,
		       alerts, occupancy, COALESCE(processing_ms, 0), COALESCE(fps, 0)
		FROM frame_summaries
		WHERE camera_id = ? AND timestamp_unix BETWEEN ? AND ?
		ORDER BY timestamp_unix, frame_number`
	args := []interface{}{camera, toUnix(start), toUnix(end)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameSummary
	for rows.Next() {
		var (
			s   FrameSummary
			ts  float64
			occ sql.NullString
		)
		if err := rows.Scan(&s.CameraID, &s.FrameNumber, &ts, &s.Detections, &s.Dropped, &s.Tracks,
			&s.Alerts, &occ, &s.ProcessingMs, &s.FPS); err != nil {
			return nil, err
		}
		s.Timestamp = fromUnix(ts)
		if occ.Valid && occ.String != "" {
			if err := json.Unmarshal([]byte(occ.String), &s.Occupancy); err != nil {
				return nil, fmt.Errorf("frame %s/%d occupancy: %w", s.CameraID, s.FrameNumber, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneResult reports how many rows PruneOlderThan removed.
type PruneResult struct {
	Alerts int64 `json:"alerts"`
	Frames int64 `json:"frames"`
}

// PruneOlderThan deletes alerts and frame summaries older than retention at
// now.
func (db *DB) PruneOlderThan(retention time.Duration, now time.Time) (PruneResult, error) {
	cutoff := toUnix(now.Add(-retention))
	var res PruneResult

	tx, err := db.Begin()
	if err != nil {
		return res, err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			// ErrTxDone means the transaction was already committed
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	r, err := tx.Exec(`DELETE FROM alerts WHERE timestamp_unix < ?`, cutoff)
	if err != nil {
		return res, fmt.Errorf("prune alerts: %w", err)
	}
	res.Alerts, _ = r.RowsAffected()

	r, err = tx.Exec(`DELETE FROM frame_summaries WHERE timestamp_unix < ?`, cutoff)
	if err != nil {
		return res, fmt.Errorf("prune frame summaries: %w", err)
	}
	res.Frames, _ = r.RowsAffected()

	if err := tx.Commit(); err != nil {
		return PruneResult{}, err
	}
	return res, nil
}
