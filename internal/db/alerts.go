package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banshee-data/area-monitor/internal/alerts"
	"github.com/banshee-data/area-monitor/internal/errs"
)

// AlertQuery selects persisted alerts. An empty CameraID matches every
// camera.
type AlertQuery struct {
	CameraID string
	alerts.Filter
}

// RecordAlert stores a fired alert. It makes *DB an alerts.Sink.
func (db *DB) RecordAlert(a alerts.Alert) error {
	trackIDs, err := json.Marshal(a.TrackIDs)
	if err != nil {
		return err
	}
	labels, err := json.Marshal(a.Labels)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO alerts (
			alert_id, alert_key, alert_type, message, level, camera_id, zone_id,
			triggering_count, track_ids, labels, forced, acknowledged, timestamp_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO NOTHING`,
		a.ID, a.Key, a.Type, a.Message, string(a.Level), a.CameraID, a.ZoneID,
		a.TriggeringCount, string(trackIDs), string(labels),
		boolToInt(a.Forced), boolToInt(a.Acknowledged), toUnix(a.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("record alert %s: %w", a.ID, err)
	}
	return nil
}

// AcknowledgeAlert marks a stored alert as acknowledged.
func (db *DB) AcknowledgeAlert(id string) error {
	res, err := db.Exec(`UPDATE alerts SET acknowledged = 1 WHERE alert_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("alert", id)
	}
	return nil
}

// GetAlert loads one stored alert.
func (db *DB) GetAlert(id string) (alerts.Alert, error) {
	row := db.QueryRow(`SELECT `+alertColumns+` FROM alerts WHERE alert_id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return alerts.Alert{}, errs.NotFound("alert", id)
	}
	return a, err
}

// ListAlerts returns stored alerts matching q, newest first.
func (db *DB) ListAlerts(q AlertQuery) ([]alerts.Alert, error) {
	var (
		where []string
		args  []interface{}
	)
	if q.CameraID != "" {
		where = append(where, "camera_id = ?")
		args = append(args, q.CameraID)
	}
	if q.Level != "" {
		where = append(where, "level = ?")
		args = append(args, string(q.Level))
	}
	if q.ZoneID != "" {
		where = append(where, "zone_id = ?")
		args = append(args, q.ZoneID)
	}
	if !q.Since.IsZero() {
		where = append(where, "timestamp_unix >= ?")
		args = append(args, toUnix(q.Since))
	}
	if q.UnacknowledgedOnly {
		where = append(where, "acknowledged = 0")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp_unix DESC, rowid DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const alertColumns = `alert_id, alert_key, alert_type, message, level, camera_id,
	COALESCE(zone_id, ''), triggering_count, track_ids, labels, forced, acknowledged, timestamp_unix`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s scanner) (alerts.Alert, error) {
	var (
		a                    alerts.Alert
		level                string
		trackIDs, labels     sql.NullString
		forced, acknowledged int
		ts                   float64
	)
	if err := s.Scan(&a.ID, &a.Key, &a.Type, &a.Message, &level, &a.CameraID, &a.ZoneID,
		&a.TriggeringCount, &trackIDs, &labels, &forced, &acknowledged, &ts); err != nil {
		return alerts.Alert{}, err
	}
	a.Level = alerts.Level(level)
	a.Forced = forced != 0
	a.Acknowledged = acknowledged != 0
	a.Timestamp = fromUnix(ts)
	if trackIDs.Valid && trackIDs.String != "" {
		if err := json.Unmarshal([]byte(trackIDs.String), &a.TrackIDs); err != nil {
			return alerts.Alert{}, fmt.Errorf("alert %s track_ids: %w", a.ID, err)
		}
	}
	if labels.Valid && labels.String != "" {
		if err := json.Unmarshal([]byte(labels.String), &a.Labels); err != nil {
			return alerts.Alert{}, fmt.Errorf("alert %s labels: %w", a.ID, err)
		}
	}
	return a, nil
}
