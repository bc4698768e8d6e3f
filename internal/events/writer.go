package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"formfill/internal/domain"
)

// Writer appends audit events to the events table.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Record appends e. A zero TS is stamped with the writer's clock.
func (w Writer) Record(ctx context.Context, e domain.Event) error {
	if w.DB == nil {
		return errors.New("events: no database")
	}
	if e.Type == "" {
		return errors.New("events: type is required")
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := e.TS
	if ts == "" {
		ts = w.Now().UTC().Format(time.RFC3339)
	}
	payload := EventPayload(e.Payload)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,subject_id,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, e.Type, nullable(e.SubjectID), e.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
