// Package postgres is the durable store.Repository backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-lifecycle-engine/internal/clock"
	"github.com/ignite/campaign-lifecycle-engine/internal/store"
)

// Store is a PostgreSQL-backed store.Repository.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB as a store.Repository.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// CreateSchedules persists all three rounds of a campaign inside a single
// transaction so the set is atomic, per §4.3.
func (s *Store) CreateSchedules(ctx context.Context, schedules []*store.CampaignSchedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin create schedules: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, sched := range schedules {
		if sched.ID == uuid.Nil {
			sched.ID = uuid.New()
		}
		sched.CreatedAt = now
		sched.UpdatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_schedules (
				id, organization_id, campaign_name, round_number,
				scheduled_date, scheduled_time,
				list_name, external_list_id, recipient_lo, recipient_hi, recipient_count,
				subject, sender_name, sender_email, external_draft_id, external_campaign_id,
				status, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		`,
			sched.ID, sched.OrganizationID, sched.CampaignName, sched.RoundNumber,
			sched.ScheduledDate, sched.ScheduledTime,
			sched.ListName, sched.ExternalListID, sched.RecipientLo, sched.RecipientHi, sched.RecipientCount,
			sched.Subject, sched.SenderName, sched.SenderEmail, nullIfEmpty(sched.ExternalDraftID), nullIfEmpty(sched.ExternalCampaignID),
			sched.Status, sched.CreatedAt, sched.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateRound
			}
			return fmt.Errorf("postgres: insert schedule round %d: %w", sched.RoundNumber, err)
		}
	}

	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanSchedule(row interface {
	Scan(dest ...any) error
}) (*store.CampaignSchedule, error) {
	var sched store.CampaignSchedule
	var externalDraftID, externalCampaignID sql.NullString

	err := row.Scan(
		&sched.ID, &sched.OrganizationID, &sched.CampaignName, &sched.RoundNumber,
		&sched.ScheduledDate, &sched.ScheduledTime,
		&sched.ListName, &sched.ExternalListID, &sched.RecipientLo, &sched.RecipientHi, &sched.RecipientCount,
		&sched.Subject, &sched.SenderName, &sched.SenderEmail, &externalDraftID, &externalCampaignID,
		&sched.Status, &sched.CreatedAt, &sched.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sched.ExternalDraftID = externalDraftID.String
	sched.ExternalCampaignID = externalCampaignID.String
	return &sched, nil
}

const scheduleColumns = `
	id, organization_id, campaign_name, round_number,
	scheduled_date, scheduled_time,
	list_name, external_list_id, recipient_lo, recipient_hi, recipient_count,
	subject, sender_name, sender_email, external_draft_id, external_campaign_id,
	status, created_at, updated_at`

// GetByID fetches one schedule by id, including its notification record.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*store.CampaignSchedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM campaign_schedules WHERE id = $1`, id)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get schedule %s: %w", id, err)
	}

	if err := s.loadNotifications(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// GetByCampaignName fetches all rounds for a campaign, ordered by round number.
func (s *Store) GetByCampaignName(ctx context.Context, campaignName string) ([]*store.CampaignSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM campaign_schedules WHERE campaign_name = $1 ORDER BY round_number`, campaignName)
	if err != nil {
		return nil, fmt.Errorf("postgres: get schedules for campaign %s: %w", campaignName, err)
	}
	defer rows.Close()

	var out []*store.CampaignSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		if err := s.loadNotifications(ctx, sched); err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// loadNotifications populates sched.Notifications from the
// schedule_notifications side table, one row per stage.
func (s *Store) loadNotifications(ctx context.Context, sched *store.CampaignSchedule) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, sent, sent_at, status, external_message_id
		FROM schedule_notifications WHERE schedule_id = $1
	`, sched.ID)
	if err != nil {
		return fmt.Errorf("postgres: load notifications for %s: %w", sched.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var stageName string
		var entry store.NotificationEntry
		var sentAt sql.NullTime
		var status, messageID sql.NullString

		if err := rows.Scan(&stageName, &entry.Sent, &sentAt, &status, &messageID); err != nil {
			return err
		}
		if sentAt.Valid {
			t := sentAt.Time
			entry.Timestamp = &t
		}
		entry.Status = status.String
		entry.ExternalMessageID = messageID.String

		stage, ok := stageByName(stageName)
		if !ok {
			continue
		}
		*sched.Notifications.Entry(stage) = entry
	}
	return rows.Err()
}

func stageByName(name string) (clock.Stage, bool) {
	for _, st := range clock.Stages {
		if st.String() == name {
			return st, true
		}
	}
	return 0, false
}

// UpdateStatus applies a state transition.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status store.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE campaign_schedules SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: update status %s: %w", id, err)
	}
	return expectOneRow(res)
}

// SetExternalCampaignID records the external campaign id assigned at launch.
func (s *Store) SetExternalCampaignID(ctx context.Context, id uuid.UUID, externalCampaignID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE campaign_schedules SET external_campaign_id = $1, updated_at = $2 WHERE id = $3`, externalCampaignID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: set external campaign id %s: %w", id, err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateNotificationEntry upserts the single stage row for a schedule. The
// caller must hold the per-schedule distributed lock (§5); the upsert itself
// is a single statement so it is linearizable with respect to concurrent
// callers on other processes too.
func (s *Store) UpdateNotificationEntry(ctx context.Context, id uuid.UUID, stage clock.Stage, entry store.NotificationEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_notifications (schedule_id, stage, sent, sent_at, status, external_message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (schedule_id, stage) DO UPDATE SET
			sent = EXCLUDED.sent,
			sent_at = EXCLUDED.sent_at,
			status = EXCLUDED.status,
			external_message_id = EXCLUDED.external_message_id
	`, id, stage.String(), entry.Sent, entry.Timestamp, nullIfEmpty(entry.Status), nullIfEmpty(entry.ExternalMessageID))
	if err != nil {
		return fmt.Errorf("postgres: update notification entry %s/%s: %w", id, stage, err)
	}
	return nil
}

// AppendMetrics persists an immutable metrics row.
func (s *Store) AppendMetrics(ctx context.Context, m *store.CampaignMetrics) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_metrics (
			id, schedule_id, external_campaign_id,
			processed, delivered, bounced, hard_bounces, soft_bounces, blocked, queued,
			opened, clicked, unsubscribed, complained,
			delivery_rate, bounce_rate, hard_bounce_rate, soft_bounce_rate, open_rate, click_rate,
			collected_at, send_start_at, send_end_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`,
		m.ID, m.ScheduleID, m.ExternalCampaignID,
		m.Processed, m.Delivered, m.Bounced, m.HardBounces, m.SoftBounces, m.Blocked, m.Queued,
		m.Opened, m.Clicked, m.Unsubscribed, m.Complained,
		m.DeliveryRate, m.BounceRate, m.HardBounceRate, m.SoftBounceRate, m.OpenRate, m.ClickRate,
		m.CollectedAt, m.SendStartAt, m.SendEndAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrMetricsAlreadyExists
		}
		return fmt.Errorf("postgres: append metrics for %s: %w", m.ScheduleID, err)
	}
	return nil
}

// GetLatestMetrics fetches the most recent metrics row for
// (campaignName, roundNumber).
func (s *Store) GetLatestMetrics(ctx context.Context, campaignName string, roundNumber int) (*store.CampaignMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.schedule_id, m.external_campaign_id,
			m.processed, m.delivered, m.bounced, m.hard_bounces, m.soft_bounces, m.blocked, m.queued,
			m.opened, m.clicked, m.unsubscribed, m.complained,
			m.delivery_rate, m.bounce_rate, m.hard_bounce_rate, m.soft_bounce_rate, m.open_rate, m.click_rate,
			m.collected_at, m.send_start_at, m.send_end_at
		FROM campaign_metrics m
		JOIN campaign_schedules c ON c.id = m.schedule_id
		WHERE c.campaign_name = $1 AND c.round_number = $2
		ORDER BY m.collected_at DESC
		LIMIT 1
	`, campaignName, roundNumber)

	var m store.CampaignMetrics
	var sendStart, sendEnd sql.NullTime
	err := row.Scan(
		&m.ID, &m.ScheduleID, &m.ExternalCampaignID,
		&m.Processed, &m.Delivered, &m.Bounced, &m.HardBounces, &m.SoftBounces, &m.Blocked, &m.Queued,
		&m.Opened, &m.Clicked, &m.Unsubscribed, &m.Complained,
		&m.DeliveryRate, &m.BounceRate, &m.HardBounceRate, &m.SoftBounceRate, &m.OpenRate, &m.ClickRate,
		&m.CollectedAt, &sendStart, &sendEnd,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get latest metrics for %s round %d: %w", campaignName, roundNumber, err)
	}
	if sendStart.Valid {
		m.SendStartAt = &sendStart.Time
	}
	if sendEnd.Valid {
		m.SendEndAt = &sendEnd.Time
	}
	return &m, nil
}

// AppendLog appends one NotificationLog row.
func (s *Store) AppendLog(ctx context.Context, l *store.NotificationLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_logs (id, schedule_id, stage, attempt, status, external_message_id, error_message, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, l.ID, l.ScheduleID, l.Stage.String(), l.Attempt, l.Status, nullIfEmpty(l.ExternalMessageID), nullIfEmpty(l.ErrorMessage), l.SentAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateLogAttempt
		}
		return fmt.Errorf("postgres: append log for %s: %w", l.ScheduleID, err)
	}
	return nil
}

// QueryFailedLogsNeedingRetry returns the latest FAILURE row per schedule/stage
// whose attempt count is still under the three-retry budget (§4.10).
func (s *Store) QueryFailedLogsNeedingRetry(ctx context.Context) ([]*store.NotificationLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (schedule_id, stage) id, schedule_id, stage, attempt, status, external_message_id, error_message, sent_at
		FROM notification_logs
		ORDER BY schedule_id, stage, attempt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query failed logs: %w", err)
	}
	defer rows.Close()

	var out []*store.NotificationLog
	for rows.Next() {
		var l store.NotificationLog
		var stageName string
		var messageID, errMsg sql.NullString

		if err := rows.Scan(&l.ID, &l.ScheduleID, &stageName, &l.Attempt, &l.Status, &messageID, &errMsg, &l.SentAt); err != nil {
			return nil, err
		}
		if l.Status != store.LogFailure || l.Attempt >= 3 {
			continue
		}
		stage, ok := stageByName(stageName)
		if !ok {
			continue
		}
		l.Stage = stage
		l.ExternalMessageID = messageID.String
		l.ErrorMessage = errMsg.String
		out = append(out, &l)
	}
	return out, rows.Err()
}
