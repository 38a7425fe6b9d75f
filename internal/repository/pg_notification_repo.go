package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/dispatch/internal/domain"
)

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

const notificationColumns = `
	id, request_id, correlation_id, user_id, channel, template_code,
	recipient, variables, status, error_message, retry_count, priority,
	metadata, created_at, updated_at, sent_at`

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications
			(request_id, correlation_id, user_id, channel, template_code,
			 recipient, variables, status, retry_count, priority, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at`,
		n.RequestID, n.CorrelationID, n.UserID, n.Channel, n.TemplateCode,
		n.Recipient, n.Variables, n.Status, n.RetryCount, n.Priority, n.Metadata,
	)
	if err := row.Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if strings.Contains(err.Error(), "request_id") {
			return domain.ErrDuplicateRequest
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *pgNotificationRepository) GetByID(ctx context.Context, id int64) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *pgNotificationRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE request_id = $1`, requestID)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *pgNotificationRepository) ListByUser(ctx context.Context, f domain.ListFilter) ([]*domain.Notification, int, error) {
	where, args := buildUserWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, f.Limit, f.Skip)
	query := fmt.Sprintf(`
		SELECT %s FROM notifications%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, notificationColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotifications(rows)
	return notifications, total, err
}

func (r *pgNotificationRepository) ApplyTerminal(ctx context.Context, id int64, status domain.Status, errMsg *string, sentAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $1, error_message = $2, sent_at = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'pending'`,
		status, errMsg, sentAt, id,
	)
	if err != nil {
		return fmt.Errorf("apply terminal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from an already-terminal one.
		var existing domain.Status
		err := r.pool.QueryRow(ctx, `SELECT status FROM notifications WHERE id = $1`, id).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check notification status: %w", err)
		}
		return domain.ErrTerminalStatus
	}
	return nil
}

func (r *pgNotificationRepository) SetRetryCount(ctx context.Context, id int64, retryCount int) error {
	// Monotonic: never lower an already recorded count.
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET retry_count = GREATEST(retry_count, $1), updated_at = NOW()
		WHERE id = $2`, retryCount, id)
	if err != nil {
		return fmt.Errorf("set retry count: %w", err)
	}
	return nil
}

// ---- helpers ----

// scanNotification reads a single notification row from any pgx row type.
func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.RequestID, &n.CorrelationID, &n.UserID, &n.Channel,
		&n.TemplateCode, &n.Recipient, &n.Variables, &n.Status,
		&n.ErrorMessage, &n.RetryCount, &n.Priority, &n.Metadata,
		&n.CreatedAt, &n.UpdatedAt, &n.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	var result []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// buildUserWhere builds a parameterised WHERE clause from a ListFilter.
func buildUserWhere(f domain.ListFilter) (string, []any) {
	conditions := []string{"user_id = $1"}
	args := []any{f.UserID}

	if f.Channel != nil {
		args = append(args, *f.Channel)
		conditions = append(conditions, fmt.Sprintf("channel = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}
