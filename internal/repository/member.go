package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

const memberCols = `id, name, email, role, avatar_url`

// MemberRepository — каталог участников рабочего пространства.
type MemberRepository struct {
	pool *pgxpool.Pool
}

func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func scanMember(s interface{ Scan(dest ...any) error }, m *model.Member) error {
	return s.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.AvatarURL)
}

func (r *MemberRepository) Create(ctx context.Context, m *model.Member) error {
	defer logger.DeferLogDuration("member.Create", time.Now())()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Role == "" {
		m.Role = "member"
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO members (id, name, email, role, avatar_url) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.Email, m.Role, m.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("memberRepo.Create: %w", err)
	}
	return nil
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (*model.Member, error) {
	defer logger.DeferLogDuration("member.GetByID", time.Now())()
	m := &model.Member{}
	row := r.pool.QueryRow(ctx, `SELECT `+memberCols+` FROM members WHERE id = $1`, id)
	if err := scanMember(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("memberRepo.GetByID: %w", err)
	}
	return m, nil
}

func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*model.Member, error) {
	defer logger.DeferLogDuration("member.GetByEmail", time.Now())()
	m := &model.Member{}
	row := r.pool.QueryRow(ctx, `SELECT `+memberCols+` FROM members WHERE lower(email) = lower($1)`, email)
	if err := scanMember(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("memberRepo.GetByEmail: %w", err)
	}
	return m, nil
}

// ListActive возвращает неотключённых участников по имени.
func (r *MemberRepository) ListActive(ctx context.Context) ([]model.Member, error) {
	defer logger.DeferLogDuration("member.ListActive", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberCols+` FROM members WHERE disabled_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("memberRepo.ListActive query: %w", err)
	}
	defer rows.Close()

	members := make([]model.Member, 0, 32)
	for rows.Next() {
		var m model.Member
		if err := scanMember(rows, &m); err != nil {
			return nil, fmt.Errorf("memberRepo.ListActive scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memberRepo.ListActive rows: %w", err)
	}
	return members, nil
}

// SetDisabled отключает участника или возвращает его в каталог.
func (r *MemberRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	defer logger.DeferLogDuration("member.SetDisabled", time.Now())()
	var at *time.Time
	if disabled {
		now := time.Now().UTC()
		at = &now
	}
	_, err := r.pool.Exec(ctx, `UPDATE members SET disabled_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("memberRepo.SetDisabled: %w", err)
	}
	return nil
}
