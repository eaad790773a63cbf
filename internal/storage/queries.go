package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries bundles all SQL statements against one connection or transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const expenseColumns = `id, user_id, description, amount_cents, category, expense_date, location_name, latitude, longitude, created_at, updated_at`

const createExpense = `
INSERT INTO expenses (user_id, description, amount_cents, category, expense_date, location_name, latitude, longitude)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + expenseColumns

type CreateExpenseParams struct {
	UserID       string
	Description  string
	AmountCents  int64
	Category     string
	ExpenseDate  time.Time
	LocationName string
	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.UserID,
		arg.Description,
		arg.AmountCents,
		arg.Category,
		arg.ExpenseDate,
		arg.LocationName,
		arg.Latitude,
		arg.Longitude,
	)
	return scanExpense(row)
}

const getExpense = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ? AND id = ?`

func (q *Queries) GetExpense(ctx context.Context, userID string, id int64) (Expense, error) {
	row := q.db.QueryRowContext(ctx, getExpense, userID, id)
	return scanExpense(row)
}

const updateExpense = `
UPDATE expenses
SET description = ?, amount_cents = ?, category = ?, expense_date = ?,
    location_name = ?, latitude = ?, longitude = ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ? AND id = ?`

type UpdateExpenseParams struct {
	ID           int64
	UserID       string
	Description  string
	AmountCents  int64
	Category     string
	ExpenseDate  time.Time
	LocationName string
	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
}

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense,
		arg.Description,
		arg.AmountCents,
		arg.Category,
		arg.ExpenseDate,
		arg.LocationName,
		arg.Latitude,
		arg.Longitude,
		arg.UserID,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `
DELETE FROM expenses
WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, userID string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listExpenses = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ?
ORDER BY expense_date ASC, id ASC`

func (q *Queries) ListExpenses(ctx context.Context, userID string) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses, userID)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

const listExpensesInWindow = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ? AND expense_date >= ? AND expense_date < ?
ORDER BY expense_date ASC, id ASC`

func (q *Queries) ListExpensesInWindow(ctx context.Context, userID string, from, to time.Time) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesInWindow, userID, from, to)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

const listExpensesInWindowByCategory = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ? AND category = ? AND expense_date >= ? AND expense_date < ?
ORDER BY expense_date ASC, id ASC`

func (q *Queries) ListExpensesInWindowByCategory(ctx context.Context, userID, category string, from, to time.Time) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesInWindowByCategory, userID, category, from, to)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

const listGeocodedExpenses = `
SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ? AND latitude IS NOT NULL AND longitude IS NOT NULL
ORDER BY expense_date ASC, id ASC`

func (q *Queries) ListGeocodedExpenses(ctx context.Context, userID string) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listGeocodedExpenses, userID)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

const challengeColumns = `id, title, description, challenge_type, category, target_amount, duration_days, is_active`

const listActiveChallenges = `
SELECT ` + challengeColumns + `
FROM challenges
WHERE is_active = 1
ORDER BY title ASC`

func (q *Queries) ListActiveChallenges(ctx context.Context) ([]Challenge, error) {
	rows, err := q.db.QueryContext(ctx, listActiveChallenges)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challenges []Challenge
	for rows.Next() {
		var c Challenge
		if err := scanChallenge(rows, &c); err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

const getChallenge = `
SELECT ` + challengeColumns + `
FROM challenges
WHERE id = ?`

func (q *Queries) GetChallenge(ctx context.Context, id string) (Challenge, error) {
	var c Challenge
	row := q.db.QueryRowContext(ctx, getChallenge, id)
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.ChallengeType, &c.Category,
		&c.TargetAmount, &c.DurationDays, &c.IsActive)
	return c, err
}

const createUserChallenge = `
INSERT INTO user_challenges (id, user_id, challenge_id, current_amount, status, started_at)
VALUES (?, ?, ?, ?, ?, ?)`

type CreateUserChallengeParams struct {
	ID            string
	UserID        string
	ChallengeID   string
	CurrentAmount int64
	Status        string
	StartedAt     time.Time
}

func (q *Queries) CreateUserChallenge(ctx context.Context, arg CreateUserChallengeParams) error {
	_, err := q.db.ExecContext(ctx, createUserChallenge,
		arg.ID, arg.UserID, arg.ChallengeID, arg.CurrentAmount, arg.Status, arg.StartedAt)
	return err
}

const hasActiveUserChallenge = `
SELECT COUNT(1)
FROM user_challenges
WHERE user_id = ? AND challenge_id = ? AND status = 'active'`

func (q *Queries) HasActiveUserChallenge(ctx context.Context, userID, challengeID string) (bool, error) {
	var count int64
	row := q.db.QueryRowContext(ctx, hasActiveUserChallenge, userID, challengeID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

const userChallengeJoinColumns = `
uc.id, uc.user_id, uc.challenge_id, uc.current_amount, uc.status, uc.started_at, uc.completed_at, uc.progress_data,
c.id, c.title, c.description, c.challenge_type, c.category, c.target_amount, c.duration_days, c.is_active`

const listActiveUserChallengesByType = `
SELECT ` + userChallengeJoinColumns + `
FROM user_challenges uc
JOIN challenges c ON c.id = uc.challenge_id
WHERE uc.user_id = ? AND uc.status = 'active' AND c.challenge_type = ?
ORDER BY uc.started_at ASC`

func (q *Queries) ListActiveUserChallengesByType(ctx context.Context, userID, challengeType string) ([]UserChallengeRow, error) {
	rows, err := q.db.QueryContext(ctx, listActiveUserChallengesByType, userID, challengeType)
	if err != nil {
		return nil, err
	}
	return scanUserChallengeRows(rows)
}

const listUserChallenges = `
SELECT ` + userChallengeJoinColumns + `
FROM user_challenges uc
JOIN challenges c ON c.id = uc.challenge_id
WHERE uc.user_id = ?
ORDER BY uc.started_at DESC`

func (q *Queries) ListUserChallenges(ctx context.Context, userID string) ([]UserChallengeRow, error) {
	rows, err := q.db.QueryContext(ctx, listUserChallenges, userID)
	if err != nil {
		return nil, err
	}
	return scanUserChallengeRows(rows)
}

const updateUserChallenge = `
UPDATE user_challenges
SET current_amount = ?, status = ?, completed_at = ?, progress_data = COALESCE(?, progress_data)
WHERE id = ?`

type UpdateUserChallengeParams struct {
	ID            string
	CurrentAmount int64
	Status        string
	CompletedAt   sql.NullTime
	ProgressData  sql.NullString
}

func (q *Queries) UpdateUserChallenge(ctx context.Context, arg UpdateUserChallengeParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUserChallenge,
		arg.CurrentAmount, arg.Status, arg.CompletedAt, arg.ProgressData, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listUsersWithActiveChallenges = `
SELECT DISTINCT user_id
FROM user_challenges
WHERE status = 'active'
ORDER BY user_id ASC
LIMIT ?`

func (q *Queries) ListUsersWithActiveChallenges(ctx context.Context, limit int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUsersWithActiveChallenges, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.UserID, &e.Description, &e.AmountCents, &e.Category,
		&e.ExpenseDate, &e.LocationName, &e.Latitude, &e.Longitude, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanExpenses(rows *sql.Rows) ([]Expense, error) {
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func scanChallenge(row rowScanner, c *Challenge) error {
	return row.Scan(&c.ID, &c.Title, &c.Description, &c.ChallengeType, &c.Category,
		&c.TargetAmount, &c.DurationDays, &c.IsActive)
}

func scanUserChallengeRows(rows *sql.Rows) ([]UserChallengeRow, error) {
	defer rows.Close()

	var out []UserChallengeRow
	for rows.Next() {
		var r UserChallengeRow
		err := rows.Scan(
			&r.UserChallenge.ID, &r.UserChallenge.UserID, &r.UserChallenge.ChallengeID,
			&r.UserChallenge.CurrentAmount, &r.UserChallenge.Status, &r.UserChallenge.StartedAt,
			&r.UserChallenge.CompletedAt, &r.UserChallenge.ProgressData,
			&r.Challenge.ID, &r.Challenge.Title, &r.Challenge.Description, &r.Challenge.ChallengeType,
			&r.Challenge.Category, &r.Challenge.TargetAmount, &r.Challenge.DurationDays, &r.Challenge.IsActive,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
