package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/learnhub/backend/internal/events"
	"github.com/learnhub/backend/internal/models"
)

// Purchase outcome taxonomy. The messages are what callers see; handlers map
// them to status codes.
var (
	ErrStudentNotFound    = errors.New("Student not found")
	ErrWalletMissing      = errors.New("Student wallet not found")
	ErrCourseNotFound     = errors.New("Course not found")
	ErrCourseNotPublished = errors.New("Course is not published")
	ErrInsufficientFunds  = errors.New("Số dư ví không đủ để mua khóa học")
)

// errEnrollmentRace marks a settlement that lost the unique-constraint race on
// (user_id, course_id). The transaction has rolled back, so nothing was
// charged; the caller converts it to the already-owned success outcome.
var errEnrollmentRace = errors.New("enrollment already exists")

const (
	msgPurchaseSuccess = "Mua khóa học thành công"
	msgAlreadyOwned    = "Bạn đã sở hữu khóa học này"
)

type PurchaseResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OrderService runs the purchase-and-fulfillment flow: eligibility checks,
// atomic settlement, then an event published for asynchronous notification.
type OrderService struct {
	db  *sql.DB
	bus *events.Bus
}

func NewOrderService(db *sql.DB, bus *events.Bus) *OrderService {
	return &OrderService{db: db, bus: bus}
}

// Purchase buys a course for a student. Repeat purchases of an owned course
// return success without side effects. On success the wallet is debited, an
// enrollment and a ledger row are written in one transaction, and a
// purchase-completed event is published after commit.
func (s *OrderService) Purchase(ctx context.Context, studentID, courseID string) (*PurchaseResult, error) {
	// Eligibility: read-only checks, each short-circuiting.
	var role string
	var balanceStr sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT u.role, w.balance
		FROM users u
		LEFT JOIN wallets w ON w.user_id = u.id
		WHERE u.id = $1`, studentID).Scan(&role, &balanceStr)
	if err == sql.ErrNoRows {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	if role != models.RoleStudent {
		return nil, ErrStudentNotFound
	}
	if !balanceStr.Valid {
		// A student is expected to always have a wallet; missing one is a
		// provisioning defect, not a user error.
		return nil, ErrWalletMissing
	}
	balance, err := decimal.NewFromString(balanceStr.String)
	if err != nil {
		return nil, fmt.Errorf("parse wallet balance %q: %w", balanceStr.String, err)
	}

	var priceStr string
	var published bool
	err = s.db.QueryRowContext(ctx,
		`SELECT price, published FROM courses WHERE id = $1`, courseID).
		Scan(&priceStr, &published)
	if err == sql.ErrNoRows {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if !published {
		return nil, ErrCourseNotPublished
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("parse course price %q: %w", priceStr, err)
	}

	owned, err := s.isEnrolled(ctx, studentID, courseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if owned {
		return &PurchaseResult{Success: true, Message: msgAlreadyOwned}, nil
	}

	if balance.LessThan(price) {
		return nil, ErrInsufficientFunds
	}

	amount, err := s.settle(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, errEnrollmentRace) {
			// Lost the insert race to a concurrent purchase. The whole
			// transaction rolled back, so the wallet was not charged twice.
			owned, checkErr := s.isEnrolled(ctx, studentID, courseID)
			if checkErr == nil && owned {
				return &PurchaseResult{Success: true, Message: msgAlreadyOwned}, nil
			}
			return nil, fmt.Errorf("settlement failed: %w", err)
		}
		if errors.Is(err, ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	zap.L().Info("purchase settled",
		zap.String("student_id", studentID),
		zap.String("course_id", courseID),
		zap.String("amount", amount.String()))

	// Fire-and-forget: the settlement is committed, so listener failures must
	// not surface as a purchase failure.
	if s.bus != nil {
		s.bus.Publish(ctx, events.TopicPurchaseCompleted, events.PurchaseCompletedEvent{
			StudentID: studentID,
			CourseID:  courseID,
			Amount:    amount.String(),
		})
	}

	return &PurchaseResult{Success: true, Message: msgPurchaseSuccess}, nil
}

// settle executes the atomic settlement: wallet debit, enrollment insert and
// ledger insert in one all-or-nothing transaction. Returns the amount debited.
func (s *OrderService) settle(ctx context.Context, studentID, courseID string) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback()

	// The price is read exactly once, inside the transaction; this single
	// value feeds both the debit and the ledger row so a concurrent price edit
	// cannot make them diverge.
	var priceStr string
	err = tx.QueryRowContext(ctx,
		`SELECT price FROM courses WHERE id = $1 FOR SHARE`, courseID).Scan(&priceStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrCourseNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock course price: %w", err)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse course price %q: %w", priceStr, err)
	}

	// Conditional debit closes the check-then-act race on the balance: zero
	// rows affected means the balance moved under us since the eligibility
	// read, which is insufficient funds discovered late.
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1`, price.String(), studentID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("debit wallet: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("debit wallet: %w", err)
	}
	if rows == 0 {
		return decimal.Zero, ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO enrollments (user_id, course_id, created_at)
		VALUES ($1, $2, NOW())`, studentID, courseID); err != nil {
		if isUniqueViolation(err) {
			return decimal.Zero, errEnrollmentRace
		}
		return decimal.Zero, fmt.Errorf("create enrollment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO purchase_transactions (id, user_id, course_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), studentID, courseID, price.String(), models.PurchaseStatusSuccess); err != nil {
		return decimal.Zero, fmt.Errorf("record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("commit settlement: %w", err)
	}
	return price, nil
}

func (s *OrderService) isEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`,
		studentID, courseID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
