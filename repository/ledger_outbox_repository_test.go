package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestExistsByHash(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentEventRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "payment_events" WHERE payload_hash = $1`)).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsByHash(context.Background(), "abc")
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestPaymentEventCreate_Duplicate(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentEventRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payment_events"`)).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)`))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.PaymentEvent{
		OrderID:        uuid.New(),
		Source:         models.EventSourcePolling,
		ExternalStatus: "PENDING",
		PayloadHash:    "abc",
		ProcessedAt:    time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestFindCartCourses(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCatalogRepository(gormDB)

	userID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "courses" JOIN cart_items ON cart_items.course_id = courses.id WHERE cart_items.user_id = $1 AND courses.is_published = $2 ORDER BY courses.id`)).
		WithArgs(userID, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "price", "is_published"}).
			AddRow(uuid.New(), "Salsa", 100, true).
			AddRow(uuid.New(), "Intro", 0, true))

	courses, err := repo.FindCartCourses(context.Background(), userID)
	assert.NoError(t, err)
	assert.Len(t, courses, 2)
	assert.True(t, courses[1].IsFree())
}

func TestEnrollFree(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCatalogRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "enrollments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "cart_items"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.EnrollFree(context.Background(), uuid.New(), []uuid.UUID{uuid.New()})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollFree_NothingToDo(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCatalogRepository(gormDB)

	assert.NoError(t, repo.EnrollFree(context.Background(), uuid.New(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxClaim(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOutboxRepository(gormDB)

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "email_outbox" SET "next_retry_at"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.Claim(context.Background(), uuid.New(), now, now.Add(5*time.Minute))
	assert.NoError(t, err)
	assert.True(t, claimed)
}

func TestOutboxClaim_LostRace(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOutboxRepository(gormDB)

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "email_outbox" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	claimed, err := repo.Claim(context.Background(), uuid.New(), now, now.Add(5*time.Minute))
	assert.NoError(t, err)
	assert.False(t, claimed)
}

func TestOutboxFindDue(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOutboxRepository(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "email_outbox" WHERE status = $1 AND next_retry_at <= $2 ORDER BY next_retry_at ASC LIMIT $3`)).
		WithArgs(models.OutboxStatusPending, now, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "email_type", "status", "attempts"}).
			AddRow(uuid.New(), uuid.New(), models.EmailTypePurchaseConfirmation, "pending", 0))

	entries, err := repo.FindDue(context.Background(), now, 20)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOutboxRearm_Upserts(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOutboxRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "email_outbox"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()

	err := repo.Rearm(context.Background(), uuid.New(), models.EmailTypePurchaseConfirmation, time.Now())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRecordFailure(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOutboxRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "email_outbox" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordFailure(context.Background(), uuid.New(), 2, models.OutboxStatusPending, time.Now().Add(5*time.Minute), "smtp timeout")
	assert.NoError(t, err)
}
