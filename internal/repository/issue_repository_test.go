package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicfix/civicfix-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func issueRows(id string, status models.IssueStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "title", "description", "category", "status", "priority", "severity",
		"latitude", "longitude", "address", "created_by", "media_urls",
		"assigned_department", "assigned_to",
		"ai_verification_status", "citizen_verification_status", "escalation_status", "trust_score",
		"upvote_count", "comment_count", "created_at", "updated_at", "resolution_date",
	}).AddRow(
		id, "Pothole on main road", "deep pothole", "POTHOLE", string(status), "MEDIUM", "HIGH",
		12.97, 77.59, "Main Rd", "user-1", pq.StringArray{},
		nil, nil,
		"PENDING", "PENDING", "NONE", 0.0,
		0, 0, now, now, nil,
	)
}

func TestIssueGetByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM issues WHERE id = \\$1").
		WithArgs("issue-1").
		WillReturnRows(issueRows("issue-1", models.IssueStatusOpen))

	issue, err := repo.GetByID(context.Background(), "issue-1")
	require.NoError(t, err)
	assert.Equal(t, "issue-1", issue.ID)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusSuccess(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM issues WHERE id = $1 FOR UPDATE")).
		WithArgs("issue-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("IN_PROGRESS"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET status = $2, updated_at = $3, resolution_date = $4 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO timeline_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.TransitionStatus(context.Background(), TransitionParams{
		IssueID:        "issue-1",
		ExpectedStatus: models.IssueStatusInProgress,
		NewStatus:      models.IssueStatusResolved,
		SetResolution:  true,
		Event: &models.TimelineEvent{
			EventType:   models.EventWorkCompleted,
			ActorType:   models.ActorGovernment,
			Description: "Status changed from IN_PROGRESS to RESOLVED",
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusStaleRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM issues WHERE id = $1 FOR UPDATE")).
		WithArgs("issue-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("RESOLVED"))
	mock.ExpectRollback()

	err := repo.TransitionStatus(context.Background(), TransitionParams{
		IssueID:        "issue-1",
		ExpectedStatus: models.IssueStatusInProgress,
		NewStatus:      models.IssueStatusResolved,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleStatus))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusMissingIssue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM issues WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.TransitionStatus(context.Background(), TransitionParams{
		IssueID:        "missing",
		ExpectedStatus: models.IssueStatusOpen,
		NewStatus:      models.IssueStatusInProgress,
	})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusClearsResolution(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM issues WHERE id = $1 FOR UPDATE")).
		WithArgs("issue-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CLOSED"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET status = $2, updated_at = $3, resolution_date = NULL WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO timeline_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.TransitionStatus(context.Background(), TransitionParams{
		IssueID:         "issue-1",
		ExpectedStatus:  models.IssueStatusClosed,
		NewStatus:       models.IssueStatusOpen,
		ClearResolution: true,
		Event: &models.TimelineEvent{
			EventType:   models.EventIssueDisputed,
			ActorType:   models.ActorCitizen,
			Description: "Resolution disputed, issue reopened",
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAssignmentMissingIssue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectExec("UPDATE issues SET assigned_department").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetAssignment(context.Background(), "missing", "Public Works", nil)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueCreateWritesTimelineEvent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issues").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO timeline_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	issue := &models.Issue{
		Title:     "Pothole on main road",
		Category:  "POTHOLE",
		Status:    models.IssueStatusOpen,
		Priority:  models.PriorityMedium,
		Severity:  models.SeverityHigh,
		Latitude:  12.97,
		Longitude: 77.59,
		CreatedBy: "user-1",
	}
	err := repo.Create(context.Background(), issue, &models.TimelineEvent{
		EventType:   models.EventIssueCreated,
		ActorType:   models.ActorCitizen,
		Description: "Issue reported",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issue.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
