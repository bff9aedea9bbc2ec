package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	"github.com/civicfix/civicfix-api/internal/repository"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
)

type mockIssueStore struct {
	issues        map[string]models.Issue
	transitionErr error
	transitions   []repository.TransitionParams
	assignments   []string
}

func (m *mockIssueStore) GetByID(ctx context.Context, id string) (*models.Issue, error) {
	if issue, ok := m.issues[id]; ok {
		copy := issue
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockIssueStore) TransitionStatus(ctx context.Context, params repository.TransitionParams) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	m.transitions = append(m.transitions, params)
	issue := m.issues[params.IssueID]
	issue.Status = params.NewStatus
	if params.SetResolution {
		now := time.Now().UTC()
		issue.ResolutionDate = &now
	}
	if params.ClearResolution {
		issue.ResolutionDate = nil
	}
	m.issues[params.IssueID] = issue
	return nil
}

func (m *mockIssueStore) SetAssignment(ctx context.Context, issueID, department string, assigneeID *string) error {
	m.assignments = append(m.assignments, issueID)
	issue, ok := m.issues[issueID]
	if !ok {
		return sql.ErrNoRows
	}
	issue.AssignedDepartment = &department
	issue.AssignedTo = assigneeID
	m.issues[issueID] = issue
	return nil
}

type mockActionStore struct {
	actions []models.GovernmentAction
	events  []models.TimelineEvent
}

func (m *mockActionStore) Record(ctx context.Context, action *models.GovernmentAction, event *models.TimelineEvent) error {
	action.ID = "action-1"
	m.actions = append(m.actions, *action)
	if event != nil {
		m.events = append(m.events, *event)
	}
	return nil
}

func (m *mockActionStore) ListByIssue(ctx context.Context, issueID string) ([]models.GovernmentAction, error) {
	return m.actions, nil
}

type mockNotifier struct {
	entries []models.NotificationQueueEntry
}

func (m *mockNotifier) Notify(ctx context.Context, entry models.NotificationQueueEntry) {
	m.entries = append(m.entries, entry)
}

type mockResolutionEvaluator struct {
	evaluated []string
}

func (m *mockResolutionEvaluator) EvaluateOnResolution(ctx context.Context, issue *models.Issue) error {
	m.evaluated = append(m.evaluated, issue.ID)
	return nil
}

func newLifecycleFixture(status models.IssueStatus) (*LifecycleService, *mockIssueStore, *mockNotifier, *mockResolutionEvaluator) {
	issues := &mockIssueStore{issues: map[string]models.Issue{
		"issue-1": {ID: "issue-1", Title: "Broken streetlight", Status: status, CreatedBy: "creator-1"},
	}}
	notifier := &mockNotifier{}
	evaluator := &mockResolutionEvaluator{}
	svc := NewLifecycleService(issues, &mockActionStore{}, notifier, evaluator, nil, nil, nil)
	return svc, issues, notifier, evaluator
}

func governmentAuth() *models.AuthContext {
	return &models.AuthContext{UserID: "gov-1", Role: models.RoleGovernment}
}

func citizenAuth(id string) *models.AuthContext {
	return &models.AuthContext{UserID: id, Role: models.RoleCitizen}
}

func TestTransitionOpenToInProgress(t *testing.T) {
	svc, issues, notifier, _ := newLifecycleFixture(models.IssueStatusOpen)

	updated, err := svc.Transition(context.Background(), "issue-1", governmentAuth(),
		dto.UpdateStatusRequest{Status: models.IssueStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, updated.Status)

	require.Len(t, issues.transitions, 1)
	params := issues.transitions[0]
	assert.Equal(t, models.IssueStatusOpen, params.ExpectedStatus)
	assert.Equal(t, models.EventWorkStarted, params.Event.EventType)
	assert.False(t, params.SetResolution)

	require.Len(t, notifier.entries, 1)
	assert.Equal(t, "creator-1", notifier.entries[0].UserID)
}

func TestTransitionInProgressToResolved(t *testing.T) {
	svc, issues, _, evaluator := newLifecycleFixture(models.IssueStatusInProgress)

	updated, err := svc.Transition(context.Background(), "issue-1", governmentAuth(),
		dto.UpdateStatusRequest{Status: models.IssueStatusResolved})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, updated.Status)
	assert.NotNil(t, updated.ResolutionDate)

	require.Len(t, issues.transitions, 1)
	assert.True(t, issues.transitions[0].SetResolution)
	assert.Equal(t, models.EventWorkCompleted, issues.transitions[0].Event.EventType)

	assert.Equal(t, []string{"issue-1"}, evaluator.evaluated)
}

func TestTransitionResolvedNotifiesAssignee(t *testing.T) {
	svc, issues, notifier, _ := newLifecycleFixture(models.IssueStatusInProgress)
	issue := issues.issues["issue-1"]
	assignee := "crew-7"
	issue.AssignedTo = &assignee
	issues.issues["issue-1"] = issue

	_, err := svc.Transition(context.Background(), "issue-1", governmentAuth(),
		dto.UpdateStatusRequest{Status: models.IssueStatusResolved})
	require.NoError(t, err)

	require.Len(t, notifier.entries, 2)
	assert.Equal(t, "creator-1", notifier.entries[0].UserID)
	assert.Equal(t, "crew-7", notifier.entries[1].UserID)
}

func TestTransitionResolvedSkipsAssigneeSelfNotification(t *testing.T) {
	svc, issues, notifier, _ := newLifecycleFixture(models.IssueStatusInProgress)
	issue := issues.issues["issue-1"]
	assignee := "gov-1"
	issue.AssignedTo = &assignee
	issues.issues["issue-1"] = issue

	_, err := svc.Transition(context.Background(), "issue-1", governmentAuth(),
		dto.UpdateStatusRequest{Status: models.IssueStatusResolved})
	require.NoError(t, err)

	require.Len(t, notifier.entries, 1)
	assert.Equal(t, "creator-1", notifier.entries[0].UserID)
}

func TestTransitionResolvedToClosedByCitizen(t *testing.T) {
	svc, issues, _, _ := newLifecycleFixture(models.IssueStatusResolved)

	updated, err := svc.Transition(context.Background(), "issue-1", citizenAuth("other-citizen"),
		dto.UpdateStatusRequest{Status: models.IssueStatusClosed})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusClosed, updated.Status)
	assert.Equal(t, models.EventIssueClosed, issues.transitions[0].Event.EventType)
}

func TestTransitionRejectsUnknownEdge(t *testing.T) {
	svc, issues, _, _ := newLifecycleFixture(models.IssueStatusOpen)

	_, err := svc.Transition(context.Background(), "issue-1", governmentAuth(),
		dto.UpdateStatusRequest{Status: models.IssueStatusResolved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, issues.transitions)
}

func TestTransitionRejectsDirectReopen(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(models.IssueStatusClosed)

	_, err := svc.Transition(context.Background(), "issue-1", citizenAuth("other-citizen"),
		dto.UpdateStatusRequest{Status: models.IssueStatusOpen})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "dispute")
}

func TestTransitionRejectsWrongRole(t *testing.T) {
	svc, issues, _, _ := newLifecycleFixture(models.IssueStatusOpen)

	_, err := svc.Transition(context.Background(), "issue-1", citizenAuth("other-citizen"),
		dto.UpdateStatusRequest{Status: models.IssueStatusInProgress})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorizedActor.Code, appErrors.FromError(err).Code)
	assert.Empty(t, issues.transitions)
}

func TestTransitionConcurrencyLoserGetsConflict(t *testing.T) {
	svc, issues, _, _ := newLifecycleFixture(models.IssueStatusOpen)
	issues.transitionErr = repository.ErrStaleStatus

	_, err := svc.Transition(context.Background(), "issue-1", governmentAuth(),
		dto.UpdateStatusRequest{Status: models.IssueStatusInProgress})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConcurrentModification.Code, appErr.Code)
	assert.Equal(t, 409, appErr.Status)
}

func TestTransitionUnknownIssue(t *testing.T) {
	svc, _, _, _ := newLifecycleFixture(models.IssueStatusOpen)

	_, err := svc.Transition(context.Background(), "missing", governmentAuth(),
		dto.UpdateStatusRequest{Status: models.IssueStatusInProgress})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReopenForDispute(t *testing.T) {
	svc, issues, _, _ := newLifecycleFixture(models.IssueStatusClosed)
	issue := issues.issues["issue-1"]

	err := svc.ReopenForDispute(context.Background(), &issue, "citizen-9", "cv-1")
	require.NoError(t, err)

	require.Len(t, issues.transitions, 1)
	params := issues.transitions[0]
	assert.Equal(t, models.IssueStatusClosed, params.ExpectedStatus)
	assert.Equal(t, models.IssueStatusOpen, params.NewStatus)
	assert.True(t, params.ClearResolution)
	assert.Equal(t, models.EventIssueDisputed, params.Event.EventType)
	assert.Nil(t, issues.issues["issue-1"].ResolutionDate)
}

func TestReopenForDisputeNotifiesCreatorAndAssignee(t *testing.T) {
	svc, issues, notifier, _ := newLifecycleFixture(models.IssueStatusClosed)
	issue := issues.issues["issue-1"]
	assignee := "crew-7"
	issue.AssignedTo = &assignee
	issues.issues["issue-1"] = issue

	err := svc.ReopenForDispute(context.Background(), &issue, "citizen-9", "cv-1")
	require.NoError(t, err)

	require.Len(t, notifier.entries, 2)
	assert.Equal(t, "creator-1", notifier.entries[0].UserID)
	assert.Equal(t, models.NotifyStatusChanged, notifier.entries[0].Type)
	assert.Equal(t, "crew-7", notifier.entries[1].UserID)
}

func TestReopenForDisputeByCreatorSkipsCreatorNotification(t *testing.T) {
	svc, issues, notifier, _ := newLifecycleFixture(models.IssueStatusClosed)
	issue := issues.issues["issue-1"]

	err := svc.ReopenForDispute(context.Background(), &issue, "creator-1", "cv-1")
	require.NoError(t, err)
	assert.Empty(t, notifier.entries)
}

func TestRecordActionAssignedPinsDepartment(t *testing.T) {
	issues := &mockIssueStore{issues: map[string]models.Issue{
		"issue-1": {ID: "issue-1", Title: "Pothole", Status: models.IssueStatusOpen, CreatedBy: "creator-1"},
	}}
	actions := &mockActionStore{}
	notifier := &mockNotifier{}
	svc := NewLifecycleService(issues, actions, notifier, nil, nil, nil, nil)

	action, err := svc.RecordAction(context.Background(), "issue-1", governmentAuth(), dto.RecordActionRequest{
		ActionType: models.ActionAssigned,
		Department: "Public Works",
		AssigneeID: "crew-7",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionAssigned, action.ActionType)

	require.Len(t, actions.events, 1)
	assert.Equal(t, models.EventGovernmentAssigned, actions.events[0].EventType)

	assert.Equal(t, []string{"issue-1"}, issues.assignments)
	stored := issues.issues["issue-1"]
	require.NotNil(t, stored.AssignedDepartment)
	assert.Equal(t, "Public Works", *stored.AssignedDepartment)

	require.Len(t, notifier.entries, 1)
	assert.Equal(t, "creator-1", notifier.entries[0].UserID)
}

func TestRecordActionUnknownType(t *testing.T) {
	issues := &mockIssueStore{issues: map[string]models.Issue{
		"issue-1": {ID: "issue-1", Status: models.IssueStatusOpen, CreatedBy: "creator-1"},
	}}
	svc := NewLifecycleService(issues, &mockActionStore{}, nil, nil, nil, nil, nil)

	_, err := svc.RecordAction(context.Background(), "issue-1", governmentAuth(), dto.RecordActionRequest{
		ActionType: models.GovernmentActionType("DEMOLISHED"),
		Department: "Public Works",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestActorTypeForRole(t *testing.T) {
	assert.Equal(t, models.ActorGovernment, actorTypeForRole(models.RoleGovernment))
	assert.Equal(t, models.ActorSystem, actorTypeForRole(models.RoleAdmin))
	assert.Equal(t, models.ActorCitizen, actorTypeForRole(models.RoleCitizen))
}

func TestMapTransitionError(t *testing.T) {
	assert.Equal(t, appErrors.ErrConcurrentModification.Code, appErrors.FromError(mapTransitionError(repository.ErrStaleStatus)).Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(mapTransitionError(sql.ErrNoRows)).Code)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(mapTransitionError(errors.New("boom"))).Code)
}
