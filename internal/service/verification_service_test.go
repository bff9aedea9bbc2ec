package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	"github.com/civicfix/civicfix-api/internal/repository"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
)

type mockVerificationStore struct {
	aggregates     repository.VerificationAggregates
	notVerified    int
	aiWrites       []models.AIVerification
	citizenWrites  []models.CitizenVerification
	cacheUpdates   []repository.IssueCacheUpdate
	timelineEvents []models.TimelineEvent
}

func (m *mockVerificationStore) RecordAI(ctx context.Context, v *models.AIVerification, cache repository.IssueCacheUpdate, event *models.TimelineEvent) error {
	v.ID = "ai-1"
	m.aiWrites = append(m.aiWrites, *v)
	m.cacheUpdates = append(m.cacheUpdates, cache)
	if event != nil {
		m.timelineEvents = append(m.timelineEvents, *event)
	}
	return nil
}

func (m *mockVerificationStore) RecordCitizen(ctx context.Context, v *models.CitizenVerification, cache repository.IssueCacheUpdate, event *models.TimelineEvent) error {
	v.ID = "cv-1"
	m.citizenWrites = append(m.citizenWrites, *v)
	m.cacheUpdates = append(m.cacheUpdates, cache)
	if event != nil {
		m.timelineEvents = append(m.timelineEvents, *event)
	}
	return nil
}

func (m *mockVerificationStore) AggregatesForIssue(ctx context.Context, issueID string) (repository.VerificationAggregates, error) {
	return m.aggregates, nil
}

func (m *mockVerificationStore) CountNotVerifiedSince(ctx context.Context, issueID string, since time.Time) (int, error) {
	return m.notVerified, nil
}

func (m *mockVerificationStore) ListCitizenByIssue(ctx context.Context, issueID string, limit int) ([]models.CitizenVerification, error) {
	return m.citizenWrites, nil
}

type mockDisputeReopener struct {
	reopened []string
}

func (m *mockDisputeReopener) ReopenForDispute(ctx context.Context, issue *models.Issue, actorID, verificationID string) error {
	m.reopened = append(m.reopened, issue.ID)
	return nil
}

type mockDisputeEvaluator struct {
	disputes    []string
	nonVerified []int
}

func (m *mockDisputeEvaluator) EvaluateOnDispute(ctx context.Context, issue *models.Issue, verificationID string) error {
	m.disputes = append(m.disputes, verificationID)
	return nil
}

func (m *mockDisputeEvaluator) EvaluateOnNonVerification(ctx context.Context, issue *models.Issue, notVerifiedCount int) error {
	m.nonVerified = append(m.nonVerified, notVerifiedCount)
	return nil
}

func TestComputeTrustScore(t *testing.T) {
	tests := []struct {
		name         string
		aiConfidence float64
		hasAI        bool
		total        int
		verified     int
		location     bool
		want         float64
	}{
		{name: "no signal", want: 0},
		{name: "ai only", aiConfidence: 0.8, hasAI: true, want: 0.32},
		{name: "citizens only", total: 4, verified: 3, want: 0.3},
		{name: "location only", location: true, want: 0.2},
		{name: "full agreement", aiConfidence: 1, hasAI: true, total: 2, verified: 2, location: true, want: 1},
		{name: "confidence above one is clamped", aiConfidence: 5, hasAI: true, want: 0.4},
		{name: "negative confidence is clamped", aiConfidence: -1, hasAI: true, want: 0},
		{name: "zero citizen reports skip citizen weight", aiConfidence: 0.5, hasAI: true, total: 0, verified: 0, want: 0.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := computeTrustScore(tc.aiConfidence, tc.hasAI, tc.total, tc.verified, tc.location)
			assert.InDelta(t, tc.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestHaversineMeters(t *testing.T) {
	// Same point.
	assert.InDelta(t, 0, haversineMeters(12.97, 77.59, 12.97, 77.59), 0.001)

	// Roughly 0.0009 degrees of latitude is 100 m.
	within := haversineMeters(12.97, 77.59, 12.97+0.00089, 77.59)
	assert.Less(t, within, locationToleranceMeters)

	outside := haversineMeters(12.97, 77.59, 12.97+0.002, 77.59)
	assert.Greater(t, outside, locationToleranceMeters)
}

func newVerificationFixture(status models.IssueStatus, resolved bool) (*VerificationService, *mockVerificationStore, *mockIssueStore, *mockDisputeReopener, *mockDisputeEvaluator) {
	issue := models.Issue{
		ID:        "issue-1",
		Title:     "Overflowing drain",
		Status:    status,
		CreatedBy: "creator-1",
		Latitude:  12.97,
		Longitude: 77.59,
	}
	if resolved {
		ts := time.Now().UTC().Add(-24 * time.Hour)
		issue.ResolutionDate = &ts
	}
	issues := &mockIssueStore{issues: map[string]models.Issue{"issue-1": issue}}
	store := &mockVerificationStore{}
	reopener := &mockDisputeReopener{}
	evaluator := &mockDisputeEvaluator{}
	svc := NewVerificationService(store, issues, reopener, evaluator, &mockNotifier{}, nil, nil, nil)
	return svc, store, issues, reopener, evaluator
}

func TestRecordAIUpdatesCacheAndTrust(t *testing.T) {
	svc, store, _, _, _ := newVerificationFixture(models.IssueStatusOpen, false)

	v, err := svc.RecordAI(context.Background(), "issue-1", dto.RecordAIVerificationRequest{
		VerificationType: models.AIVerificationInitial,
		Status:           models.AIStatusApproved,
		Confidence:       0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, "ai-1", v.ID)

	require.Len(t, store.cacheUpdates, 1)
	update := store.cacheUpdates[0]
	require.NotNil(t, update.AIStatus)
	assert.Equal(t, models.VerificationCacheApproved, *update.AIStatus)
	require.NotNil(t, update.TrustScore)
	assert.InDelta(t, 0.36, *update.TrustScore, 1e-9)

	require.Len(t, store.timelineEvents, 1)
	assert.Equal(t, models.EventAIVerificationCompleted, store.timelineEvents[0].EventType)
}

func TestRecordAIRejectionEmitsRejectedEvent(t *testing.T) {
	svc, store, _, _, _ := newVerificationFixture(models.IssueStatusOpen, false)

	_, err := svc.RecordAI(context.Background(), "issue-1", dto.RecordAIVerificationRequest{
		VerificationType: models.AIVerificationInitial,
		Status:           models.AIStatusRejected,
		Confidence:       0.2,
		RejectionReasons: []string{"duplicate report"},
	})
	require.NoError(t, err)
	require.Len(t, store.timelineEvents, 1)
	assert.Equal(t, models.EventIssueRejected, store.timelineEvents[0].EventType)
}

func TestRecordCitizenRejectsSelfVerification(t *testing.T) {
	svc, store, _, _, _ := newVerificationFixture(models.IssueStatusResolved, true)

	_, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "creator-1", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationFinal,
			Status:           models.CitizenStatusVerified,
		})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSelfVerification.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.citizenWrites)
}

func TestRecordCitizenCreatorCanDispute(t *testing.T) {
	svc, store, _, reopener, _ := newVerificationFixture(models.IssueStatusClosed, true)

	// The independence requirement covers only the final sign-off; the
	// reporter is exactly who notices when their own issue was closed wrongly.
	v, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "creator-1", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationDispute,
			Status:           models.CitizenStatusDisputed,
		})
	require.NoError(t, err)
	assert.Equal(t, models.CitizenStatusDisputed, v.Status)
	require.Len(t, store.citizenWrites, 1)
	assert.Equal(t, []string{"issue-1"}, reopener.reopened)
}

func TestRecordCitizenCreatorCanProgressCheck(t *testing.T) {
	svc, store, _, _, _ := newVerificationFixture(models.IssueStatusInProgress, false)

	_, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "creator-1", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationProgress,
			Status:           models.CitizenStatusVerified,
		})
	require.NoError(t, err)
	require.Len(t, store.citizenWrites, 1)
}

func TestRecordCitizenLocationWithinTolerance(t *testing.T) {
	svc, store, _, _, _ := newVerificationFixture(models.IssueStatusResolved, true)

	lat, lng := 12.97+0.0005, 77.59
	v, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "citizen-2", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationFinal,
			Status:           models.CitizenStatusVerified,
			Latitude:         &lat,
			Longitude:        &lng,
		})
	require.NoError(t, err)
	assert.True(t, v.LocationVerified)

	// First citizen report, verified, on site: 0.4*1 + 0.2.
	require.Len(t, store.cacheUpdates, 1)
	require.NotNil(t, store.cacheUpdates[0].TrustScore)
	assert.InDelta(t, 0.6, *store.cacheUpdates[0].TrustScore, 1e-9)
}

func TestRecordCitizenLocationOutsideTolerance(t *testing.T) {
	svc, _, _, _, _ := newVerificationFixture(models.IssueStatusResolved, true)

	lat, lng := 12.97+0.01, 77.59
	v, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "citizen-2", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationFinal,
			Status:           models.CitizenStatusVerified,
			Latitude:         &lat,
			Longitude:        &lng,
		})
	require.NoError(t, err)
	assert.False(t, v.LocationVerified)
}

func TestRecordCitizenDisputeReopensClosedIssue(t *testing.T) {
	svc, _, _, reopener, evaluator := newVerificationFixture(models.IssueStatusClosed, true)

	_, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "citizen-2", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationDispute,
			Status:           models.CitizenStatusDisputed,
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"issue-1"}, reopener.reopened)
	assert.Equal(t, []string{"cv-1"}, evaluator.disputes)
}

func TestRecordCitizenDisputeOnOpenIssueSkipsReopen(t *testing.T) {
	svc, _, _, reopener, evaluator := newVerificationFixture(models.IssueStatusResolved, true)

	_, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "citizen-2", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationDispute,
			Status:           models.CitizenStatusDisputed,
		})
	require.NoError(t, err)
	assert.Empty(t, reopener.reopened)
	assert.Len(t, evaluator.disputes, 1)
}

func TestRecordCitizenNotVerifiedFeedsEscalationCount(t *testing.T) {
	svc, store, _, _, evaluator := newVerificationFixture(models.IssueStatusResolved, true)
	store.notVerified = 3

	_, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "citizen-2", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationFinal,
			Status:           models.CitizenStatusNotVerified,
		})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, evaluator.nonVerified)
}

func TestRecordCitizenNotVerifiedWithoutResolutionDate(t *testing.T) {
	svc, _, _, _, evaluator := newVerificationFixture(models.IssueStatusOpen, false)

	_, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "citizen-2", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationProgress,
			Status:           models.CitizenStatusNotVerified,
		})
	require.NoError(t, err)
	assert.Empty(t, evaluator.nonVerified)
}

func TestRecordCitizenTrustBlendsExistingAggregates(t *testing.T) {
	svc, store, _, _, _ := newVerificationFixture(models.IssueStatusResolved, true)
	store.aggregates = repository.VerificationAggregates{
		LatestAIConfidence: nullFloat(0.5),
		CitizenTotal:       3,
		CitizenVerified:    1,
		LocationVerified:   1,
	}

	_, err := svc.RecordCitizen(context.Background(), "issue-1",
		&models.AuthContext{UserID: "citizen-2", Role: models.RoleCitizen},
		dto.RecordCitizenVerificationRequest{
			VerificationType: models.CitizenVerificationFinal,
			Status:           models.CitizenStatusVerified,
		})
	require.NoError(t, err)

	// 0.4*0.5 + 0.4*(2/4) + 0.2 = 0.6
	require.Len(t, store.cacheUpdates, 1)
	assert.InDelta(t, 0.6, *store.cacheUpdates[0].TrustScore, 1e-9)
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func TestRecordAIValidatesPayload(t *testing.T) {
	svc, _, _, _, _ := newVerificationFixture(models.IssueStatusOpen, false)

	_, err := svc.RecordAI(context.Background(), "issue-1", dto.RecordAIVerificationRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
