package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/academy-hub/models"
	"go.uber.org/zap"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)
	m.mu.Lock()
	m.insertedLogs = append(m.insertedLogs, log)
	m.mu.Unlock()
	return args.Error(0)
}

func (m *MockAuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	args := m.Called(ctx, id)
	if log := args.Get(0); log != nil {
		return log.(*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) ListByActor(ctx context.Context, actorUID string, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, actorUID, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) ListByAcademy(ctx context.Context, academyID uuid.UUID, start, end time.Time, limit int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, academyID, start, end, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.insertedLogs...)
}

func (m *MockAuditRepository) waitFor(t *testing.T, n int) []*models.AuditLog {
	t.Helper()
	require.Eventually(t, func() bool { return len(m.GetInsertedLogs()) >= n }, 2*time.Second, 10*time.Millisecond)
	return m.GetInsertedLogs()
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))

	// events after stop are refused rather than panicking
	err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLogout, "u1")})
	assert.Error(t, err)
}

func TestAuditService_LogEventNotStarted(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())
	err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLogout, "u1")})
	assert.Error(t, err)
}

func TestAuditService_ConvenienceMethods(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	meta := RequestMeta{RequestID: "req-1", IPAddress: "10.0.0.1", UserAgent: "test"}

	require.NoError(t, service.LogLogin("u1", true, meta, ""))
	require.NoError(t, service.LogLogin("", false, meta, "token expired"))
	require.NoError(t, service.LogLogout("u1", meta))
	require.NoError(t, service.LogAccessDenied("u2", models.RoleCoach, "/api/super-admin/update-password", meta))
	require.NoError(t, service.LogRulesGenerated("admin-1", "gpt-4o-mini", meta))

	logs := mockRepo.waitFor(t, 5)
	actions := make(map[models.AuditAction]*models.AuditLog)
	for _, l := range logs {
		actions[l.Action] = l
		assert.Equal(t, "req-1", l.RequestID)
	}

	require.Contains(t, actions, models.AuditActionLoginFailed)
	assert.JSONEq(t, `{"reason":"token expired"}`, string(actions[models.AuditActionLoginFailed].Details))
	require.Contains(t, actions, models.AuditActionAccessDenied)
	assert.Equal(t, "u2", actions[models.AuditActionAccessDenied].ActorUID)
	assert.Contains(t, actions, models.AuditActionLoginSucceeded)
	assert.Contains(t, actions, models.AuditActionLogout)
	assert.Contains(t, actions, models.AuditActionRulesGenerated)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLoginSucceeded, "u")})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.GetInsertedLogs(), 100)
}

func TestAuditService_BufferFull(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 2, WorkerCount: 1})
	require.NoError(t, service.Start())

	failures := 0
	for i := 0; i < 10; i++ {
		if err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog(models.AuditActionLogout, "u")}); err != nil {
			failures++
		}
	}
	assert.Greater(t, failures, 0)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_LogEventBlockingRespectsContext(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	event := func() *AuditEvent { return &AuditEvent{Log: models.NewAuditLog(models.AuditActionLogout, "u")} }
	require.NoError(t, service.LogEventBlocking(context.Background(), event()))

	// the worker holds one event and the buffer holds another
	require.Eventually(t, func() bool {
		return service.LogEvent(event()) == nil
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, service.LogEventBlocking(ctx, event()), context.DeadlineExceeded)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_LogSessionsRevoked(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.LogSessionsRevoked(context.Background(), "coach-1", "device lost"))
	require.NoError(t, service.Stop(5*time.Second))

	logs := mockRepo.GetInsertedLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionSessionsRevoked, logs[0].Action)
	assert.Equal(t, "coach-1", logs[0].TargetUID)
	assert.Empty(t, logs[0].ActorUID)
	assert.JSONEq(t, `{"reason":"device lost"}`, string(logs[0].Details))

	assert.Error(t, service.LogSessionsRevoked(context.Background(), "coach-1", ""))
}

func TestMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "academy-web/1.0")
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-9"))

	meta := MetaFromRequest(req)
	assert.Equal(t, "203.0.113.7", meta.IPAddress)
	assert.Equal(t, "academy-web/1.0", meta.UserAgent)
	assert.Equal(t, "req-9", meta.RequestID)
}
