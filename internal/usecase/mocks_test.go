package usecase_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// MockStateStore is a mock implementation of StateStore
type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStateStore) Close() error {
	return m.Called().Error(0)
}

func (m *MockStateStore) GetContract(ctx context.Context, chainID uint64, name string) (*models.ContractRecord, error) {
	args := m.Called(ctx, chainID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContractRecord), args.Error(1)
}

func (m *MockStateStore) PutContract(ctx context.Context, chainID uint64, rec *models.ContractRecord) error {
	return m.Called(ctx, chainID, rec).Error(0)
}

func (m *MockStateStore) GetAllContracts(ctx context.Context, chainID uint64) ([]*models.ContractRecord, error) {
	args := m.Called(ctx, chainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ContractRecord), args.Error(1)
}

func (m *MockStateStore) QueryContracts(ctx context.Context, opts domain.QueryOptions) ([]*models.ContractRecord, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ContractRecord), args.Error(1)
}

func (m *MockStateStore) HasContract(ctx context.Context, chainID uint64, name string) (bool, error) {
	args := m.Called(ctx, chainID, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateStore) DeleteContract(ctx context.Context, chainID uint64, name string) (bool, error) {
	args := m.Called(ctx, chainID, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockStateStore) ExportAll(ctx context.Context, opts domain.ExportOptions) ([]byte, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStateStore) ImportAll(ctx context.Context, data []byte, overwrite bool) error {
	return m.Called(ctx, data, overwrite).Error(0)
}

func (m *MockStateStore) ValidateIntegrity(ctx context.Context) (*domain.IntegrityReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IntegrityReport), args.Error(1)
}

func (m *MockStateStore) Metrics() domain.StoreMetrics {
	return m.Called().Get(0).(domain.StoreMetrics)
}

func (m *MockStateStore) BackendType() string {
	return m.Called().String(0)
}

func (m *MockStateStore) IsHealthy(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

// MockMigratingStore adds the migration operations
type MockMigratingStore struct {
	MockStateStore
}

func (m *MockMigratingStore) Migrate(ctx context.Context) (*usecase.MigrationProgress, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.MigrationProgress), args.Error(1)
}

func (m *MockMigratingStore) CompleteMigration(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMigratingStore) RollbackMigration(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMigratingStore) State() usecase.MigrationState {
	return m.Called().Get(0).(usecase.MigrationState)
}

func (m *MockMigratingStore) Progress() usecase.MigrationProgress {
	return m.Called().Get(0).(usecase.MigrationProgress)
}

func (m *MockMigratingStore) ValidationWarnings() []usecase.ValidationWarning {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]usecase.ValidationWarning)
}

// MockPrompter answers confirmations
type MockPrompter struct {
	mock.Mock
}

func (m *MockPrompter) Confirm(label string) bool {
	return m.Called(label).Bool(0)
}

// MockProgressSink records progress events
type MockProgressSink struct {
	events []usecase.ProgressEvent
	infos  []string
	errors []string
}

func (m *MockProgressSink) OnProgress(_ context.Context, event usecase.ProgressEvent) {
	m.events = append(m.events, event)
}

func (m *MockProgressSink) Info(message string)  { m.infos = append(m.infos, message) }
func (m *MockProgressSink) Error(message string) { m.errors = append(m.errors, message) }

// memFiles is an in-memory FileReader and FileWriter
type memFiles map[string][]byte

func (f memFiles) ReadFile(path string) ([]byte, error) {
	data, ok := f[path]
	if !ok {
		return nil, errNoFile
	}
	return data, nil
}

func (f memFiles) WriteFile(path string, data []byte) error {
	f[path] = data
	return nil
}

var (
	_ usecase.StateStore     = (*MockStateStore)(nil)
	_ usecase.MigratingStore = (*MockMigratingStore)(nil)
)
