package usecase

import (
	"context"
	"time"

	"github.com/trebuchet-org/treb-state/internal/domain"
	"github.com/trebuchet-org/treb-state/internal/domain/models"
)

// StateStore is the uniform contract-record store every backend implements
type StateStore interface {
	Initialize(ctx context.Context) error
	Close() error

	// GetContract returns nil without error when the record does not exist
	GetContract(ctx context.Context, chainID uint64, contractName string) (*models.ContractRecord, error)
	// PutContract overwrites the record and refreshes rec.Timestamp
	PutContract(ctx context.Context, chainID uint64, rec *models.ContractRecord) error
	GetAllContracts(ctx context.Context, chainID uint64) ([]*models.ContractRecord, error)
	QueryContracts(ctx context.Context, opts domain.QueryOptions) ([]*models.ContractRecord, error)
	HasContract(ctx context.Context, chainID uint64, contractName string) (bool, error)
	// DeleteContract returns false without error when nothing was deleted
	DeleteContract(ctx context.Context, chainID uint64, contractName string) (bool, error)

	ExportAll(ctx context.Context, opts domain.ExportOptions) ([]byte, error)
	ImportAll(ctx context.Context, data []byte, overwrite bool) error
	ValidateIntegrity(ctx context.Context) (*domain.IntegrityReport, error)

	Metrics() domain.StoreMetrics
	BackendType() string
	IsHealthy(ctx context.Context) bool
}

// MigrationState is the lifecycle state of a migrating store
type MigrationState string

const (
	MigrationActive     MigrationState = "active"
	MigrationCompleted  MigrationState = "completed"
	MigrationRolledBack MigrationState = "rolled-back"
)

// MigrationPhase describes where a bulk migration is
type MigrationPhase string

const (
	PhaseIdle       MigrationPhase = "idle"
	PhaseExporting  MigrationPhase = "exporting"
	PhaseImporting  MigrationPhase = "importing"
	PhaseValidating MigrationPhase = "validating"
	PhaseDone       MigrationPhase = "done"
	PhaseFailed     MigrationPhase = "failed"
)

// MigrationProgress tracks a bulk migration run
type MigrationProgress struct {
	ID         string         `json:"id"`
	Phase      MigrationPhase `json:"phase"`
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	StartedAt  int64          `json:"startedAt,omitempty"`
	FinishedAt int64          `json:"finishedAt,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// Percent returns completion in the range 0..100
func (p MigrationProgress) Percent() float64 {
	if p.Total == 0 {
		if p.Phase == PhaseDone {
			return 100
		}
		return 0
	}
	return float64(p.Processed) * 100 / float64(p.Total)
}

// ValidationWarning records a post-write mismatch found by the coordinator
type ValidationWarning struct {
	Key       string `json:"key"`
	Field     string `json:"field"`
	Written   string `json:"written"`
	ReadBack  string `json:"readBack"`
	Timestamp int64  `json:"timestamp"`
}

// MigratingStore is a StateStore that fans out to a source and a target backend
type MigratingStore interface {
	StateStore

	Migrate(ctx context.Context) (*MigrationProgress, error)
	CompleteMigration(ctx context.Context) error
	RollbackMigration(ctx context.Context) error

	State() MigrationState
	Progress() MigrationProgress
	ValidationWarnings() []ValidationWarning
}

// MigrationStatus is the persisted operator decision and last bulk run
type MigrationStatus struct {
	Source    string            `json:"source"`
	Target    string            `json:"target"`
	State     MigrationState    `json:"state"`
	Progress  MigrationProgress `json:"progress"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// MigrationStatusStore persists MigrationStatus across restarts
type MigrationStatusStore interface {
	// Load returns nil without error when no status was saved yet
	Load(ctx context.Context) (*MigrationStatus, error)
	Save(ctx context.Context, status *MigrationStatus) error
	Delete(ctx context.Context) error
}

// Progress tracking interfaces

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage    string
	Current  int
	Total    int
	Message  string
	Spinner  bool
	Metadata interface{}
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
func (NopProgress) Info(string)                               {}
func (NopProgress) Error(string)                              {}

// ConfirmPrompter asks the operator before destructive actions
type ConfirmPrompter interface {
	Confirm(label string) bool
}

// RecordSelector lets the operator pick a record interactively
type RecordSelector interface {
	SelectRecord(records []*models.ContractRecord, label string) (*models.ContractRecord, error)
}
