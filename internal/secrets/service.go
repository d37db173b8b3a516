// Package secrets is the core of KeyNest: every read or write of an encrypted
// variable flows through Service, which composes policy checks, the AES-GCM
// envelope, version history, and audit emission into single transactions.
//
// Two rules hold everywhere in this package: decrypted plaintext never
// appears in logs, errors, or audit details, and no value overwrite commits
// without its history snapshot and audit row committing with it.
package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/keynest/keynest/internal/access"
	"github.com/keynest/keynest/internal/audit"
	"github.com/keynest/keynest/internal/codec"
	"github.com/keynest/keynest/internal/crypto"
	"github.com/keynest/keynest/internal/db/models"
	"github.com/keynest/keynest/internal/db/repositories"
	"github.com/keynest/keynest/internal/telemetry"
)

// Masking markers substituted for values the caller may not (or cannot) see.
const (
	HiddenValue          = "[HIDDEN]"
	NoAccessValue        = "[NO_ACCESS]"
	DecryptionErrorValue = "[DECRYPTION_ERROR]"
)

// Actor identifies the caller of a service operation
type Actor struct {
	UserID    string
	IPAddress string
}

// Service implements the secret record store
type Service struct {
	cipher       *crypto.SecretCipher
	orgs         *repositories.OrganizationRepository
	projects     *repositories.ProjectRepository
	environments *repositories.EnvironmentRepository
	variables    *repositories.VariableRepository
	recorder     audit.Recorder
	logger       *slog.Logger
}

// NewService creates the secret record store service
func NewService(
	cipher *crypto.SecretCipher,
	orgs *repositories.OrganizationRepository,
	projects *repositories.ProjectRepository,
	environments *repositories.EnvironmentRepository,
	variables *repositories.VariableRepository,
	recorder audit.Recorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cipher:       cipher,
		orgs:         orgs,
		projects:     projects,
		environments: environments,
		variables:    variables,
		recorder:     recorder,
		logger:       logger,
	}
}

// envScope is the resolved chain from an environment up to the caller's role
// in the owning organization.
type envScope struct {
	environment *models.Environment
	project     *models.Project
	role        access.Role
}

func (s *Service) resolveEnvironment(ctx context.Context, actor Actor, envID string) (*envScope, error) {
	env, err := s.environments.GetByID(ctx, envID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, ErrNotFound
	}

	project, err := s.projects.GetByID(ctx, env.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrNotFound
	}

	member, err := s.orgs.GetMember(ctx, project.OrganizationID, actor.UserID)
	if err != nil {
		return nil, err
	}

	scope := &envScope{environment: env, project: project}
	if member != nil {
		scope.role = access.Role(member.Role)
	}
	return scope, nil
}

func (s *Service) resolveVariable(ctx context.Context, actor Actor, variableID string) (*models.Variable, *envScope, error) {
	v, err := s.variables.GetByID(ctx, variableID)
	if err != nil {
		return nil, nil, err
	}
	if v == nil {
		return nil, nil, ErrNotFound
	}

	scope, err := s.resolveEnvironment(ctx, actor, v.EnvironmentID)
	if err != nil {
		return nil, nil, err
	}
	return v, scope, nil
}

// CreateVariable creates an encrypted variable in an environment. An empty
// value is stored as an empty sealed value rather than being encrypted.
func (s *Service) CreateVariable(ctx context.Context, actor Actor, envID, key, value string) (*models.Variable, error) {
	scope, err := s.resolveEnvironment(ctx, actor, envID)
	if err != nil {
		return nil, err
	}
	if !access.Can(scope.role, access.ActionCreate) {
		return nil, ErrNoAccess
	}

	if problems := validateVariableInput(key, value); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	existing, err := s.variables.GetByKeyFold(ctx, envID, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateKey
	}

	sealed := ""
	if value != "" {
		sealed, err = s.cipher.Seal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to seal value: %w", err)
		}
		telemetry.SecretOperationsTotal.WithLabelValues("seal").Inc()
	}

	v := &models.Variable{
		Key:           key,
		SealedValue:   sealed,
		EnvironmentID: envID,
		CreatedBy:     actor.UserID,
	}

	tx, err := s.variables.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.variables.CreateTx(ctx, tx, v); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}

	if err := s.recorder.RecordTx(ctx, tx, s.entry(actor, models.AuditActionCreate, "variable", v.ID,
		map[string]any{"key": v.Key, "environment_id": envID})); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("variable created", "variable_id", v.ID, "environment_id", envID, "key", v.Key)
	return v, nil
}

// UpdateVariable overwrites a variable's value. The previous sealed value is
// snapshotted into the version history before the overwrite, inside the same
// transaction. A nil newValue leaves the stored value untouched.
func (s *Service) UpdateVariable(ctx context.Context, actor Actor, variableID string, newValue *string) (*models.Variable, error) {
	v, scope, err := s.resolveVariable(ctx, actor, variableID)
	if err != nil {
		return nil, err
	}
	if !access.Can(scope.role, access.ActionUpdate) {
		return nil, ErrNoAccess
	}

	if newValue == nil {
		return v, nil
	}
	if problems := validateValue(*newValue); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	sealed := ""
	if *newValue != "" {
		sealed, err = s.cipher.Seal(*newValue)
		if err != nil {
			return nil, fmt.Errorf("failed to seal value: %w", err)
		}
		telemetry.SecretOperationsTotal.WithLabelValues("seal").Inc()
	}

	tx, err := s.variables.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	locked, err := s.variables.GetForUpdateTx(ctx, tx, variableID)
	if err != nil {
		return nil, err
	}
	if locked == nil {
		return nil, ErrNotFound
	}

	details := map[string]any{"key": locked.Key, "environment_id": locked.EnvironmentID}

	// A variable that never held a value has no history to preserve.
	if locked.SealedValue != "" {
		version, err := s.variables.SnapshotVersionTx(ctx, tx, locked, actor.UserID)
		if err != nil {
			if repositories.IsUniqueViolation(err) {
				return nil, ErrVersionConflict
			}
			return nil, err
		}
		details["version"] = version
	}

	if err := s.variables.UpdateSealedValueTx(ctx, tx, variableID, sealed); err != nil {
		return nil, err
	}

	if err := s.recorder.RecordTx(ctx, tx, s.entry(actor, models.AuditActionUpdate, "variable", variableID, details)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	locked.SealedValue = sealed
	s.logger.Info("variable updated", "variable_id", variableID, "key", locked.Key)
	return locked, nil
}

// ReadValue returns a variable's value according to the caller's visibility
// tier: full access decrypts, viewers get the hidden marker, and non-members
// are denied. A decryption failure on a direct read is an error, not a
// marker — the caller asked for this exact value.
func (s *Service) ReadValue(ctx context.Context, actor Actor, variableID string) (string, error) {
	v, scope, err := s.resolveVariable(ctx, actor, variableID)
	if err != nil {
		return "", err
	}

	switch access.ValueVisibility(scope.role) {
	case access.VisibilityNoAccess:
		return "", ErrNoAccess
	case access.VisibilityHidden:
		return HiddenValue, nil
	}

	plaintext, err := s.cipher.Open(v.SealedValue)
	if err != nil {
		telemetry.DecryptionFailuresTotal.Inc()
		s.logger.Error("failed to decrypt variable", "variable_id", variableID, "key", v.Key, "error", err)
		return "", err
	}
	telemetry.SecretOperationsTotal.WithLabelValues("open").Inc()

	if err := s.recorder.Record(ctx, s.entry(actor, models.AuditActionView, "variable", variableID,
		map[string]any{"key": v.Key})); err != nil {
		return "", err
	}

	return plaintext, nil
}

// GetVariable returns variable metadata if the caller can read the
// environment. The sealed value is never exposed through this path.
func (s *Service) GetVariable(ctx context.Context, actor Actor, variableID string) (*models.Variable, error) {
	v, scope, err := s.resolveVariable(ctx, actor, variableID)
	if err != nil {
		return nil, err
	}
	if !access.Can(scope.role, access.ActionRead) {
		return nil, ErrNoAccess
	}
	return v, nil
}

// ListVariables returns the environment's variables, metadata only
func (s *Service) ListVariables(ctx context.Context, actor Actor, envID string) ([]*models.Variable, error) {
	scope, err := s.resolveEnvironment(ctx, actor, envID)
	if err != nil {
		return nil, err
	}
	if !access.Can(scope.role, access.ActionRead) {
		return nil, ErrNoAccess
	}
	return s.variables.ListByEnvironment(ctx, envID)
}

// DeleteVariable removes a variable and its version history
func (s *Service) DeleteVariable(ctx context.Context, actor Actor, variableID string) error {
	v, scope, err := s.resolveVariable(ctx, actor, variableID)
	if err != nil {
		return err
	}
	if !access.Can(scope.role, access.ActionDelete) {
		return ErrNoAccess
	}

	tx, err := s.variables.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.variables.DeleteTx(ctx, tx, variableID); err != nil {
		return err
	}
	if err := s.recorder.RecordTx(ctx, tx, s.entry(actor, models.AuditActionDelete, "variable", variableID,
		map[string]any{"key": v.Key, "environment_id": v.EnvironmentID})); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("variable deleted", "variable_id", variableID, "key", v.Key)
	return nil
}

// ListVersions returns a variable's version history, newest first. Sealed
// values stay sealed; only metadata leaves this method.
func (s *Service) ListVersions(ctx context.Context, actor Actor, variableID string) ([]*models.VariableVersion, error) {
	_, scope, err := s.resolveVariable(ctx, actor, variableID)
	if err != nil {
		return nil, err
	}
	if !access.Can(scope.role, access.ActionRead) {
		return nil, ErrNoAccess
	}
	return s.variables.ListVersions(ctx, variableID)
}

// ExportResult is a rendered environment ready to be served as a download
type ExportResult struct {
	Content     string
	Filename    string
	ContentType string
	FailedKeys  []string
}

// ExportEnvironment renders all variables of an environment in the requested
// format. Per-key decryption failures substitute a marker and are reported in
// FailedKeys rather than aborting the export; viewers get every value
// replaced by the hidden marker.
func (s *Service) ExportEnvironment(ctx context.Context, actor Actor, envID string, format codec.Format) (*ExportResult, error) {
	scope, err := s.resolveEnvironment(ctx, actor, envID)
	if err != nil {
		return nil, err
	}
	if !access.Can(scope.role, access.ActionExport) {
		return nil, ErrNoAccess
	}

	if format == codec.FormatAuto || format == "" {
		format = codec.FormatDotenv
	}

	vars, err := s.variables.ListByEnvironment(ctx, envID)
	if err != nil {
		return nil, err
	}

	visibility := access.ValueVisibility(scope.role)
	values := make(map[string]string, len(vars))
	failed := make([]string, 0)

	for _, v := range vars {
		if visibility == access.VisibilityHidden {
			values[v.Key] = HiddenValue
			continue
		}
		if v.SealedValue == "" {
			values[v.Key] = ""
			continue
		}
		plaintext, err := s.cipher.Open(v.SealedValue)
		if err != nil {
			telemetry.DecryptionFailuresTotal.Inc()
			s.logger.Error("export decryption failure", "variable_id", v.ID, "key", v.Key, "error", err)
			values[v.Key] = DecryptionErrorValue
			failed = append(failed, v.Key)
			continue
		}
		telemetry.SecretOperationsTotal.WithLabelValues("open").Inc()
		values[v.Key] = plaintext
	}
	sort.Strings(failed)

	content, err := codec.Render(values, format)
	if err != nil {
		return nil, err
	}

	if err := s.recorder.Record(ctx, s.entry(actor, models.AuditActionExport, "environment", envID, map[string]any{
		"format":             string(format),
		"variable_count":     len(vars),
		"failed_decryptions": failed,
	})); err != nil {
		return nil, err
	}

	telemetry.ExportsTotal.WithLabelValues(string(format)).Inc()

	return &ExportResult{
		Content:     content,
		Filename:    fmt.Sprintf("%s_%s.%s", scope.project.Name, scope.environment.Name, format.Extension()),
		ContentType: format.ContentType(),
		FailedKeys:  failed,
	}, nil
}

// ImportFailure describes one key an import could not write
type ImportFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// ImportSummary reports the outcome of an environment import
type ImportSummary struct {
	Imported int             `json:"imported"`
	Updated  int             `json:"updated"`
	Failed   int             `json:"failed"`
	Total    int             `json:"total"`
	Failures []ImportFailure `json:"failures,omitempty"`
}

// ImportEnvironment parses content in the given format and writes its keys
// into the environment. Without overwrite, any collision with an existing key
// (case-insensitive) aborts before a single write. With overwrite, existing
// keys are updated through the normal snapshot path. All writes share one
// transaction; keys that fail structural validation are collected in the
// summary without failing the rest.
func (s *Service) ImportEnvironment(ctx context.Context, actor Actor, envID, content string, format codec.Format, overwrite bool) (*ImportSummary, error) {
	scope, err := s.resolveEnvironment(ctx, actor, envID)
	if err != nil {
		return nil, err
	}
	if !access.Can(scope.role, access.ActionImport) {
		return nil, ErrNoAccess
	}

	if len(content) > codec.MaxImportSize {
		return nil, &ValidationError{Problems: []string{
			fmt.Sprintf("import exceeds maximum size of %d bytes", codec.MaxImportSize),
		}}
	}

	if format == codec.FormatAuto || format == "" {
		format = codec.Detect(content)
	}

	incoming, err := codec.Parse(content, format)
	if err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}
	if problems := codec.ValidateSet(incoming); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	existing, err := s.variables.ListByEnvironment(ctx, envID)
	if err != nil {
		return nil, err
	}
	existingByFold := make(map[string]*models.Variable, len(existing))
	for _, v := range existing {
		existingByFold[strings.ToLower(v.Key)] = v
	}

	keys := make([]string, 0, len(incoming))
	conflicts := make([]string, 0)
	for key := range incoming {
		keys = append(keys, key)
		if _, ok := existingByFold[strings.ToLower(key)]; ok {
			conflicts = append(conflicts, key)
		}
	}
	sort.Strings(keys)
	sort.Strings(conflicts)

	if !overwrite && len(conflicts) > 0 {
		return nil, &ImportConflictError{Keys: conflicts}
	}

	tx, err := s.variables.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	summary := &ImportSummary{Total: len(keys)}

	for _, key := range keys {
		value := incoming[key]

		current, isUpdate := existingByFold[strings.ToLower(key)]
		if !isUpdate {
			if !models.VariableKeyPattern.MatchString(key) {
				summary.Failed++
				summary.Failures = append(summary.Failures, ImportFailure{
					Key:    key,
					Reason: "key must start with an uppercase letter and contain only uppercase letters, digits, and underscores",
				})
				continue
			}
		}

		sealed := ""
		if value != "" {
			sealed, err = s.cipher.Seal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to seal value: %w", err)
			}
			telemetry.SecretOperationsTotal.WithLabelValues("seal").Inc()
		}

		if isUpdate {
			locked, err := s.variables.GetForUpdateTx(ctx, tx, current.ID)
			if err != nil {
				return nil, err
			}
			if locked == nil {
				return nil, ErrVersionConflict
			}
			if locked.SealedValue != "" {
				if _, err := s.variables.SnapshotVersionTx(ctx, tx, locked, actor.UserID); err != nil {
					if repositories.IsUniqueViolation(err) {
						return nil, ErrVersionConflict
					}
					return nil, err
				}
			}
			if err := s.variables.UpdateSealedValueTx(ctx, tx, locked.ID, sealed); err != nil {
				return nil, err
			}
			summary.Updated++
			continue
		}

		v := &models.Variable{
			Key:           key,
			SealedValue:   sealed,
			EnvironmentID: envID,
			CreatedBy:     actor.UserID,
		}
		if err := s.variables.CreateTx(ctx, tx, v); err != nil {
			return nil, err
		}
		summary.Imported++
	}

	if err := s.recorder.RecordTx(ctx, tx, s.entry(actor, models.AuditActionImport, "environment", envID, map[string]any{
		"format":    string(format),
		"imported":  summary.Imported,
		"updated":   summary.Updated,
		"failed":    summary.Failed,
		"overwrite": overwrite,
	})); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	telemetry.ImportsTotal.WithLabelValues(string(format)).Inc()
	s.logger.Info("environment import complete",
		"environment_id", envID,
		"imported", summary.Imported,
		"updated", summary.Updated,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (s *Service) entry(actor Actor, action, targetType, targetID string, details map[string]any) *models.AuditLog {
	entry := &models.AuditLog{
		UserID:     actor.UserID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}
	if actor.IPAddress != "" {
		ip := actor.IPAddress
		entry.IPAddress = &ip
	}
	return entry
}

func validateVariableInput(key, value string) []string {
	problems := make([]string, 0)
	if !models.VariableKeyPattern.MatchString(key) {
		problems = append(problems, "key must start with an uppercase letter and contain only uppercase letters, digits, and underscores")
	}
	problems = append(problems, validateValue(value)...)
	return problems
}

func validateValue(value string) []string {
	if len(value) > codec.MaxValueLength {
		return []string{fmt.Sprintf("value exceeds maximum length of %d characters", codec.MaxValueLength)}
	}
	return nil
}
