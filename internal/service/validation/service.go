package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/metrics"
)

// Options configures tier-2 behavior.
type Options struct {
	DuplicatePolicy  record.DuplicatePolicy
	DedupEnabled     bool
	ConflictsEnabled bool
}

// Service is the tier-2 validator: stateful, reconciling schema-valid records
// against the identity resolver and the record store. Data-level outcomes
// (validation, mapping, duplicate, conflict) are attached to records and never
// returned as errors; only store failures propagate.
type Service struct {
	record.Repository
	resolver identity.Resolver
	schema   *SchemaValidator
	opts     Options
}

func NewService(recordRepo record.Repository, resolver identity.Resolver, schema *SchemaValidator, opts Options) *Service {
	return &Service{
		Repository: recordRepo,
		resolver:   resolver,
		schema:     schema,
		opts:       opts,
	}
}

// Schema exposes the tier-1 validator so the gateway can run validated
// retrieval with the same coercion rules.
func (s *Service) Schema() *SchemaValidator {
	return s.schema
}

// ValidateBatch runs both tiers over one device's raw logs. Malformed entries
// inside the input become individual invalid outcomes without aborting the
// batch.
func (s *Service) ValidateBatch(ctx context.Context, entries []device.RawLogEntry) (record.BatchValidationResult, error) {
	started := time.Now()
	result := record.BatchValidationResult{
		ValidRecords:     []record.ProcessedRecord{},
		InvalidRecords:   []record.ProcessedRecord{},
		DuplicateRecords: []record.ProcessedRecord{},
		ConflictRecords:  []record.ProcessedRecord{},
	}

	schemaOut := s.schema.ValidateLogs(entries)
	result.TotalProcessed = schemaOut.Summary.TotalProcessed
	for _, invalid := range schemaOut.InvalidRecords {
		result.InvalidRecords = append(result.InvalidRecords, invalid)
		result.InvalidCount++
		metrics.RecordsProcessed.WithLabelValues("invalid").Inc()
	}

	for _, canonical := range schemaOut.ValidRecords {
		processed, err := s.classify(ctx, canonical)
		if err != nil {
			return record.BatchValidationResult{}, err
		}

		switch {
		case processed.HasError(record.KindEmployeeMapping):
			result.EmployeeMappingIssues++
			result.InvalidCount++
			result.InvalidRecords = append(result.InvalidRecords, processed)
			metrics.RecordsProcessed.WithLabelValues("mapping_issue").Inc()
		case processed.HasError(record.KindDuplicate):
			result.DuplicateCount++
			result.DuplicateRecords = append(result.DuplicateRecords, processed)
			if s.opts.DuplicatePolicy == record.ErrorOnDuplicate {
				result.InvalidCount++
				result.InvalidRecords = append(result.InvalidRecords, processed)
			}
			metrics.RecordsProcessed.WithLabelValues("duplicate").Inc()
		case processed.HasError(record.KindConflict):
			result.ConflictCount++
			result.ConflictRecords = append(result.ConflictRecords, processed)
			metrics.RecordsProcessed.WithLabelValues("conflict").Inc()
		default:
			result.ValidCount++
			result.ValidRecords = append(result.ValidRecords, processed)
			metrics.RecordsProcessed.WithLabelValues("valid").Inc()
		}
	}

	if result.TotalProcessed > 0 {
		total := float64(result.TotalProcessed)
		result.Summary.SuccessRate = float64(result.ValidCount) / total * 100
		result.Summary.DuplicateRate = float64(result.DuplicateCount) / total * 100
		result.Summary.ConflictRate = float64(result.ConflictCount) / total * 100
	}
	result.Summary.ProcessingTimeMs = time.Since(started).Milliseconds()

	return result, nil
}

// classify runs identity resolution, duplicate detection, and conflict
// detection for one schema-valid record.
func (s *Service) classify(ctx context.Context, canonical record.CanonicalRecord) (record.ProcessedRecord, error) {
	processed := record.ProcessedRecord{
		Record: canonical,
		Mapping: record.EmployeeMapping{
			DeviceUserID: canonical.DeviceUserID,
		},
	}

	resolved := s.resolver.Resolve(ctx, canonical.DeviceUserID)
	if !resolved.IsValid {
		processed.Errors = append(processed.Errors, record.RecordError{
			Kind:    record.KindEmployeeMapping,
			Message: resolved.ErrorMessage,
		})
		return processed, nil
	}
	processed.Mapping.StaffID = resolved.StaffID
	processed.Mapping.StaffName = resolved.StaffName
	processed.Mapping.Mapped = true

	dayStart := time.Date(canonical.Timestamp.Year(), canonical.Timestamp.Month(), canonical.Timestamp.Day(), 0, 0, 0, 0, canonical.Timestamp.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	if s.opts.DedupEnabled {
		existing, err := s.FindFirst(ctx, *resolved.StaffID, dayStart, dayEnd, canonical.TransactionID)
		if err != nil {
			return record.ProcessedRecord{}, fmt.Errorf("duplicate lookup: %w", err)
		}
		if existing != nil {
			processed.Errors = append(processed.Errors, record.RecordError{
				Kind:    record.KindDuplicate,
				Message: fmt.Sprintf("record already exists for staff %s on %s with transaction %s", *resolved.StaffID, dayStart.Format("2006-01-02"), canonical.TransactionID),
			})
			processed.ExistingRecordID = &existing.ID
			return processed, nil
		}
	}

	if s.opts.ConflictsEnabled {
		manual, err := s.FindMany(ctx, record.FindFilter{
			StaffID:        *resolved.StaffID,
			From:           dayStart,
			To:             dayEnd,
			Origin:         record.OriginManual,
			UnresolvedOnly: true,
		})
		if err != nil {
			return record.ProcessedRecord{}, fmt.Errorf("conflict lookup: %w", err)
		}
		if len(manual) > 0 {
			processed.Errors = append(processed.Errors, record.RecordError{
				Kind:    record.KindConflict,
				Message: fmt.Sprintf("manual record exists for staff %s on %s and is not conflict-resolved", *resolved.StaffID, dayStart.Format("2006-01-02")),
			})
			processed.ExistingRecordID = &manual[0].ID
			processed.SuggestedResolution = record.ResolutionKeepExisting
			return processed, nil
		}
	}

	processed.Valid = true
	return processed, nil
}
