// Package revisions implements the human review workflow over canonical character records.
package revisions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/svcerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	opServiceNew       = "revisions.service.new"
	opSubmit           = "revisions.submit"
	opApprove          = "revisions.approve"
	opReject           = "revisions.reject"
	opAmend            = "revisions.amend"
	opListPending      = "revisions.list_pending"
	opHistory          = "revisions.history"
	opRecentlyApproved = "revisions.recently_approved"
	opBaseline         = "revisions.baseline"
	opGet              = "revisions.get"

	queryID             = "id = ?"
	queryPendingID      = "id = ? AND status = ?"
	queryStatus         = "status = ?"
	queryVariantOf      = "variant_of = ? AND hanzi <> ?"
	queryApprovedTarget = "variant_of = ? AND hanzi <> ? AND status = ?"
	queryUserID         = "user_id = ?"
	queryAnonymousID    = "anonymous_session_id = ?"
	queryPrecedingRev   = "hanzi = ? AND id <> ? AND (created_at < ? OR (created_at = ? AND id < ?))"
	orderOldestCreated  = "created_at ASC, id ASC"
	orderLatestReviewed = "reviewed_at DESC, id DESC"

	defaultPageLimit = 50
	maxPageLimit     = 200
)

var (
	noOpLogger = zap.NewNop()
	tracer     = otel.Tracer("github.com/peterolson/dong-chinese-v2-sub000/internal/revisions")
)

// ServiceConfig describes the dependencies of the revision service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service submits, amends and reviews revisions.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, svcerr.New(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, svcerr.New(opServiceNew, reasonMissingIDProvider, errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SubmitRequest is a proposed edit of one character.
type SubmitRequest struct {
	Character   string
	Proposal    characters.Proposal
	Editor      EditorIdentity
	Comment     string
	AutoApprove bool
}

// SubmitResult identifies the inserted revision.
type SubmitResult struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Submit diffs the proposal against the character's effective record and stores it as a
// pending revision, or as approved when AutoApprove is set for an authenticated editor.
func (s *Service) Submit(ctx context.Context, request SubmitRequest) (SubmitResult, error) {
	ctx, span := tracer.Start(ctx, opSubmit, trace.WithAttributes(attribute.String("character", request.Character)))
	defer span.End()

	if request.Editor.empty() {
		return SubmitResult{}, s.fail(span, opSubmit, reasonMissingIdentity, ErrMissingIdentity)
	}

	var result SubmitResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, found, err := effectiveRecord(tx, request.Character)
		if err != nil {
			return s.fail(span, opSubmit, reasonQueryFailed, err, zap.String("character", request.Character))
		}
		if !found {
			return s.fail(span, opSubmit, reasonCharacterNotFound, ErrCharacterNotFound, zap.String("character", request.Character))
		}

		if err := validateProposedVariant(tx, request.Character, request.Proposal); err != nil {
			return s.failVariant(span, opSubmit, request.Character, err)
		}

		currentFields := current.EditableFields()
		changed := request.Proposal.ChangedFields(currentFields)
		if len(changed) == 0 {
			return s.fail(span, opSubmit, reasonNoFieldsChanged, ErrNoFieldsChanged, zap.String("character", request.Character))
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return s.fail(span, opSubmit, reasonIDFailed, err)
		}
		now := s.clock().UTC()
		revision := Revision{
			ID:                 id,
			Character:          request.Character,
			Fields:             request.Proposal.Snapshot(currentFields),
			ChangedFields:      changed,
			Status:             StatusPending,
			UserID:             nullable(request.Editor.UserID),
			AnonymousSessionID: nullable(request.Editor.AnonymousSessionID),
			Comment:            strings.TrimSpace(request.Comment),
			CreatedAt:          now,
		}
		if request.AutoApprove && request.Editor.Authenticated() {
			revision.Status = StatusApproved
			revision.Reviewer = nullable(request.Editor.UserID)
			revision.ReviewedAt = &now
		}
		if err := tx.Create(&revision).Error; err != nil {
			return s.fail(span, opSubmit, reasonInsertFailed, err, zap.String("character", request.Character))
		}
		result = SubmitResult{ID: revision.ID, Status: revision.Status}
		return nil
	})
	if txErr != nil {
		return SubmitResult{}, txErr
	}
	span.SetAttributes(attribute.String("revision_id", result.ID), attribute.String("status", string(result.Status)))
	return result, nil
}

// Approve moves a pending revision to approved and refreshes every field it did not change
// from the character's current effective record. It returns false when the revision was
// already actioned. A variantOf that would no longer keep the variant graph a depth-one
// forest fails with ErrInvalidVariant and the revision stays pending.
func (s *Service) Approve(ctx context.Context, revisionID, reviewerID string) (bool, error) {
	ctx, span := tracer.Start(ctx, opApprove, trace.WithAttributes(attribute.String("revision_id", revisionID)))
	defer span.End()

	if strings.TrimSpace(reviewerID) == "" {
		return false, s.fail(span, opApprove, reasonMissingIdentity, ErrMissingIdentity)
	}

	approved := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		revision, err := s.loadRevision(tx, span, opApprove, revisionID)
		if err != nil {
			return err
		}
		if revision.Status != StatusPending {
			return nil
		}

		current, _, err := effectiveRecord(tx, revision.Character)
		if err != nil {
			return s.fail(span, opApprove, reasonQueryFailed, err, zap.String("revision_id", revisionID))
		}
		merged := characters.MergeOnApprove(revision.Fields, revision.ChangedFields, current.EditableFields())
		if err := validateApprovedVariant(tx, revision, merged); err != nil {
			return s.failVariant(span, opApprove, revision.Character, err)
		}

		now := s.clock().UTC()
		updates := fieldColumns(merged)
		updates["status"] = string(StatusApproved)
		updates["reviewer"] = reviewerID
		updates["reviewed_at"] = now
		approved, err = transitionPending(tx, revisionID, updates)
		if err != nil {
			return s.fail(span, opApprove, reasonUpdateFailed, err, zap.String("revision_id", revisionID))
		}
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	span.SetAttributes(attribute.Bool("actioned", approved))
	return approved, nil
}

// Reject moves a pending revision to rejected with the reviewer's comment. It returns
// false when the revision was already actioned.
func (s *Service) Reject(ctx context.Context, revisionID, reviewerID, comment string) (bool, error) {
	ctx, span := tracer.Start(ctx, opReject, trace.WithAttributes(attribute.String("revision_id", revisionID)))
	defer span.End()

	if strings.TrimSpace(reviewerID) == "" {
		return false, s.fail(span, opReject, reasonMissingIdentity, ErrMissingIdentity)
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return false, s.fail(span, opReject, reasonMissingComment, ErrMissingComment)
	}

	rejected := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		revision, err := s.loadRevision(tx, span, opReject, revisionID)
		if err != nil {
			return err
		}
		if revision.Status != StatusPending {
			return nil
		}
		rejected, err = transitionPending(tx, revisionID, map[string]any{
			"status":         string(StatusRejected),
			"reviewer":       reviewerID,
			"reviewed_at":    s.clock().UTC(),
			"review_comment": comment,
		})
		if err != nil {
			return s.fail(span, opReject, reasonUpdateFailed, err, zap.String("revision_id", revisionID))
		}
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	span.SetAttributes(attribute.Bool("actioned", rejected))
	return rejected, nil
}

// AmendRequest replaces the proposal of a pending revision.
type AmendRequest struct {
	RevisionID string
	Proposal   characters.Proposal
	Editor     EditorIdentity
	Comment    string
}

// Amend rewrites a pending revision in place with a new proposal, comment and creation
// time. It returns nil without error when the revision was actioned in the meantime;
// callers then submit a new revision instead.
func (s *Service) Amend(ctx context.Context, request AmendRequest) (*Revision, error) {
	ctx, span := tracer.Start(ctx, opAmend, trace.WithAttributes(attribute.String("revision_id", request.RevisionID)))
	defer span.End()

	if request.Editor.empty() {
		return nil, s.fail(span, opAmend, reasonMissingIdentity, ErrMissingIdentity)
	}

	var amended *Revision
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		revision, err := s.loadRevision(tx, span, opAmend, request.RevisionID)
		if err != nil {
			return err
		}
		if revision.Status != StatusPending {
			return nil
		}
		if !request.Editor.owns(revision) {
			return s.fail(span, opAmend, reasonNotEditor, ErrNotRevisionEditor, zap.String("revision_id", request.RevisionID))
		}

		current, found, err := effectiveRecord(tx, revision.Character)
		if err != nil {
			return s.fail(span, opAmend, reasonQueryFailed, err, zap.String("revision_id", request.RevisionID))
		}
		if !found {
			return s.fail(span, opAmend, reasonCharacterNotFound, ErrCharacterNotFound, zap.String("character", revision.Character))
		}
		if err := validateProposedVariant(tx, revision.Character, request.Proposal); err != nil {
			return s.failVariant(span, opAmend, revision.Character, err)
		}
		currentFields := current.EditableFields()
		changed := request.Proposal.ChangedFields(currentFields)
		if len(changed) == 0 {
			return s.fail(span, opAmend, reasonNoFieldsChanged, ErrNoFieldsChanged, zap.String("revision_id", request.RevisionID))
		}

		snapshot := request.Proposal.Snapshot(currentFields)
		updates := fieldColumns(snapshot)
		updates["changed_fields"] = datatypes.JSONSlice[characters.FieldName](changed)
		updates["comment"] = strings.TrimSpace(request.Comment)
		updates["created_at"] = s.clock().UTC()
		ok, err := transitionPending(tx, request.RevisionID, updates)
		if err != nil {
			return s.fail(span, opAmend, reasonUpdateFailed, err, zap.String("revision_id", request.RevisionID))
		}
		if !ok {
			return nil
		}
		var reloaded Revision
		if err := tx.Where(queryID, request.RevisionID).Take(&reloaded).Error; err != nil {
			return s.fail(span, opAmend, reasonQueryFailed, err, zap.String("revision_id", request.RevisionID))
		}
		amended = &reloaded
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	span.SetAttributes(attribute.Bool("actioned", amended != nil))
	return amended, nil
}

// PendingFilter narrows ListPending. Empty fields do not filter.
type PendingFilter struct {
	Character          string
	UserID             string
	AnonymousSessionID string
}

// Page bounds a paginated query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListPending returns pending revisions, oldest first.
func (s *Service) ListPending(ctx context.Context, filter PendingFilter) ([]Revision, error) {
	query := s.db.WithContext(ctx).Where(queryStatus, StatusPending)
	if filter.Character != "" {
		query = query.Where(queryHanzi, filter.Character)
	}
	if filter.UserID != "" {
		query = query.Where(queryUserID, filter.UserID)
	}
	if filter.AnonymousSessionID != "" {
		query = query.Where(queryAnonymousID, filter.AnonymousSessionID)
	}
	revisions := make([]Revision, 0)
	if err := query.Order(orderOldestCreated).Find(&revisions).Error; err != nil {
		s.logError(opListPending, reasonQueryFailed, err)
		return nil, svcerr.New(opListPending, reasonQueryFailed, err)
	}
	return revisions, nil
}

// History returns every revision of a character, newest first.
func (s *Service) History(ctx context.Context, character string, page Page) ([]Revision, error) {
	page = page.normalized()
	revisions := make([]Revision, 0)
	err := s.db.WithContext(ctx).
		Where(queryHanzi, character).
		Order(orderLatestCreated).
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&revisions).Error
	if err != nil {
		s.logError(opHistory, reasonQueryFailed, err, zap.String("character", character))
		return nil, svcerr.New(opHistory, reasonQueryFailed, err)
	}
	return revisions, nil
}

// RecentlyApproved returns approved revisions across all characters, most recently reviewed first.
func (s *Service) RecentlyApproved(ctx context.Context, page Page) ([]Revision, error) {
	page = page.normalized()
	revisions := make([]Revision, 0)
	err := s.db.WithContext(ctx).
		Where(queryStatus, StatusApproved).
		Order(orderLatestReviewed).
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&revisions).Error
	if err != nil {
		s.logError(opRecentlyApproved, reasonQueryFailed, err)
		return nil, svcerr.New(opRecentlyApproved, reasonQueryFailed, err)
	}
	return revisions, nil
}

// Get returns one revision by id.
func (s *Service) Get(ctx context.Context, revisionID string) (Revision, error) {
	var revision Revision
	err := s.db.WithContext(ctx).Where(queryID, revisionID).Take(&revision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Revision{}, svcerr.New(opGet, reasonRevisionNotFound, ErrRevisionNotFound)
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err, zap.String("revision_id", revisionID))
		return Revision{}, svcerr.New(opGet, reasonQueryFailed, err)
	}
	return revision, nil
}

// Baseline is the "before" state a revision is displayed against.
type Baseline struct {
	// RevisionID is the preceding revision, or nil when the canonical record is the baseline.
	RevisionID *string           `json:"revisionId"`
	Fields     characters.Fields `json:"fields"`
}

// Baseline reconstructs the state a revision was made against: the immediately preceding
// revision of the same character, whatever its status, or the canonical record.
func (s *Service) Baseline(ctx context.Context, revisionID string) (Baseline, error) {
	db := s.db.WithContext(ctx)
	var revision Revision
	err := db.Where(queryID, revisionID).Take(&revision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Baseline{}, svcerr.New(opBaseline, reasonRevisionNotFound, ErrRevisionNotFound)
	}
	if err != nil {
		s.logError(opBaseline, reasonQueryFailed, err, zap.String("revision_id", revisionID))
		return Baseline{}, svcerr.New(opBaseline, reasonQueryFailed, err)
	}

	var previous Revision
	err = db.Where(queryPrecedingRev, revision.Character, revision.ID, revision.CreatedAt, revision.CreatedAt, revision.ID).
		Order(orderLatestCreated).
		Take(&previous).Error
	if err == nil {
		previousID := previous.ID
		return Baseline{RevisionID: &previousID, Fields: previous.Fields}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opBaseline, reasonQueryFailed, err, zap.String("revision_id", revisionID))
		return Baseline{}, svcerr.New(opBaseline, reasonQueryFailed, err)
	}

	var canonical characters.Character
	err = db.Where(queryHanzi, revision.Character).Take(&canonical).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Baseline{}, nil
	}
	if err != nil {
		s.logError(opBaseline, reasonQueryFailed, err, zap.String("revision_id", revisionID))
		return Baseline{}, svcerr.New(opBaseline, reasonQueryFailed, err)
	}
	return Baseline{Fields: canonical.EditableFields()}, nil
}

func (s *Service) loadRevision(tx *gorm.DB, span trace.Span, operation, revisionID string) (Revision, error) {
	var revision Revision
	err := tx.Where(queryID, revisionID).Take(&revision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Revision{}, s.fail(span, operation, reasonRevisionNotFound, ErrRevisionNotFound, zap.String("revision_id", revisionID))
	}
	if err != nil {
		return Revision{}, s.fail(span, operation, reasonQueryFailed, err, zap.String("revision_id", revisionID))
	}
	return revision, nil
}

// transitionPending applies updates only while the revision is still pending.
// approve, reject and amend all go through it.
func transitionPending(tx *gorm.DB, revisionID string, updates map[string]any) (bool, error) {
	result := tx.Model(&Revision{}).Where(queryPendingID, revisionID, StatusPending).Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func fieldColumns(fields characters.Fields) map[string]any {
	return map[string]any{
		"gloss":                columnValue(fields.Gloss),
		"hint":                 columnValue(fields.Hint),
		"original_meaning":     columnValue(fields.OriginalMeaning),
		"pinyin":               fields.Pinyin,
		"components":           fields.Components,
		"variant_of":           columnValue(fields.VariantOf),
		"simplified_variants":  fields.SimplifiedVariants,
		"traditional_variants": fields.TraditionalVariants,
		"is_verified":          columnValue(fields.IsVerified),
	}
}

func columnValue[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}

func (s *Service) fail(span trace.Span, operation, reason string, err error, fields ...zap.Field) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.logError(operation, reason, err, fields...)
	return svcerr.New(operation, reason, err)
}

func (s *Service) failVariant(span trace.Span, operation, character string, err error) error {
	if errors.Is(err, ErrInvalidVariant) {
		return s.fail(span, operation, VariantReason(err), err, zap.String("character", character))
	}
	return s.fail(span, operation, reasonQueryFailed, err, zap.String("character", character))
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("revisions service error", attrs...)
}
