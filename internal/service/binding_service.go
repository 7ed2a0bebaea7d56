package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/config"
	"github.com/spec-kit/official-relay/internal/domain"
	"github.com/spec-kit/official-relay/internal/events"
	"github.com/spec-kit/official-relay/internal/observability"
	"github.com/spec-kit/official-relay/internal/official"
	"github.com/spec-kit/official-relay/internal/repository"
	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

const bindingCodeLength = 12

// BindingOutcome names what happened to a callback event.
type BindingOutcome string

const (
	OutcomeIgnored       BindingOutcome = "ignored"
	OutcomeMalformed     BindingOutcome = "malformed"
	OutcomeDisabled      BindingOutcome = "disabled"
	OutcomeDuplicate     BindingOutcome = "duplicate"
	OutcomeNoPendingCode BindingOutcome = "no_pending_code"
	OutcomeBound         BindingOutcome = "bound"
	OutcomeFailed        BindingOutcome = "failed"
)

// BindingResult reports the outcome of one callback. Err is set for
// malformed, disabled and failed outcomes.
type BindingResult struct {
	Outcome       BindingOutcome
	Code          string
	OwnerIdentity string
	Err           error
}

// IssuedBinding is a fresh binding code together with the QR code that carries it.
type IssuedBinding struct {
	Code      string
	SceneStr  string
	ExpiresAt time.Time
	QRCode    *QRCode
}

// BindingService links a scanned binding code to a staff record.
type BindingService struct {
	store      repository.BindingStore
	storeErr   error
	official   *OfficialService
	dispatcher events.Dispatcher
	dedup      *gocache.Cache
	dedupTTL   time.Duration
	now        func() time.Time
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// BindingDependencies encapsulates collaborators for the binding workflow.
// A nil Store disables the workflow and StoreErr explains why.
type BindingDependencies struct {
	Store      repository.BindingStore
	StoreErr   error
	Official   *OfficialService
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// NewBindingService constructs the service.
func NewBindingService(cfg config.OfficialConfig, deps BindingDependencies, logger *zap.Logger) *BindingService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	storeErr := deps.StoreErr
	if deps.Store == nil && storeErr == nil {
		storeErr = apperrors.NewConfigError("binding store", "STORE_ENV_ID")
	}

	svc := &BindingService{
		store:      deps.Store,
		storeErr:   storeErr,
		official:   deps.Official,
		dispatcher: deps.Dispatcher,
		dedupTTL:   cfg.DedupWindow(),
		now:        deps.Now,
		logger:     logger,
		metrics:    deps.Metrics,
	}
	if svc.dedupTTL > 0 {
		svc.dedup = gocache.New(svc.dedupTTL, 2*svc.dedupTTL)
	}
	return svc
}

// Enabled reports whether a store backs the workflow.
func (s *BindingService) Enabled() bool {
	return s.store != nil
}

// HandleCallback parses a raw callback body and processes it.
func (s *BindingService) HandleCallback(ctx context.Context, payload []byte) BindingResult {
	event, err := official.ParseCallbackEvent(payload)
	if err != nil {
		return s.finish(event, BindingResult{Outcome: OutcomeMalformed, Err: err})
	}
	return s.Handle(ctx, event)
}

// Handle processes one parsed callback event. It never panics and never
// returns an error to the caller; failures are reported in the result.
func (s *BindingService) Handle(ctx context.Context, event domain.CallbackEvent) (result BindingResult) {
	var key string
	defer func() {
		if r := recover(); r != nil {
			result = BindingResult{Outcome: OutcomeFailed, Err: fmt.Errorf("binding panic: %v", r)}
		}
		// A failed delivery is forgotten so the platform's retry is processed.
		if result.Outcome == OutcomeFailed {
			s.forget(key)
		}
		result = s.finish(event, result)
	}()

	code, ok := event.BindingCode()
	if !ok {
		return BindingResult{Outcome: OutcomeIgnored}
	}
	if s.store == nil {
		return BindingResult{Outcome: OutcomeDisabled, Code: code, Err: s.storeErr}
	}
	if event.SourceIdentity == "" {
		return BindingResult{Outcome: OutcomeIgnored, Code: code}
	}

	key = dedupKey(event)
	if !s.remember(key) {
		return BindingResult{Outcome: OutcomeDuplicate, Code: code}
	}

	return s.bind(ctx, code, event.SourceIdentity)
}

func (s *BindingService) bind(ctx context.Context, code, openID string) BindingResult {
	row, err := s.store.BindingCodes().GetPendingByCode(ctx, code)
	if repository.IsNotFound(err) {
		return BindingResult{Outcome: OutcomeNoPendingCode, Code: code}
	}
	if err != nil {
		return BindingResult{Outcome: OutcomeFailed, Code: code, Err: err}
	}
	if row.OwnerIdentity == "" {
		return BindingResult{Outcome: OutcomeNoPendingCode, Code: code}
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(codes repository.BindingCodeRepository, staff repository.StaffRepository) error {
		if err := codes.MarkUsed(ctx, row.ID, openID, now); err != nil {
			return err
		}
		return staff.LinkOfficialIdentity(ctx, row.OwnerIdentity, openID, now)
	})
	switch {
	case errors.Is(err, repository.ErrCodeConsumed):
		return BindingResult{Outcome: OutcomeNoPendingCode, Code: code, OwnerIdentity: row.OwnerIdentity}
	case err != nil:
		return BindingResult{Outcome: OutcomeFailed, Code: code, OwnerIdentity: row.OwnerIdentity, Err: err}
	}

	s.publishBound(ctx, row, openID, now)
	return BindingResult{Outcome: OutcomeBound, Code: code, OwnerIdentity: row.OwnerIdentity}
}

func (s *BindingService) publishBound(ctx context.Context, row *domain.BindingCode, openID string, at time.Time) {
	if s.dispatcher == nil {
		return
	}
	payload := events.StaffBoundPayload{
		OwnerIdentity:  row.OwnerIdentity,
		OfficialOpenID: openID,
		Code:           row.Code,
	}
	if staff, err := s.store.Staff().GetByOwnerIdentity(ctx, row.OwnerIdentity); err == nil {
		payload.StaffID = staff.ID
	}
	if err := s.dispatcher.Publish(ctx, events.NewEvent(events.EventStaffBound, at, payload)); err != nil {
		s.logger.Warn("staff_bound handlers failed", zap.String("owner_identity", row.OwnerIdentity), zap.Error(err))
	}
}

func (s *BindingService) finish(event domain.CallbackEvent, result BindingResult) BindingResult {
	s.metrics.RecordCallback(string(result.Outcome))

	fields := []zap.Field{
		zap.String("outcome", string(result.Outcome)),
		zap.String("event", string(event.Type)),
		zap.String("code", result.Code),
	}
	switch result.Outcome {
	case OutcomeBound:
		s.logger.Info("staff bound to official account", append(fields, zap.String("owner_identity", result.OwnerIdentity))...)
	case OutcomeFailed, OutcomeMalformed, OutcomeDisabled:
		s.logger.Warn("callback not processed", append(fields, zap.Error(result.Err))...)
	case OutcomeIgnored:
	default:
		s.logger.Debug("callback skipped", fields...)
	}
	return result
}

// remember returns false when the same delivery was seen within the window.
func (s *BindingService) remember(key string) bool {
	if s.dedup == nil || key == "" {
		return true
	}
	return s.dedup.Add(key, struct{}{}, gocache.DefaultExpiration) == nil
}

func (s *BindingService) forget(key string) {
	if s.dedup == nil || key == "" {
		return
	}
	s.dedup.Delete(key)
}

func dedupKey(event domain.CallbackEvent) string {
	if event.CreateTime.IsZero() {
		return ""
	}
	return strings.Join([]string{
		event.SourceIdentity,
		strconv.FormatInt(event.CreateTime.Unix(), 10),
		string(event.Type),
		event.EventKey,
	}, "|")
}

// IssueBindingCode creates a pending code for an existing staff record and a QR code carrying it.
func (s *BindingService) IssueBindingCode(ctx context.Context, ownerIdentity string, expireSeconds int) (*IssuedBinding, error) {
	if s.store == nil {
		return nil, s.storeErr
	}
	ownerIdentity = strings.TrimSpace(ownerIdentity)
	if ownerIdentity == "" {
		return nil, apperrors.NewValidationError("owner_identity required", nil)
	}
	if _, err := s.store.Staff().GetByOwnerIdentity(ctx, ownerIdentity); err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("staff", map[string]any{"owner_identity": ownerIdentity})
		}
		return nil, err
	}

	// The QR code comes first so a platform failure leaves no pending code behind.
	code := newBindingCode()
	sceneStr := domain.BindingSceneStr(code)
	qr, err := s.official.CreateQRCode(ctx, sceneStr, s.official.NormalizeExpire(expireSeconds))
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(time.Duration(qr.ExpireSeconds) * time.Second)
	row := &domain.BindingCode{
		Code:          code,
		OwnerIdentity: ownerIdentity,
		ExpiresAt:     &expiresAt,
	}
	if err := s.store.BindingCodes().Create(ctx, row); err != nil {
		return nil, err
	}

	return &IssuedBinding{
		Code:      code,
		SceneStr:  sceneStr,
		ExpiresAt: expiresAt,
		QRCode:    qr,
	}, nil
}

// BindingStatus returns the staff record for ownerIdentity.
func (s *BindingService) BindingStatus(ctx context.Context, ownerIdentity string) (*domain.StaffMember, error) {
	if s.store == nil {
		return nil, s.storeErr
	}
	ownerIdentity = strings.TrimSpace(ownerIdentity)
	if ownerIdentity == "" {
		return nil, apperrors.NewValidationError("owner_identity required", nil)
	}
	staff, err := s.store.Staff().GetByOwnerIdentity(ctx, ownerIdentity)
	if repository.IsNotFound(err) {
		return nil, apperrors.NewNotFound("staff", map[string]any{"owner_identity": ownerIdentity})
	}
	return staff, err
}

func newBindingCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:bindingCodeLength]
}
