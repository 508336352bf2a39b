package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/events"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

// ApprovalEngine moves requests through review. It never writes to the ledger
// and never retries: ledger writes belong to the caller (see MintDriver).
type ApprovalEngine struct {
	queue     PendingQueue
	registry  SchemaRegistry
	authority *Authority
	eventRepo EventStore
	auditRepo AuditStore
	publisher events.Publisher
	lease     time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewApprovalEngine(
	queue PendingQueue,
	registry SchemaRegistry,
	authority *Authority,
	eventRepo EventStore,
	auditRepo AuditStore,
	publisher events.Publisher,
	lease time.Duration,
	log *zap.Logger,
) *ApprovalEngine {
	return &ApprovalEngine{
		queue:     queue,
		registry:  registry,
		authority: authority,
		eventRepo: eventRepo,
		auditRepo: auditRepo,
		publisher: publisher,
		lease:     lease,
		now:       time.Now,
		log:       log,
	}
}

// authorize checks organizer authority, then loads the request and checks the
// event assignment. Nothing is mutated.
func (e *ApprovalEngine) authorize(ctx context.Context, requestID uuid.UUID, organizerWallet string) (string, *models.PendingAction, error) {
	org, err := e.authority.Organizer(ctx, organizerWallet)
	if err != nil {
		return "", nil, err
	}

	req, err := e.queue.GetByID(ctx, requestID)
	if err != nil {
		return "", nil, err
	}

	ev, err := e.eventRepo.GetByID(ctx, req.EventID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", nil, fmt.Errorf("load event %s: %w", req.EventID, err)
	}
	if err := e.authority.CanDecide(org, ev); err != nil {
		return "", nil, err
	}
	return org, req, nil
}

// Approve validates the decision, reserves the request for the caller and returns
// the ledger payload to write. The reservation (pending -> minting) succeeds for
// exactly one concurrent caller.
func (e *ApprovalEngine) Approve(ctx context.Context, requestID uuid.UUID, organizerWallet, actionKey string, bonusPoints int64) (*models.AwardPayload, error) {
	org, req, err := e.authorize(ctx, requestID, organizerWallet)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ActionStatusPending {
		return nil, apperr.StateConflict("request %s is %s", req.ID, req.Status)
	}

	schema, err := e.registry.Get(ctx)
	if err != nil {
		return nil, err
	}
	def, err := e.registry.Lookup(ctx, actionKey)
	if err != nil {
		return nil, err
	}
	if bonusPoints < 0 {
		return nil, apperr.Validation("bonus points must not be negative")
	}
	if bonusPoints > def.BonusCap {
		return nil, apperr.Validation("bonus %d exceeds cap %d for %s", bonusPoints, def.BonusCap, actionKey)
	}

	until := e.now().Add(e.lease).UTC()
	payload := &models.AwardPayload{
		Ref:             req.ID.String(),
		UserWallet:      req.SubmitterWallet,
		CommunityID:     schema.CommunityID,
		SchemaID:        schema.SchemaID,
		ActionID:        actionKey,
		BasePoints:      def.BasePoints,
		BonusPoints:     bonusPoints,
		TotalPoints:     def.BasePoints + bonusPoints,
		OrganizerWallet: org,
		ReservedUntil:   &until,
	}

	reserved, err := e.queue.Reserve(ctx, req.ID, org, until)
	if err != nil {
		return nil, err
	}

	e.recordTransition(ctx, reserved, req.Status, org, ActorOrganizer, map[string]any{
		"action_key":     actionKey,
		"bonus_points":   bonusPoints,
		"total_points":   payload.TotalPoints,
		"reserved_until": until,
	})

	e.log.Info("request reserved for minting",
		zap.String("request_id", req.ID.String()),
		zap.String("organizer", org),
		zap.String("action", actionKey),
		zap.Int64("total", payload.TotalPoints),
	)
	return payload, nil
}

// Finalize records a confirmed ledger write. The request must still be open,
// a reservation must be finalized by its holder, and the award must target this
// request and its submitter with points the schema allows.
func (e *ApprovalEngine) Finalize(ctx context.Context, requestID uuid.UUID, organizerWallet string, award models.ConfirmedAward) (*models.PendingAction, error) {
	org, req, err := e.authorize(ctx, requestID, organizerWallet)
	if err != nil {
		return nil, err
	}
	if !models.IsOpen(req.Status) {
		return nil, apperr.StateConflict("request %s is already %s", req.ID, req.Status)
	}
	if req.Status == models.ActionStatusMinting && (req.ReservedBy == nil || *req.ReservedBy != org) {
		return nil, apperr.StateConflict("request %s is reserved by another organizer", req.ID)
	}
	if err := e.checkAward(req, award); err != nil {
		return nil, err
	}
	if err := e.checkSchema(ctx, award.Payload); err != nil {
		return nil, err
	}
	return e.complete(ctx, req, award, org, ActorOrganizer)
}

// checkSchema validates an organizer-reported award against the action catalog.
func (e *ApprovalEngine) checkSchema(ctx context.Context, p models.AwardPayload) error {
	schema, err := e.registry.Get(ctx)
	if err != nil {
		return err
	}
	if p.SchemaID != "" && p.SchemaID != schema.SchemaID {
		return apperr.Validation("award schema %q does not match %q", p.SchemaID, schema.SchemaID)
	}
	def, err := e.registry.Lookup(ctx, p.ActionID)
	if err != nil {
		return err
	}
	if p.BasePoints != def.BasePoints {
		return apperr.Validation("base points %d do not match %d for %s", p.BasePoints, def.BasePoints, p.ActionID)
	}
	if p.BonusPoints > def.BonusCap {
		return apperr.Validation("bonus %d exceeds cap %d for %s", p.BonusPoints, def.BonusCap, p.ActionID)
	}
	return nil
}

func (e *ApprovalEngine) checkAward(req *models.PendingAction, award models.ConfirmedAward) error {
	p := award.Payload
	if award.TransactionRef == "" {
		return apperr.Validation("confirmed award needs a transaction reference")
	}
	if p.Ref != req.ID.String() {
		return apperr.Validation("award ref %q does not match request %s", p.Ref, req.ID)
	}
	if p.ActionID == "" {
		return apperr.Validation("award has no action")
	}
	if p.BasePoints < 0 || p.BonusPoints < 0 || p.TotalPoints != p.BasePoints+p.BonusPoints {
		return apperr.Validation("award points are inconsistent")
	}

	got, err := e.authority.NormalizeWallet(p.UserWallet)
	if err != nil {
		return err
	}
	want, err := e.authority.NormalizeWallet(req.SubmitterWallet)
	if err != nil {
		return err
	}
	if got != want {
		return apperr.Validation("award wallet %s does not match submitter", got)
	}
	return nil
}

func (e *ApprovalEngine) complete(ctx context.Context, req *models.PendingAction, award models.ConfirmedAward, actor, actorType string) (*models.PendingAction, error) {
	p := award.Payload
	approvedBy := p.OrganizerWallet
	if approvedBy == "" {
		approvedBy = actor
	}
	approved, err := e.queue.MarkApproved(ctx, req.ID, models.Approval{
		ActionKey:      p.ActionID,
		BasePoints:     p.BasePoints,
		BonusPoints:    p.BonusPoints,
		TotalPoints:    p.TotalPoints,
		ApprovedBy:     approvedBy,
		TransactionRef: award.TransactionRef,
	})
	if err != nil {
		return nil, err
	}

	e.recordTransition(ctx, approved, req.Status, actor, actorType, map[string]any{
		"action_key":      p.ActionID,
		"total_points":    p.TotalPoints,
		"transaction_ref": award.TransactionRef,
	})
	_ = e.publisher.Publish(ctx, events.StreamAward, events.Event{
		Type: events.EventAwardConfirmed,
		Payload: map[string]any{
			"request_id":      approved.ID.String(),
			"wallet":          approved.SubmitterWallet,
			"event_label":     approved.EventLabel,
			"action_key":      p.ActionID,
			"total_points":    p.TotalPoints,
			"transaction_ref": award.TransactionRef,
		},
	})

	e.log.Info("request approved",
		zap.String("request_id", approved.ID.String()),
		zap.String("actor", actor),
		zap.String("transaction_ref", award.TransactionRef),
	)
	return approved, nil
}

func (e *ApprovalEngine) Reject(ctx context.Context, requestID uuid.UUID, organizerWallet string) (*models.PendingAction, error) {
	org, req, err := e.authorize(ctx, requestID, organizerWallet)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ActionStatusPending {
		return nil, apperr.StateConflict("request %s is %s", req.ID, req.Status)
	}

	rejected, err := e.queue.MarkRejected(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	e.recordTransition(ctx, rejected, req.Status, org, ActorOrganizer, nil)
	return rejected, nil
}

// Abort hands a reservation back after a failed or abandoned ledger write.
// Only the organizer holding the reservation may abort it.
func (e *ApprovalEngine) Abort(ctx context.Context, requestID uuid.UUID, organizerWallet string) (*models.PendingAction, error) {
	org, req, err := e.authorize(ctx, requestID, organizerWallet)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ActionStatusMinting {
		return nil, apperr.StateConflict("request %s is %s, not minting", req.ID, req.Status)
	}
	if req.ReservedBy == nil || *req.ReservedBy != org {
		return nil, apperr.StateConflict("request %s is reserved by another organizer", req.ID)
	}

	released, err := e.queue.Release(ctx, req.ID, org)
	if err != nil {
		return nil, err
	}
	e.recordTransition(ctx, released, req.Status, org, ActorOrganizer, map[string]any{"reason": "aborted"})
	return released, nil
}

// ConfirmFromLedger approves an in-flight request whose award is already on the
// ledger. Used by the reconciler; the ledger record is the authority.
func (e *ApprovalEngine) ConfirmFromLedger(ctx context.Context, req *models.PendingAction, rec models.LedgerRecord) (*models.PendingAction, error) {
	award := awardFromRecord(rec)
	if err := e.checkAward(req, award); err != nil {
		return nil, err
	}
	return e.complete(ctx, req, award, rec.OrganizerWallet, ActorSystem)
}

func awardFromRecord(rec models.LedgerRecord) models.ConfirmedAward {
	return models.ConfirmedAward{
		Payload: models.AwardPayload{
			Ref:             rec.Ref,
			UserWallet:      rec.UserWallet,
			CommunityID:     rec.CommunityID,
			SchemaID:        rec.SchemaID,
			ActionID:        rec.ActionID,
			BasePoints:      rec.BasePoints,
			BonusPoints:     rec.BonusPoints,
			TotalPoints:     rec.TotalPoints,
			OrganizerWallet: rec.OrganizerWallet,
		},
		TransactionRef: rec.TransactionRef,
	}
}

// ExpireReservation returns a minting request to pending once its lease lapsed.
func (e *ApprovalEngine) ExpireReservation(ctx context.Context, req *models.PendingAction) (*models.PendingAction, error) {
	released, err := e.queue.ReleaseExpired(ctx, req.ID, e.now())
	if err != nil {
		return nil, err
	}
	holder := ""
	if req.ReservedBy != nil {
		holder = *req.ReservedBy
	}
	e.recordTransition(ctx, released, req.Status, "", ActorSystem, map[string]any{
		"reason":      "lease_expired",
		"reserved_by": holder,
	})
	return released, nil
}

// recordTransition writes the audit entry and publishes the status change.
// Failures of either are logged by the stores and otherwise ignored.
func (e *ApprovalEngine) recordTransition(ctx context.Context, a *models.PendingAction, oldStatus, actor, actorType string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["old_status"] = oldStatus
	meta["new_status"] = a.Status

	entry := models.AuditLog{
		ActorType:  actorType,
		Action:     fmt.Sprintf("request_status_%s_to_%s", oldStatus, a.Status),
		EntityType: entityRequest,
		EntityID:   &a.ID,
		Meta:       meta,
	}
	if actor != "" {
		entry.ActorWallet = &actor
	}
	_ = e.auditRepo.Log(ctx, entry)

	_ = e.publisher.Publish(ctx, events.StreamAward, events.Event{
		Type: events.EventRequestStatusChanged,
		Payload: map[string]any{
			"request_id":  a.ID.String(),
			"wallet":      a.SubmitterWallet,
			"event_id":    a.EventID,
			"event_label": a.EventLabel,
			"old_status":  oldStatus,
			"new_status":  a.Status,
		},
	})
}
