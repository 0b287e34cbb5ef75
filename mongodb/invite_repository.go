package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/migoVanDingo/ed-user-management/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrganizationInviteRepository implements domain.OrganizationInviteRepository
// on MongoDB. All status transitions are compare-and-set updates filtered on
// status == PENDING, so a terminal invite can never be transitioned again.
type OrganizationInviteRepository struct {
	invites *mongo.Collection
	members domain.MembershipRepository
}

func NewOrganizationInviteRepository(ctx context.Context, db *mongo.Database, members domain.MembershipRepository) (domain.OrganizationInviteRepository, error) {
	repo := &OrganizationInviteRepository{
		invites: db.Collection(OrganizationInvitesCollection),
		members: members,
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	if _, err := repo.invites.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Failed to create organization invite indexes (may already exist)")
	}

	return repo, nil
}

func (r *OrganizationInviteRepository) CreateInvite(ctx context.Context, invite *domain.OrganizationInvite) (*domain.OrganizationInvite, error) {
	if invite.ID == "" {
		invite.ID = NewObjectID()
	}
	if invite.Status == "" {
		invite.Status = domain.InviteStatusPending
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now().UTC()
	}

	if _, err := r.invites.InsertOne(ctx, invite); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicate
		}
		return nil, err
	}
	return invite, nil
}

func (r *OrganizationInviteRepository) GetInviteByTokenHash(ctx context.Context, tokenHash string) (*domain.OrganizationInvite, error) {
	var invite domain.OrganizationInvite
	err := r.invites.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&invite)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error finding invite by token hash")
		return nil, err
	}
	return &invite, nil
}

// MarkExpired transitions PENDING -> EXPIRED.
func (r *OrganizationInviteRepository) MarkExpired(ctx context.Context, inviteID string) error {
	return r.transition(ctx, inviteID, bson.M{
		"status": domain.InviteStatusExpired,
	})
}

// MarkAccepted transitions PENDING -> ACCEPTED and records the accepting
// user. Used when the membership already exists.
func (r *OrganizationInviteRepository) MarkAccepted(ctx context.Context, inviteID, userID string) error {
	now := time.Now().UTC()
	err := r.transition(ctx, inviteID, bson.M{
		"status":      domain.InviteStatusAccepted,
		"accepted_by": userID,
		"accepted_at": now,
	})
	if errors.Is(err, domain.ErrInviteNotPending) {
		// Safe to call twice: a repeat acceptance by the same user is a no-op
		// success, anything else stays an error.
		invite, lookupErr := r.getByID(ctx, inviteID)
		if lookupErr != nil {
			return lookupErr
		}
		if invite.Status == domain.InviteStatusAccepted && invite.AcceptedBy == userID {
			return nil
		}
		return err
	}
	return err
}

// AcceptWithMembership creates the membership and transitions the invite as
// one combined operation. CreateIfAbsent rides the unique
// (user_id, organization_id) index, which breaks the duplicate-membership
// race: of two concurrent redemptions only one insert succeeds, and the loser
// falls back to the idempotent MarkAccepted path.
func (r *OrganizationInviteRepository) AcceptWithMembership(ctx context.Context, invite *domain.OrganizationInvite, userID string) error {
	membership := &domain.OrganizationMembership{
		UserID:         userID,
		OrganizationID: invite.OrganizationID,
		Role:           invite.Role,
		Status:         domain.MembershipStatusActive,
	}
	if _, err := r.members.CreateIfAbsent(ctx, membership); err != nil {
		log.Error().Err(err).Str("inviteID", invite.ID).Msg("Error creating membership for invite")
		return err
	}
	return r.MarkAccepted(ctx, invite.ID, userID)
}

func (r *OrganizationInviteRepository) transition(ctx context.Context, inviteID string, set bson.M) error {
	result, err := r.invites.UpdateOne(ctx,
		bson.M{"_id": inviteID, "status": domain.InviteStatusPending},
		bson.M{"$set": set},
	)
	if err != nil {
		log.Error().Err(err).Str("inviteID", inviteID).Msg("Error transitioning invite status")
		return err
	}
	if result.MatchedCount == 0 {
		if _, lookupErr := r.getByID(ctx, inviteID); lookupErr != nil {
			return lookupErr
		}
		return domain.ErrInviteNotPending
	}
	return nil
}

func (r *OrganizationInviteRepository) getByID(ctx context.Context, inviteID string) (*domain.OrganizationInvite, error) {
	var invite domain.OrganizationInvite
	err := r.invites.FindOne(ctx, bson.M{"_id": inviteID}).Decode(&invite)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &invite, nil
}

var _ domain.OrganizationInviteRepository = (*OrganizationInviteRepository)(nil)
