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

// RegistrationInviteRepository implements domain.RegistrationInviteRepository
// on MongoDB.
type RegistrationInviteRepository struct {
	invites *mongo.Collection
}

func NewRegistrationInviteRepository(ctx context.Context, db *mongo.Database) (domain.RegistrationInviteRepository, error) {
	repo := &RegistrationInviteRepository{invites: db.Collection(RegistrationInvitesCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
		},
	}
	if _, err := repo.invites.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Failed to create registration invite indexes (may already exist)")
	}

	return repo, nil
}

func (r *RegistrationInviteRepository) CreateInvite(ctx context.Context, invite *domain.RegistrationInvite) (*domain.RegistrationInvite, error) {
	if invite.ID == "" {
		invite.ID = NewObjectID()
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

func (r *RegistrationInviteRepository) GetInviteByToken(ctx context.Context, token string) (*domain.RegistrationInvite, error) {
	var invite domain.RegistrationInvite
	err := r.invites.FindOne(ctx, bson.M{"token": token}).Decode(&invite)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error finding registration invite by token")
		return nil, err
	}
	return &invite, nil
}

// Redeem flips the redeemed flag via compare-and-set. The first caller wins;
// every later caller gets domain.ErrInviteRedeemed, which is what prevents a
// second user row from the same token.
func (r *RegistrationInviteRepository) Redeem(ctx context.Context, inviteID string) error {
	now := time.Now().UTC()
	result, err := r.invites.UpdateOne(ctx,
		bson.M{"_id": inviteID, "redeemed": false},
		bson.M{"$set": bson.M{"redeemed": true, "redeemed_at": now}},
	)
	if err != nil {
		log.Error().Err(err).Str("inviteID", inviteID).Msg("Error redeeming registration invite")
		return err
	}
	if result.MatchedCount == 0 {
		var invite domain.RegistrationInvite
		lookupErr := r.invites.FindOne(ctx, bson.M{"_id": inviteID}).Decode(&invite)
		if lookupErr != nil {
			if errors.Is(lookupErr, mongo.ErrNoDocuments) {
				return domain.ErrNotFound
			}
			return lookupErr
		}
		return domain.ErrInviteRedeemed
	}
	return nil
}

var _ domain.RegistrationInviteRepository = (*RegistrationInviteRepository)(nil)
