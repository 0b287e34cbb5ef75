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

// MembershipRepository implements domain.MembershipRepository on MongoDB.
type MembershipRepository struct {
	members *mongo.Collection
}

// NewMembershipRepository creates the repository and ensures the unique
// (user_id, organization_id) index that makes CreateIfAbsent atomic.
func NewMembershipRepository(ctx context.Context, db *mongo.Database) (domain.MembershipRepository, error) {
	repo := &MembershipRepository{members: db.Collection(OrganizationMembersCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "organization_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := repo.members.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Failed to create membership indexes (may already exist)")
	}

	return repo, nil
}

func (r *MembershipRepository) GetActiveMembership(ctx context.Context, userID, organizationID string) (*domain.OrganizationMembership, error) {
	var membership domain.OrganizationMembership
	err := r.members.FindOne(ctx, bson.M{
		"user_id":         userID,
		"organization_id": organizationID,
		"status":          domain.MembershipStatusActive,
	}).Decode(&membership)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error finding membership")
		return nil, err
	}
	return &membership, nil
}

// CreateIfAbsent inserts the membership unless one already exists for the
// (user, organization) pair, in which case the existing row is returned.
func (r *MembershipRepository) CreateIfAbsent(ctx context.Context, membership *domain.OrganizationMembership) (*domain.OrganizationMembership, error) {
	if membership.ID == "" {
		membership.ID = NewObjectID()
	}
	if membership.Status == "" {
		membership.Status = domain.MembershipStatusActive
	}
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = time.Now().UTC()
	}

	if _, err := r.members.InsertOne(ctx, membership); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return r.GetActiveMembership(ctx, membership.UserID, membership.OrganizationID)
		}
		return nil, err
	}
	return membership, nil
}

var _ domain.MembershipRepository = (*MembershipRepository)(nil)
