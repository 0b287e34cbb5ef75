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

// SessionRepository implements domain.SessionRepository on MongoDB.
type SessionRepository struct {
	sessions *mongo.Collection
}

// NewSessionRepository creates the repository and ensures its indexes. The
// TTL index on expires_at is the store-side compaction policy; read-time
// invalidation in the session manager does not depend on it.
func NewSessionRepository(ctx context.Context, db *mongo.Database) (domain.SessionRepository, error) {
	repo := &SessionRepository{sessions: db.Collection(UserSessionsCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "refresh_token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}}, // not unique, many sessions per user
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := repo.sessions.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for user_sessions collection (might already exist)")
	}

	return repo, nil
}

// CreateSession always inserts a new row; a user may hold multiple concurrent
// sessions.
func (r *SessionRepository) CreateSession(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	if session.ID == "" {
		session.ID = NewObjectID()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = now
	}

	if _, err := r.sessions.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicate
		}
		log.Error().Err(err).Msg("Error storing session")
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) findOne(ctx context.Context, filter bson.M) (*domain.Session, error) {
	var session domain.Session
	err := r.sessions.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error finding session")
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *SessionRepository) GetSessionByRefreshTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"refresh_token_hash": tokenHash})
}

// RevokeSession sets revoked_at. Revocation is permanent: the update never
// clears an existing revoked_at.
func (r *SessionRepository) RevokeSession(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := r.sessions.UpdateOne(ctx,
		bson.M{"_id": id, "revoked_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"revoked_at": now}},
	)
	if err != nil {
		log.Error().Err(err).Str("sessionID", id).Msg("Error revoking session")
		return err
	}
	if result.MatchedCount == 0 {
		// Already revoked or unknown: check which.
		if _, lookupErr := r.GetSessionByID(ctx, id); lookupErr != nil {
			return lookupErr
		}
	}
	return nil
}

// TouchLastActive updates last_active_at. Best effort.
func (r *SessionRepository) TouchLastActive(ctx context.Context, id string) error {
	_, err := r.sessions.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_active_at": time.Now().UTC()}},
	)
	return err
}

func (r *SessionRepository) ListSessionsByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	cursor, err := r.sessions.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*domain.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
