package mongo

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/roleauth"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection  = "users"
	resetsCollection = "password_reset_tokens"
)

// Store implements roleauth.IdentityStore and roleauth.ResetTokenStore.
type Store struct {
	db     *mongo.Database
	users  *mongo.Collection
	resets *mongo.Collection
	now    func() time.Time
}

var (
	_ roleauth.IdentityStore   = (*Store)(nil)
	_ roleauth.ResetTokenStore = (*Store)(nil)
)

type mongoUser struct {
	ID             string  `bson:"_id"`
	Email          string  `bson:"email"`
	Role           *string `bson:"role"`
	CredentialHash string  `bson:"credential_hash"`
	CreatedAt      int64   `bson:"created_at"`
	UpdatedAt      int64   `bson:"updated_at"`
}

type mongoReset struct {
	ID         string    `bson:"_id"`
	IdentityID string    `bson:"identity_id"`
	Commitment []byte    `bson:"token_commitment"`
	ExpiresAt  time.Time `bson:"expires_at"`
	Consumed   bool      `bson:"consumed"`
	CreatedAt  time.Time `bson:"created_at"`
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:     db,
		users:  db.Collection(usersCollection),
		resets: db.Collection(resetsCollection),
		now:    time.Now,
	}
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return unavailable(err)
	}
	return nil
}

// EnsureIndexes creates the unique email index and a TTL index that lets
// MongoDB drop reset records a day after they expire.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return unavailable(err)
	}
	_, err = s.resets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32((24 * time.Hour).Seconds())),
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, email, credentialHash string) (roleauth.UserRecord, error) {
	email = roleauth.NormalizeEmail(email)
	if email == "" {
		return roleauth.UserRecord{}, errors.New("email is required")
	}

	now := s.now().UTC().Unix()
	doc := mongoUser{
		ID:             uuid.NewString(),
		Email:          email,
		CredentialHash: credentialHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return roleauth.UserRecord{}, roleauth.ErrDuplicateEmail
		}
		return roleauth.UserRecord{}, unavailable(err)
	}
	return roleauth.UserRecord{UserID: doc.ID, Email: doc.Email, CredentialHash: credentialHash}, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (roleauth.UserRecord, error) {
	return s.findUser(ctx, bson.M{"email": roleauth.NormalizeEmail(email)})
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (roleauth.UserRecord, error) {
	return s.findUser(ctx, bson.M{"_id": userID})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (roleauth.UserRecord, error) {
	var mu mongoUser
	if err := s.users.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return roleauth.UserRecord{}, roleauth.ErrUserNotFound
		}
		return roleauth.UserRecord{}, unavailable(err)
	}
	return toUserRecord(mu)
}

func (s *Store) CompareAndSetRole(ctx context.Context, userID string, from, to roleauth.Role) error {
	if !to.Assigned() {
		return roleauth.ErrInvalidRole
	}
	if roleauth.IsDowngrade(from, to) {
		return roleauth.ErrRoleConflict
	}

	res, err := s.users.UpdateOne(ctx, roleFilter(userID, from, to), bson.M{
		"$set": bson.M{
			"role":       to.String(),
			"updated_at": s.now().UTC().Unix(),
		},
	})
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return roleauth.ErrUserNotFound
	}
	return roleauth.ErrRoleConflict
}

func (s *Store) SetCredential(ctx context.Context, userID, credentialHash string) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{
			"credential_hash": credentialHash,
			"updated_at":      s.now().UTC().Unix(),
		},
	})
	if err != nil {
		return unavailable(err)
	}
	if res.MatchedCount == 0 {
		return roleauth.ErrUserNotFound
	}
	return nil
}

func (s *Store) SaveResetToken(ctx context.Context, record roleauth.ResetTokenRecord) error {
	_, err := s.resets.InsertOne(ctx, mongoReset{
		ID:         record.ResetID,
		IdentityID: record.UserID,
		Commitment: append([]byte(nil), record.Commitment[:]...),
		ExpiresAt:  record.ExpiresAt.UTC(),
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ConsumeResetToken compares the commitment in constant time, then claims the
// record with a conditional FindOneAndUpdate. Two concurrent callers can both
// pass the comparison; only one matches consumed:false.
func (s *Store) ConsumeResetToken(ctx context.Context, resetID string, commitment [32]byte, now time.Time) (roleauth.ResetTokenRecord, error) {
	var pending mongoReset
	err := s.resets.FindOne(ctx, bson.M{"_id": resetID}).Decode(&pending)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return roleauth.ResetTokenRecord{}, roleauth.ErrResetTokenNotFound
	}
	if err != nil {
		return roleauth.ResetTokenRecord{}, unavailable(err)
	}
	if subtle.ConstantTimeCompare(pending.Commitment, commitment[:]) != 1 {
		return roleauth.ResetTokenRecord{}, roleauth.ErrResetTokenNotFound
	}

	var claimed mongoReset
	err = s.resets.FindOneAndUpdate(ctx,
		claimFilter(resetID, now),
		bson.M{"$set": bson.M{"consumed": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&claimed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return roleauth.ResetTokenRecord{}, roleauth.ErrResetTokenNotFound
	}
	if err != nil {
		return roleauth.ResetTokenRecord{}, unavailable(err)
	}

	record := roleauth.ResetTokenRecord{
		ResetID:   claimed.ID,
		UserID:    claimed.IdentityID,
		ExpiresAt: claimed.ExpiresAt,
		Consumed:  claimed.Consumed,
	}
	copy(record.Commitment[:], claimed.Commitment)
	return record, nil
}

// roleFilter matches the user only while its role equals from and it is not
// an ORGANIZER being moved elsewhere.
func roleFilter(userID string, from, to roleauth.Role) bson.M {
	filter := bson.M{"_id": userID}
	if from.Assigned() {
		filter["role"] = from.String()
	} else {
		// Matches both a null role and a missing field.
		filter["role"] = nil
	}
	if to != roleauth.RoleOrganizer {
		filter["$nor"] = bson.A{bson.M{"role": roleauth.RoleOrganizer.String()}}
	}
	return filter
}

func claimFilter(resetID string, now time.Time) bson.M {
	return bson.M{
		"_id":        resetID,
		"consumed":   false,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
}

func toUserRecord(mu mongoUser) (roleauth.UserRecord, error) {
	var stored string
	if mu.Role != nil {
		stored = *mu.Role
	}
	role, err := roleauth.ParseStoredRole(stored)
	if err != nil {
		return roleauth.UserRecord{}, fmt.Errorf("user %s: %w", mu.ID, err)
	}
	return roleauth.UserRecord{
		UserID:         mu.ID,
		Email:          mu.Email,
		Role:           role,
		CredentialHash: mu.CredentialHash,
	}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", roleauth.ErrStoreUnavailable, err)
}
