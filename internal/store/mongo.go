// ABOUTME: MongoDB implementation of the Store interface using mongo-driver v1
// ABOUTME: One collection per entity; cascading deletes are done explicitly

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoDatabase is used when no database name is configured.
const DefaultMongoDatabase = "cap360"

// MongoStore implements the Store interface on MongoDB.
type MongoStore struct {
	client     *mongo.Client
	identities *mongo.Collection
	profiles   *mongo.Collection
	grants     *mongo.Collection
	audit      *mongo.Collection
	logger     *slog.Logger
}

var _ Store = (*MongoStore)(nil)

type identityDoc struct {
	ID             string         `bson:"_id"`
	Email          string         `bson:"email"`
	PasswordHash   string         `bson:"password_hash"`
	EmailConfirmed bool           `bson:"email_confirmed"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
	CreatedAt      time.Time      `bson:"created_at"`
}

type profileDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	FullName  string    `bson:"full_name"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type roleGrantDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

type auditDoc struct {
	ID        string         `bson:"_id"`
	ActorID   string         `bson:"actor_id,omitempty"`
	Action    string         `bson:"action"`
	TargetID  string         `bson:"target_id"`
	Timestamp time.Time      `bson:"ts"`
	Detail    map[string]any `bson:"detail,omitempty"`
}

// NewMongoStore connects to uri, selects dbName and ensures indexes exist.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	logger := slog.Default().With("component", "store", "driver", DriverMongo)

	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:     client,
		identities: db.Collection("identities"),
		profiles:   db.Collection("profiles"),
		grants:     db.Collection("role_grants"),
		audit:      db.Collection("audit_log"),
		logger:     logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	logger.Info("MongoDB store initialized", "database", dbName)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.identities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	}); err != nil {
		return err
	}
	if _, err := s.grants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "role", Value: 1}},
		Options: options.Index().SetName("idx_user_role"),
	}); err != nil {
		return err
	}
	if _, err := s.audit.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ts", Value: -1}},
		Options: options.Index().SetName("idx_ts"),
	}); err != nil {
		return err
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	s.logger.Info("closing MongoDB store")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the server connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// CreateIdentity inserts a new identity.
func (s *MongoStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	identity.Email = NormalizeEmail(identity.Email)

	doc := identityDoc{
		ID:             identity.ID,
		Email:          identity.Email,
		PasswordHash:   identity.PasswordHash,
		EmailConfirmed: identity.EmailConfirmed,
		Metadata:       identity.Metadata,
		CreatedAt:      identity.CreatedAt.UTC(),
	}
	if _, err := s.identities.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("inserting identity: %w", err)
	}
	return nil
}

// GetIdentity retrieves an identity by ID.
func (s *MongoStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	return s.findIdentity(ctx, bson.M{"_id": id})
}

// GetIdentityByEmail retrieves an identity by case-insensitive email.
func (s *MongoStore) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.findIdentity(ctx, bson.M{"email": NormalizeEmail(email)})
}

func (s *MongoStore) findIdentity(ctx context.Context, filter bson.M) (*Identity, error) {
	var doc identityDoc
	err := s.identities.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	return &Identity{
		ID:             doc.ID,
		Email:          doc.Email,
		PasswordHash:   doc.PasswordHash,
		EmailConfirmed: doc.EmailConfirmed,
		Metadata:       doc.Metadata,
		CreatedAt:      doc.CreatedAt.UTC(),
	}, nil
}

// DeleteIdentity removes an identity together with its profile and grants.
func (s *MongoStore) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := s.grants.DeleteMany(ctx, bson.M{"user_id": id}); err != nil {
		return fmt.Errorf("deleting role grants: %w", err)
	}
	if _, err := s.profiles.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	if _, err := s.identities.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	return nil
}

// UpsertProfile inserts or overwrites a profile keyed by id.
func (s *MongoStore) UpsertProfile(ctx context.Context, profile *Profile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	filter := bson.M{"_id": profile.ID}
	update := bson.M{
		"$set": bson.M{
			"email":      profile.Email,
			"full_name":  profile.FullName,
			"updated_at": profile.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": profile.CreatedAt.UTC(),
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.profiles.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by ID.
func (s *MongoStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var doc profileDoc
	err := s.profiles.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &Profile{
		ID:        doc.ID,
		Email:     doc.Email,
		FullName:  doc.FullName,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

// DeleteProfile removes a profile.
func (s *MongoStore) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.profiles.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// HasRole checks whether at least one grant exists for (userID, role).
func (s *MongoStore) HasRole(ctx context.Context, userID string, role RoleName) (bool, error) {
	n, err := s.grants.CountDocuments(ctx,
		bson.M{"user_id": userID, "role": string(role)},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return n > 0, nil
}

// InsertRoleGrant inserts a grant.
func (s *MongoStore) InsertRoleGrant(ctx context.Context, grant *RoleGrant) error {
	doc := roleGrantDoc{
		ID:        grant.ID,
		UserID:    grant.UserID,
		Role:      string(grant.Role),
		CreatedAt: grant.CreatedAt.UTC(),
	}
	if _, err := s.grants.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting role grant: %w", err)
	}
	return nil
}

// DeleteRoleGrants removes every grant of role held by userID.
func (s *MongoStore) DeleteRoleGrants(ctx context.Context, userID string, role RoleName) (int64, error) {
	res, err := s.grants.DeleteMany(ctx, bson.M{"user_id": userID, "role": string(role)})
	if err != nil {
		return 0, fmt.Errorf("deleting role grants: %w", err)
	}
	return res.DeletedCount, nil
}

// ListRoleHolders returns the distinct users holding role, ordered by email.
func (s *MongoStore) ListRoleHolders(ctx context.Context, role RoleName) ([]RoleHolder, error) {
	cur, err := s.grants.Find(ctx, bson.M{"role": string(role)})
	if err != nil {
		return nil, fmt.Errorf("listing role grants: %w", err)
	}
	var grants []roleGrantDoc
	if err := cur.All(ctx, &grants); err != nil {
		return nil, fmt.Errorf("decoding role grants: %w", err)
	}

	byUser := make(map[string]*RoleHolder)
	userIDs := make([]string, 0, len(grants))
	for _, g := range grants {
		if h, ok := byUser[g.UserID]; ok {
			if g.CreatedAt.Before(h.GrantedAt) {
				h.GrantedAt = g.CreatedAt.UTC()
			}
			continue
		}
		byUser[g.UserID] = &RoleHolder{UserID: g.UserID, Role: role, GrantedAt: g.CreatedAt.UTC()}
		userIDs = append(userIDs, g.UserID)
	}

	holders := make([]RoleHolder, 0, len(byUser))
	if len(userIDs) == 0 {
		return holders, nil
	}

	pcur, err := s.profiles.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	var profiles []profileDoc
	if err := pcur.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decoding profiles: %w", err)
	}
	for _, p := range profiles {
		if h, ok := byUser[p.ID]; ok {
			h.Email = p.Email
			h.FullName = p.FullName
		}
	}

	for _, h := range byUser {
		holders = append(holders, *h)
	}
	sortRoleHolders(holders)
	return holders, nil
}

// AppendAuditLog appends a new entry to the audit log.
func (s *MongoStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)
	doc := auditDoc{
		ID:        e.ID,
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		TargetID:  e.TargetID,
		Timestamp: e.Timestamp.UTC(),
		Detail:    e.Detail,
	}
	if _, err := s.audit.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditLog returns the most recent audit entries, newest first.
func (s *MongoStore) ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: -1}}).
		SetLimit(int64(normalizeAuditLimit(limit)))

	cur, err := s.audit.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding audit log: %w", err)
	}

	entries := make([]AuditEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, AuditEntry{
			ID:        d.ID,
			ActorID:   d.ActorID,
			Action:    AuditAction(d.Action),
			TargetID:  d.TargetID,
			Timestamp: d.Timestamp.UTC(),
			Detail:    d.Detail,
		})
	}
	return entries, nil
}
