package authserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repository persists accounts and refresh grants. Getters return nil, nil
// when the record does not exist.
type Repository interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, username string) (*Account, error)
	CreateGrant(ctx context.Context, g *Grant) error
	GetGrant(ctx context.Context, token string) (*Grant, error)
	DeleteGrant(ctx context.Context, token string) error
}

// MemoryRepository keeps everything in process.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	grants   map[string]Grant
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: map[string]Account{}, grants: map[string]Grant{}}
}

func (r *MemoryRepository) CreateAccount(_ context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.Username]; ok {
		return ErrAccountExists
	}
	r.accounts[a.Username] = *a
	return nil
}

func (r *MemoryRepository) GetAccount(_ context.Context, username string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[username]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *MemoryRepository) CreateGrant(_ context.Context, g *Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grants[g.Token]; ok {
		return ErrGrantExists
	}
	r.grants[g.Token] = *g
	return nil
}

func (r *MemoryRepository) GetGrant(_ context.Context, token string) (*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[token]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r *MemoryRepository) DeleteGrant(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, token)
	return nil
}

// MongoRepository stores accounts and grants in two collections keyed by _id.
type MongoRepository struct {
	accounts *mongo.Collection
	grants   *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{accounts: db.Collection("stub_accounts"), grants: db.Collection("stub_grants")}
}

func (r *MongoRepository) CreateAccount(ctx context.Context, a *Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := r.accounts.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (r *MongoRepository) GetAccount(ctx context.Context, username string) (*Account, error) {
	var a Account
	if err := r.accounts.FindOne(ctx, bson.M{"_id": username}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *MongoRepository) CreateGrant(ctx context.Context, g *Grant) error {
	if _, err := r.grants.InsertOne(ctx, g); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrGrantExists
		}
		return err
	}
	return nil
}

func (r *MongoRepository) GetGrant(ctx context.Context, token string) (*Grant, error) {
	var g Grant
	if err := r.grants.FindOne(ctx, bson.M{"_id": token}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (r *MongoRepository) DeleteGrant(ctx context.Context, token string) error {
	_, err := r.grants.DeleteOne(ctx, bson.M{"_id": token})
	return err
}
