package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
)

// CredentialRepo implements core.CredentialRepository over the credentials collection.
type CredentialRepo struct {
	coll *mongo.Collection
}

var _ core.CredentialRepository = (*CredentialRepo)(nil)

// Get returns the credential record.
func (r *CredentialRepo) Get(ctx context.Context, id string) (*model.Credential, error) {
	var c model.Credential
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFoundf("credential %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", mapError(err))
	}
	return &c, nil
}

// Put creates the record when Rev is zero, otherwise replaces it at the current revision.
func (r *CredentialRepo) Put(ctx context.Context, c *model.Credential) error {
	doc := *c
	doc.Rev = c.Rev + 1
	if c.Rev == 0 {
		if _, err := r.coll.InsertOne(ctx, &doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return errRevisionConflict
			}
			return fmt.Errorf("create credential: %w", mapError(err))
		}
		c.Rev = doc.Rev
		return nil
	}
	res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: c.ID}, {Key: "_rev", Value: c.Rev}}, &doc)
	if err != nil {
		return fmt.Errorf("put credential: %w", mapError(err))
	}
	if res.MatchedCount == 0 {
		return errRevisionConflict
	}
	c.Rev = doc.Rev
	return nil
}

// DeleteMany removes the given ids and returns how many existed.
func (r *CredentialRepo) DeleteMany(ctx context.Context, ids []string) (int, error) {
	ids = core.UniqueKeys(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return 0, fmt.Errorf("delete credentials: %w", mapError(err))
	}
	return int(res.DeletedCount), nil
}

// ListExpired returns records with expires before the cutoff, ordered by expiry.
func (r *CredentialRepo) ListExpired(ctx context.Context, before int64) ([]*model.Credential, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expires", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.D{{Key: "expires", Value: bson.D{{Key: "$lt", Value: before}}}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list expired credentials: %w", mapError(err))
	}
	var out []*model.Credential
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", mapError(err))
	}
	return out, nil
}
