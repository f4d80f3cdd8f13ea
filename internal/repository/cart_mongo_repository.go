package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCartRepository stores carts in the "carts" collection, one document per
// (session_key, fingerprint).
type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) GetOrCreate(ctx context.Context, sessionKey, fingerprint string, now time.Time, ttl time.Duration) (*domain.Cart, bool, error) {
	fresh := domain.NewCart(sessionKey, fingerprint, now, ttl)
	newID := uuid.NewString()

	filter := bson.M{"session_key": sessionKey, "fingerprint": fingerprint}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":           newID,
			"items":         fresh.Items,
			"status":        fresh.Status,
			"last_activity": fresh.LastActivity,
			"expires_at":    fresh.ExpiresAt,
			"created_at":    fresh.CreatedAt,
			"updated_at":    fresh.UpdatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var cart domain.Cart
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent upsert for the same key won the insert; read its cart.
		err = m.collection.FindOne(ctx, filter).Decode(&cart)
		if err != nil {
			return nil, false, persistenceErr("failed to read raced cart", err)
		}
		return &cart, false, nil
	}
	if err != nil {
		return nil, false, persistenceErr("failed to get or create cart", err)
	}

	return &cart, cart.ID == newID, nil
}

func (m *MongoCartRepository) GetByID(ctx context.Context, cartID string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"_id": cartID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, persistenceErr("failed to get cart", err)
	}

	return &cart, nil
}

func (m *MongoCartRepository) AddItem(ctx context.Context, cartID string, item domain.CartItem, now time.Time) (*domain.Cart, error) {
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = now
	}

	// Two passes cover a concurrent insert of the same product between the
	// $inc miss and the guarded $push.
	for attempt := 0; attempt < 2; attempt++ {
		cart, err := m.findOneAndUpdate(ctx,
			bson.M{"_id": cartID, "items.product_ref": item.ProductRef},
			bson.M{
				"$inc": bson.M{"items.$.quantity": item.Quantity},
				"$set": touch(now),
			})
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, persistenceErr("failed to update existing item", err)
		}

		cart, err = m.findOneAndUpdate(ctx,
			bson.M{"_id": cartID, "items.product_ref": bson.M{"$ne": item.ProductRef}},
			bson.M{
				"$push": bson.M{"items": item},
				"$set":  touch(now),
			})
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, persistenceErr("failed to add new item", err)
		}
	}

	return nil, ErrCartNotFound
}

func (m *MongoCartRepository) SetItemQuantity(ctx context.Context, cartID, productRef string, quantity int, now time.Time) (*domain.Cart, error) {
	set := touch(now)
	set["items.$.quantity"] = quantity

	cart, err := m.findOneAndUpdate(ctx,
		bson.M{"_id": cartID, "items.product_ref": productRef},
		bson.M{"$set": set})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, m.missingItemErr(ctx, cartID)
	}
	if err != nil {
		return nil, persistenceErr("failed to update item quantity", err)
	}
	return cart, nil
}

func (m *MongoCartRepository) RemoveItem(ctx context.Context, cartID, productRef string, now time.Time) (*domain.Cart, error) {
	cart, err := m.findOneAndUpdate(ctx,
		bson.M{"_id": cartID, "items.product_ref": productRef},
		bson.M{
			"$pull": bson.M{"items": bson.M{"product_ref": productRef}},
			"$set":  touch(now),
		})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, m.missingItemErr(ctx, cartID)
	}
	if err != nil {
		return nil, persistenceErr("failed to remove item", err)
	}
	return cart, nil
}

func (m *MongoCartRepository) ReplaceItems(ctx context.Context, cartID string, items []domain.CartItem, status domain.CartStatus, now time.Time) (*domain.Cart, error) {
	if items == nil {
		items = []domain.CartItem{}
	}
	set := touch(now)
	set["items"] = items
	set["status"] = status

	cart, err := m.findOneAndUpdate(ctx, bson.M{"_id": cartID}, bson.M{"$set": set})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, persistenceErr("failed to replace items", err)
	}
	return cart, nil
}

// MarkConvertedBySession converts every not-yet-converted cart of the
// session and empties it. Converted carts are returned so callers can drop
// cached copies.
func (m *MongoCartRepository) MarkConvertedBySession(ctx context.Context, sessionKey string, now time.Time) ([]*domain.Cart, error) {
	filter := bson.M{"session_key": sessionKey, "status": bson.M{"$ne": domain.CartStatusConverted}}

	cursor, err := m.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, persistenceErr("failed to find session carts", err)
	}
	var ids []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &ids); err != nil {
		return nil, persistenceErr("failed to decode session carts", err)
	}

	var converted []*domain.Cart
	for _, id := range ids {
		cart, err := m.findOneAndUpdate(ctx,
			bson.M{"_id": id.ID, "status": bson.M{"$ne": domain.CartStatusConverted}},
			bson.M{"$set": bson.M{
				"items":      []domain.CartItem{},
				"status":     domain.CartStatusConverted,
				"updated_at": now,
			}})
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return converted, persistenceErr("failed to convert cart", err)
		}
		converted = append(converted, cart)
	}
	return converted, nil
}

func (m *MongoCartRepository) List(ctx context.Context, filter domain.CartFilter) ([]*domain.Cart, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	total, err := m.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, persistenceErr("failed to count carts", err)
	}

	skip, limit := pageBounds(filter.Page, filter.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, persistenceErr("failed to list carts", err)
	}
	carts := make([]*domain.Cart, 0, limit)
	if err := cursor.All(ctx, &carts); err != nil {
		return nil, 0, persistenceErr("failed to decode carts", err)
	}
	return carts, total, nil
}

// DeleteExpired removes every cart whose expires_at is before now in one
// bulk delete.
func (m *MongoCartRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := m.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, persistenceErr("failed to delete expired carts", err)
	}
	return result.DeletedCount, nil
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_key", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoCartRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*domain.Cart, error) {
	var cart domain.Cart
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (m *MongoCartRepository) missingItemErr(ctx context.Context, cartID string) error {
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": cartID})
	if err != nil {
		return persistenceErr("failed to check cart", err)
	}
	if n == 0 {
		return ErrCartNotFound
	}
	return ErrItemNotFound
}

// touch marks activity. It also re-activates an abandoned or converted cart.
func touch(now time.Time) bson.M {
	return bson.M{
		"last_activity": now,
		"updated_at":    now,
		"status":        domain.CartStatusActive,
	}
}
