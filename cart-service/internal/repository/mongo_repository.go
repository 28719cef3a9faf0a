package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartDocument struct {
	ID        string               `bson:"_id"`
	UserID    string               `bson:"user_id,omitempty"`
	SessionID string               `bson:"session_id,omitempty"`
	Items     []lineDocument       `bson:"items"`
	Coupon    *couponDocument      `bson:"coupon,omitempty"`
	Subtotal  primitive.Decimal128 `bson:"subtotal"`
	Discount  primitive.Decimal128 `bson:"discount"`
	Total     primitive.Decimal128 `bson:"total"`
	ItemCount int                  `bson:"item_count"`
	Version   int64                `bson:"version"`
	ExpiresAt *time.Time           `bson:"expires_at,omitempty"`
	CreatedAt time.Time            `bson:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

type lineDocument struct {
	ID        string               `bson:"id"`
	ProductID string               `bson:"product_id"`
	Quantity  int                  `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
	Variant   map[string]string    `bson:"variant,omitempty"`
	AddedAt   time.Time            `bson:"added_at"`
}

type couponDocument struct {
	Code          string               `bson:"code"`
	DiscountType  string               `bson:"discount_type"`
	DiscountValue primitive.Decimal128 `bson:"discount_value"`
}

type mongoRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("carts"),
		now:        time.Now,
	}
}

func ownerFilter(owner domain.Owner) bson.M {
	if owner.UserID != "" {
		return bson.M{"user_id": owner.UserID}
	}
	return bson.M{"session_id": owner.SessionID}
}

func (m *mongoRepository) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if !owner.Valid() {
		return nil, domain.ErrInvalidOwner
	}

	var doc cartDocument
	err := m.collection.FindOne(ctx, ownerFilter(owner)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	// The TTL monitor runs about once a minute; don't hand out a guest cart
	// that has already expired, and clear it so the owner can start over.
	if doc.ExpiresAt != nil && !doc.ExpiresAt.After(m.now()) {
		if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": doc.ID, "version": doc.Version}); err != nil {
			return nil, fmt.Errorf("failed to delete expired cart: %w", err)
		}
		return nil, ErrCartNotFound
	}

	return fromDocument(&doc)
}

func (m *mongoRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if !cart.Owner().Valid() {
		return domain.ErrInvalidOwner
	}

	now := m.now()
	doc, err := toDocument(cart)
	if err != nil {
		return err
	}
	doc.Version = cart.Version + 1
	doc.UpdatedAt = now
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	if cart.IsNew() {
		if _, err := m.collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("failed to insert cart: %w", err)
		}
	} else {
		filter := bson.M{"_id": cart.ID, "version": cart.Version}
		result, err := m.collection.ReplaceOne(ctx, filter, doc)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("failed to save cart: %w", err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrConflict
		}
	}

	cart.Version = doc.Version
	cart.CreatedAt = doc.CreatedAt
	cart.UpdatedAt = now
	return nil
}

func (m *mongoRepository) DeleteCart(ctx context.Context, owner domain.Owner) error {
	if !owner.Valid() {
		return domain.ErrInvalidOwner
	}

	result, err := m.collection.DeleteOne(ctx, ownerFilter(owner))
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"user_id": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"session_id": bson.M{"$type": "string"}}),
		},
		{
			// Only guest carts carry expires_at, so user carts never expire.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func toDocument(c *domain.Cart) (*cartDocument, error) {
	doc := &cartDocument{
		ID:        c.ID,
		UserID:    c.UserID,
		SessionID: c.SessionID,
		Items:     make([]lineDocument, len(c.Items)),
		ItemCount: c.ItemCount,
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
	}

	var err error
	if doc.Subtotal, err = toDecimal128(c.Subtotal); err != nil {
		return nil, err
	}
	if doc.Discount, err = toDecimal128(c.Discount); err != nil {
		return nil, err
	}
	if doc.Total, err = toDecimal128(c.Total); err != nil {
		return nil, err
	}

	for i, l := range c.Items {
		price, err := toDecimal128(l.Price)
		if err != nil {
			return nil, err
		}
		doc.Items[i] = lineDocument{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     price,
			Variant:   l.Variant,
			AddedAt:   l.AddedAt,
		}
	}

	if c.Coupon != nil {
		value, err := toDecimal128(c.Coupon.DiscountValue)
		if err != nil {
			return nil, err
		}
		doc.Coupon = &couponDocument{
			Code:          c.Coupon.Code,
			DiscountType:  string(c.Coupon.DiscountType),
			DiscountValue: value,
		}
	}

	return doc, nil
}

func fromDocument(doc *cartDocument) (*domain.Cart, error) {
	c := &domain.Cart{
		ID:        doc.ID,
		UserID:    doc.UserID,
		SessionID: doc.SessionID,
		Items:     make([]domain.CartLine, len(doc.Items)),
		ItemCount: doc.ItemCount,
		Version:   doc.Version,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}

	for i, l := range doc.Items {
		price, err := fromDecimal128(l.Price)
		if err != nil {
			return nil, err
		}
		c.Items[i] = domain.CartLine{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     price,
			Variant:   l.Variant,
			AddedAt:   l.AddedAt,
		}
	}

	if doc.Coupon != nil {
		value, err := fromDecimal128(doc.Coupon.DiscountValue)
		if err != nil {
			return nil, err
		}
		c.Coupon = &domain.Coupon{
			Code:          doc.Coupon.Code,
			DiscountType:  domain.DiscountType(doc.Coupon.DiscountType),
			DiscountValue: value,
		}
	}

	// Stored totals are a read convenience for other consumers; the cart
	// itself always trusts its lines.
	c.Recalculate()
	return c, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode amount %s: %w", v, err)
	}
	return d, nil
}
