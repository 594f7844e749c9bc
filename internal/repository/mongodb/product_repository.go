package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kdiawara/branchstock/internal/domain/models"
)

const productsCollection = "products"

// ProductRepository exposes the per-branch stock counters held on product
// records.
type ProductRepository struct {
	coll *mongo.Collection
}

// NewProductRepository creates a product repository bound to the application
// database.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(productsCollection)}
}

// FindProduct loads a product and its stock counters.
func (r *ProductRepository) FindProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &models.NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find product %s: %w", id, err)
	}
	return &product, nil
}

// MoveStock atomically moves qty units from the source branch counter to the
// destination branch counter. The filter requires the source counter to hold
// at least qty, so concurrent transfers can never drive it negative; if the
// guard fails the write matches nothing and ErrStateNotMatched is returned.
func (r *ProductRepository) MoveStock(ctx context.Context, id, sourceBranch, destinationBranch string, qty int) (*models.Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("move stock for product %s: quantity must be positive, got %d", id, qty)
	}

	sourceKey := "stock." + sourceBranch
	destKey := "stock." + destinationBranch

	filter := bson.M{
		"_id":     id,
		sourceKey: bson.M{"$gte": qty},
	}
	update := bson.M{"$inc": bson.M{
		sourceKey: -qty,
		destKey:   qty,
	}}

	var product models.Product
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrStateNotMatched
	}
	if err != nil {
		return nil, fmt.Errorf("move stock for product %s: %w", id, err)
	}
	return &product, nil
}

// SetCounters patches individual branch counters on a product record.
func (r *ProductRepository) SetCounters(ctx context.Context, id string, patch map[string]int) error {
	if len(patch) == 0 {
		return nil
	}

	set := bson.M{}
	for branch, qty := range patch {
		if qty < 0 {
			return fmt.Errorf("set counters for product %s: counter for %s must not be negative", id, branch)
		}
		set["stock."+branch] = qty
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("set counters for product %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return &models.NotFoundError{Entity: "product", ID: id}
	}
	return nil
}
