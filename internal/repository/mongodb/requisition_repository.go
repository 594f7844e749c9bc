package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kdiawara/branchstock/internal/domain/models"
)

const requisitionsCollection = "requisitions"

// RequisitionRepository persists requisitions. Every status transition is a
// conditional write that names the expected current status in its filter, so
// two concurrent callers running the same transition cannot both succeed.
type RequisitionRepository struct {
	coll *mongo.Collection
}

// NewRequisitionRepository creates a requisition repository bound to the
// application database.
func NewRequisitionRepository(db *mongo.Database) *RequisitionRepository {
	return &RequisitionRepository{coll: db.Collection(requisitionsCollection)}
}

// Insert persists a freshly created requisition.
func (r *RequisitionRepository) Insert(ctx context.Context, req *models.Requisition) error {
	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		return fmt.Errorf("insert requisition: %w", err)
	}
	return nil
}

// FindByID loads a single requisition.
func (r *RequisitionRepository) FindByID(ctx context.Context, id string) (*models.Requisition, error) {
	var req models.Requisition
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &models.NotFoundError{Entity: "requisition", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find requisition %s: %w", id, err)
	}
	return &req, nil
}

// List returns requisitions matching the filter, newest first.
func (r *RequisitionRepository) List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.DestinationBranch != "" {
		query["destination_branch"] = filter.DestinationBranch
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list requisitions: %w", err)
	}
	defer cursor.Close(ctx)

	requisitions := []models.Requisition{}
	if err := cursor.All(ctx, &requisitions); err != nil {
		return nil, fmt.Errorf("decode requisitions: %w", err)
	}
	return requisitions, nil
}

// Approve moves a pending requisition to approved, storing the authorized
// item quantities. Returns ErrStateNotMatched if the requisition is missing
// or no longer pending.
func (r *RequisitionRepository) Approve(ctx context.Context, id string, items []models.Item, approvedBy string, deliveryDate *time.Time, at time.Time) (*models.Requisition, error) {
	set := bson.M{
		"status":      models.StatusApproved,
		"items":       items,
		"approved_by": approvedBy,
		"approved_at": at,
		"updated_at":  at,
	}
	if deliveryDate != nil {
		set["delivery_date"] = deliveryDate
	}
	return r.transition(ctx, id, models.StatusPending, set)
}

// Reject moves a pending requisition to its terminal rejected state.
func (r *RequisitionRepository) Reject(ctx context.Context, id, reason, rejectedBy string, at time.Time) (*models.Requisition, error) {
	return r.transition(ctx, id, models.StatusPending, bson.M{
		"status":           models.StatusRejected,
		"rejected_by":      rejectedBy,
		"rejected_at":      at,
		"rejection_reason": reason,
		"updated_at":       at,
	})
}

// MarkInTransit moves an approved requisition to in-transit.
func (r *RequisitionRepository) MarkInTransit(ctx context.Context, id string, at time.Time) (*models.Requisition, error) {
	return r.transition(ctx, id, models.StatusApproved, bson.M{
		"status":     models.StatusInTransit,
		"updated_at": at,
	})
}

// ClaimReceive marks an in-transit requisition as being received. The filter
// excludes already-claimed documents, so of two concurrent receivers exactly
// one obtains the claim and runs the stock transfer.
func (r *RequisitionRepository) ClaimReceive(ctx context.Context, id string, at time.Time) (*models.Requisition, error) {
	filter := bson.M{
		"_id":       id,
		"status":    models.StatusInTransit,
		"receiving": bson.M{"$ne": true},
	}
	update := bson.M{"$set": bson.M{
		"receiving":    true,
		"receiving_at": at,
		"updated_at":   at,
	}}

	var req models.Requisition
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrStateNotMatched
	}
	if err != nil {
		return nil, fmt.Errorf("claim receive for requisition %s: %w", id, err)
	}
	return &req, nil
}

// ReleaseReceive drops the receive claim after a total transfer failure so
// the receive can be retried.
func (r *RequisitionRepository) ReleaseReceive(ctx context.Context, id string, at time.Time) error {
	update := bson.M{
		"$set":   bson.M{"updated_at": at},
		"$unset": bson.M{"receiving": "", "receiving_at": ""},
	}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("release receive claim for requisition %s: %w", id, err)
	}
	return nil
}

// CompleteReceive finalizes a claimed receive: status becomes received and
// the stock transfer report is attached.
func (r *RequisitionRepository) CompleteReceive(ctx context.Context, id string, report *models.StockTransferReport, at time.Time) (*models.Requisition, error) {
	filter := bson.M{
		"_id":       id,
		"status":    models.StatusInTransit,
		"receiving": true,
	}
	update := bson.M{
		"$set": bson.M{
			"status":         models.StatusReceived,
			"stock_transfer": report,
			"received_at":    at,
			"updated_at":     at,
		},
		"$unset": bson.M{"receiving": "", "receiving_at": ""},
	}

	var req models.Requisition
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrStateNotMatched
	}
	if err != nil {
		return nil, fmt.Errorf("complete receive for requisition %s: %w", id, err)
	}
	return &req, nil
}

// DeletePending permanently removes a requisition while it is still pending.
func (r *RequisitionRepository) DeletePending(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "status": models.StatusPending})
	if err != nil {
		return fmt.Errorf("delete requisition %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return models.ErrStateNotMatched
	}
	return nil
}

// ListStale returns requisitions needing reconciliation attention: receive
// claims older than the cutoff (a crash may have left counters moved without
// the received status) and in-transit records untouched since the cutoff.
func (r *RequisitionRepository) ListStale(ctx context.Context, before time.Time) ([]models.Requisition, error) {
	query := bson.M{"$or": bson.A{
		bson.M{"receiving": true, "receiving_at": bson.M{"$lt": before}},
		bson.M{"status": models.StatusInTransit, "updated_at": bson.M{"$lt": before}},
	}}

	cursor, err := r.coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stale requisitions: %w", err)
	}
	defer cursor.Close(ctx)

	requisitions := []models.Requisition{}
	if err := cursor.All(ctx, &requisitions); err != nil {
		return nil, fmt.Errorf("decode stale requisitions: %w", err)
	}
	return requisitions, nil
}

func (r *RequisitionRepository) transition(ctx context.Context, id string, from models.Status, set bson.M) (*models.Requisition, error) {
	filter := bson.M{"_id": id, "status": from}

	var req models.Requisition
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrStateNotMatched
	}
	if err != nil {
		return nil, fmt.Errorf("transition requisition %s from %s: %w", id, from, err)
	}
	return &req, nil
}
