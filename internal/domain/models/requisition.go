package models

import "time"

// Status enumerates the requisition lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusInTransit Status = "in-transit"
	StatusReceived  Status = "received"
)

// Item bounds enforced at creation time.
const (
	MaxItemsPerRequisition = 50
	MinItemQuantity        = 1
	MaxItemQuantity        = 10000
)

// Requester identifies the user who opened the requisition.
type Requester struct {
	UserID string `bson:"user_id" json:"userId"`
	Name   string `bson:"name" json:"name"`
	Email  string `bson:"email" json:"email"`
	Branch string `bson:"branch" json:"branch"`
}

// Item is a single product line within a requisition. ApprovedQty stays nil
// until an approver authorizes the line; an approved quantity of zero excludes
// the line from the stock transfer.
type Item struct {
	ProductID    string            `bson:"product_id" json:"productId"`
	ProductName  string            `bson:"product_name" json:"productName"`
	RequestedQty int               `bson:"requested_qty" json:"requestedQty"`
	ApprovedQty  *int              `bson:"approved_qty,omitempty" json:"approvedQty,omitempty"`
	Options      map[string]string `bson:"options,omitempty" json:"options,omitempty"`
	Image        string            `bson:"image,omitempty" json:"image,omitempty"`
}

// TransferResult records the outcome of one item inside a stock transfer.
type TransferResult struct {
	ProductID   string `bson:"product_id" json:"productId"`
	ProductName string `bson:"product_name" json:"productName"`
	Quantity    int    `bson:"quantity" json:"quantity"`
	Reason      string `bson:"reason,omitempty" json:"reason,omitempty"`
}

// StockTransferReport aggregates the per-item outcomes of a receive operation.
// A requisition can reach received with a non-empty Failed slice; one bad line
// never blocks the rest of the batch.
type StockTransferReport struct {
	Successful  []TransferResult `bson:"successful" json:"successful"`
	Failed      []TransferResult `bson:"failed" json:"failed"`
	CompletedAt time.Time        `bson:"completed_at" json:"completedAt"`
}

// Requisition is a request to move stock from one branch into the requester's
// own branch. It is created once, mutated only through the defined status
// transitions, and becomes immutable once rejected or received.
type Requisition struct {
	ID                string               `bson:"_id" json:"id"`
	Number            string               `bson:"number" json:"number"`
	RequestedBy       Requester            `bson:"requested_by" json:"requestedBy"`
	Items             []Item               `bson:"items" json:"items"`
	SourceBranch      string               `bson:"source_branch" json:"sourceBranch"`
	DestinationBranch string               `bson:"destination_branch" json:"destinationBranch"`
	Status            Status               `bson:"status" json:"status"`
	Priority          string               `bson:"priority,omitempty" json:"priority,omitempty"`
	Notes             string               `bson:"notes,omitempty" json:"notes,omitempty"`
	ApprovedBy        string               `bson:"approved_by,omitempty" json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time           `bson:"approved_at,omitempty" json:"approvedAt,omitempty"`
	RejectedBy        string               `bson:"rejected_by,omitempty" json:"rejectedBy,omitempty"`
	RejectedAt        *time.Time           `bson:"rejected_at,omitempty" json:"rejectedAt,omitempty"`
	RejectionReason   string               `bson:"rejection_reason,omitempty" json:"rejectionReason,omitempty"`
	DeliveryDate      *time.Time           `bson:"delivery_date,omitempty" json:"deliveryDate,omitempty"`
	ReceivedAt        *time.Time           `bson:"received_at,omitempty" json:"receivedAt,omitempty"`
	Receiving         bool                 `bson:"receiving,omitempty" json:"-"`
	ReceivingAt       *time.Time           `bson:"receiving_at,omitempty" json:"-"`
	StockTransfer     *StockTransferReport `bson:"stock_transfer,omitempty" json:"stockTransfer,omitempty"`
	CreatedAt         time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time            `bson:"updated_at" json:"updatedAt"`
}

// RequisitionFilter narrows a listing. An empty field means no constraint.
type RequisitionFilter struct {
	Status            Status
	DestinationBranch string
	Limit             int64
}
