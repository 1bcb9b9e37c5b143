// Package repository defines the single-table Entity Store contract and the
// per-entity repositories built on top of it.
package repository

import (
	"context"
	"iter"

	"strivesync-backend/internal/keys"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is one stored record in DynamoDB's attribute representation.
type Item = map[string]types.AttributeValue

// Index names used by the repositories.
const (
	IndexGSI1  = "GSI1"
	IndexEmail = "EmailIndex"
)

// IndexSchema names the key attributes of a secondary index. SortAttr is empty
// for partition-only indexes.
type IndexSchema struct {
	Name          string
	PartitionAttr string
	SortAttr      string
}

// Schema describes the physical layout of the table.
type Schema struct {
	Table         string
	PartitionAttr string
	SortAttr      string
	Indexes       map[string]IndexSchema
}

// DefaultSchema returns the layout used by every repository: PK/SK, GSI1 over
// gsi1pk/gsi1sk and EmailIndex over email.
func DefaultSchema(table, gsi1Name, emailIndexName string) Schema {
	return Schema{
		Table:         table,
		PartitionAttr: "PK",
		SortAttr:      "SK",
		Indexes: map[string]IndexSchema{
			IndexGSI1:  {Name: gsi1Name, PartitionAttr: "gsi1pk", SortAttr: "gsi1sk"},
			IndexEmail: {Name: emailIndexName, PartitionAttr: "email"},
		},
	}
}

// Index returns the schema of the named logical index.
func (s Schema) Index(name string) (IndexSchema, bool) {
	idx, ok := s.Indexes[name]
	return idx, ok
}

// QueryInput selects items sharing a partition, optionally within an index
// and narrowed by a sort key prefix.
type QueryInput struct {
	Index       string
	Partition   string
	SortPrefix  string
	ScanForward bool
	// Limit caps the number of items yielded; zero means no cap.
	Limit int32
}

// IndexAction is the directive applied to an item's projection in an index.
type IndexAction int

const (
	IndexNone IndexAction = iota
	IndexAdd
	IndexRemove
)

func (a IndexAction) String() string {
	switch a {
	case IndexAdd:
		return "add"
	case IndexRemove:
		return "remove"
	default:
		return "none"
	}
}

// IndexChange adds or removes an item's projection in one index.
type IndexChange struct {
	Action IndexAction
	Key    *keys.Secondary
}

// CounterChange adds Delta to a numeric attribute, treating a missing
// attribute as zero. When CeilingAttr is set and the item carries a positive
// value there, an increment requires the counter to be below it. Floor
// rejects a decrement that would take the counter below zero.
type CounterChange struct {
	Attr        string
	Delta       int64
	CeilingAttr string
	Floor       bool
}

// UpdateSpec is a single-item mutation.
type UpdateSpec struct {
	Set           map[string]any
	Remove        []string
	Counter       *CounterChange
	Indexes       map[string]IndexChange
	RequireExists bool
}

// Empty reports whether the spec changes nothing.
func (u UpdateSpec) Empty() bool {
	if len(u.Set) > 0 || len(u.Remove) > 0 || u.Counter != nil {
		return false
	}
	for _, c := range u.Indexes {
		if c.Action != IndexNone {
			return false
		}
	}
	return true
}

// Store is a single-table key-value store with conditional single-item writes.
//
// Errors are *errors.AppError values: AlreadyExists, NotFound, ConditionFailed
// and StoreUnavailable for every backend or transport failure.
type Store interface {
	// Put writes item. With requireAbsent an occupied key fails with AlreadyExists.
	Put(ctx context.Context, item Item, requireAbsent bool) error
	// Get returns nil, nil when no item exists at key.
	Get(ctx context.Context, key keys.Primary) (Item, error)
	// Query returns a lazy, restartable sequence. Ranging again re-executes it.
	Query(ctx context.Context, in QueryInput) iter.Seq2[Item, error]
	// Update applies spec and returns the item as it is after the write.
	Update(ctx context.Context, key keys.Primary, spec UpdateSpec) (Item, error)
	// Delete removes the item. With requireExists a missing key fails with NotFound.
	Delete(ctx context.Context, key keys.Primary, requireExists bool) error
}

// Collect drains a query sequence into a slice.
func Collect(seq iter.Seq2[Item, error]) ([]Item, error) {
	var items []Item
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
