// Package memory provides an in-process implementation of repository.Store.
// It mirrors the conditional semantics of the DynamoDB backend and is used by
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
	appErrors "strivesync-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Store keeps items in a map guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	schema repository.Schema
	items  map[keys.Primary]repository.Item

	// For testing error scenarios
	shouldFailOn map[string]error
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store for schema.
func NewStore(schema repository.Schema) *Store {
	return &Store{
		schema:       schema,
		items:        make(map[keys.Primary]repository.Item),
		shouldFailOn: make(map[string]error),
	}
}

// SetError makes every call to method (Put, Get, Query, Update, Delete) fail
// with err until ClearErrors is called.
func (s *Store) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (s *Store) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFailOn = make(map[string]error)
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) checkError(method string) error {
	if err, exists := s.shouldFailOn[method]; exists {
		return err
	}
	return nil
}

func (s *Store) Put(ctx context.Context, item repository.Item, requireAbsent bool) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewUnavailableError("Put", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkError("Put"); err != nil {
		return err
	}

	key, err := s.primaryOf(item)
	if err != nil {
		return err
	}
	if _, exists := s.items[key]; exists && requireAbsent {
		return appErrors.NewAlreadyExistsError("item", key.PK+"/"+key.SK)
	}

	s.items[key] = maps.Clone(item)
	return nil
}

func (s *Store) Get(ctx context.Context, key keys.Primary) (repository.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.NewUnavailableError("Get", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkError("Get"); err != nil {
		return nil, err
	}

	item, exists := s.items[key]
	if !exists {
		return nil, nil
	}
	return maps.Clone(item), nil
}

func (s *Store) Query(ctx context.Context, in repository.QueryInput) iter.Seq2[repository.Item, error] {
	return func(yield func(repository.Item, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, appErrors.NewUnavailableError("Query", err))
			return
		}

		partitionAttr, sortAttr := s.schema.PartitionAttr, s.schema.SortAttr
		if in.Index != "" {
			idx, ok := s.schema.Index(in.Index)
			if !ok {
				yield(nil, appErrors.NewInternalError(fmt.Sprintf("unknown index %q", in.Index)))
				return
			}
			partitionAttr, sortAttr = idx.PartitionAttr, idx.SortAttr
		}

		matches, err := s.snapshot(in, partitionAttr, sortAttr)
		if err != nil {
			yield(nil, err)
			return
		}

		for i, item := range matches {
			if in.Limit > 0 && int32(i) >= in.Limit {
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// snapshot copies the matching items in index order.
func (s *Store) snapshot(in repository.QueryInput, partitionAttr, sortAttr string) ([]repository.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkError("Query"); err != nil {
		return nil, err
	}

	type match struct {
		sort string
		key  keys.Primary
		item repository.Item
	}
	var matches []match
	for key, item := range s.items {
		if stringAttr(item, partitionAttr) != in.Partition {
			continue
		}
		sort := ""
		if sortAttr != "" {
			v, ok := item[sortAttr]
			if !ok {
				continue
			}
			sort = stringValue(v)
			if !strings.HasPrefix(sort, in.SortPrefix) {
				continue
			}
		}
		matches = append(matches, match{sort: sort, key: key, item: maps.Clone(item)})
	}

	slices.SortFunc(matches, func(a, b match) int {
		if c := strings.Compare(a.sort, b.sort); c != 0 {
			return c
		}
		if c := strings.Compare(a.key.PK, b.key.PK); c != 0 {
			return c
		}
		return strings.Compare(a.key.SK, b.key.SK)
	})
	if !in.ScanForward {
		slices.Reverse(matches)
	}

	items := make([]repository.Item, len(matches))
	for i, m := range matches {
		items[i] = m.item
	}
	return items, nil
}

func (s *Store) Update(ctx context.Context, key keys.Primary, spec repository.UpdateSpec) (repository.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.NewUnavailableError("Update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkError("Update"); err != nil {
		return nil, err
	}

	current, exists := s.items[key]
	if !exists && spec.RequireExists {
		return nil, appErrors.NewNotFoundError("item", key.PK+"/"+key.SK)
	}

	next := maps.Clone(current)
	if next == nil {
		next = repository.Item{}
	}
	next[s.schema.PartitionAttr] = &types.AttributeValueMemberS{Value: key.PK}
	next[s.schema.SortAttr] = &types.AttributeValueMemberS{Value: key.SK}

	for name, value := range spec.Set {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, appErrors.Wrapf(err, "marshal attribute %s", name)
		}
		next[name] = av
	}
	for _, name := range spec.Remove {
		delete(next, name)
	}

	if c := spec.Counter; c != nil {
		value, err := s.applyCounter(current, *c)
		if err != nil {
			if !exists {
				return nil, appErrors.NewNotFoundError("item", key.PK+"/"+key.SK)
			}
			return nil, err
		}
		next[c.Attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)}
	}

	for name, change := range spec.Indexes {
		idx, ok := s.schema.Index(name)
		if !ok {
			return nil, appErrors.NewInternalError(fmt.Sprintf("unknown index %q", name))
		}
		switch change.Action {
		case repository.IndexAdd:
			if change.Key == nil {
				return nil, appErrors.NewInternalError("index add without key")
			}
			next[idx.PartitionAttr] = &types.AttributeValueMemberS{Value: change.Key.PK}
			if idx.SortAttr != "" {
				next[idx.SortAttr] = &types.AttributeValueMemberS{Value: change.Key.SK}
			}
		case repository.IndexRemove:
			delete(next, idx.PartitionAttr)
			if idx.SortAttr != "" {
				delete(next, idx.SortAttr)
			}
		}
	}

	s.items[key] = next
	return maps.Clone(next), nil
}

// applyCounter evaluates the counter guards against the stored item and
// returns the new value.
func (s *Store) applyCounter(current repository.Item, c repository.CounterChange) (int64, error) {
	value, present, err := numberAttr(current, c.Attr)
	if err != nil {
		return 0, err
	}

	if c.Delta > 0 && c.CeilingAttr != "" {
		ceiling, ok, err := numberAttr(current, c.CeilingAttr)
		if err != nil {
			return 0, err
		}
		if ok && ceiling > 0 && present && value >= ceiling {
			return 0, appErrors.NewConditionFailedError(fmt.Sprintf("%s has reached %s", c.Attr, c.CeilingAttr))
		}
	}
	if c.Delta < 0 && c.Floor && (!present || value+c.Delta < 0) {
		return 0, appErrors.NewConditionFailedError(fmt.Sprintf("%s cannot go below zero", c.Attr))
	}

	return value + c.Delta, nil
}

func (s *Store) Delete(ctx context.Context, key keys.Primary, requireExists bool) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewUnavailableError("Delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkError("Delete"); err != nil {
		return err
	}

	if _, exists := s.items[key]; !exists {
		if requireExists {
			return appErrors.NewNotFoundError("item", key.PK+"/"+key.SK)
		}
		return nil
	}
	delete(s.items, key)
	return nil
}

func (s *Store) primaryOf(item repository.Item) (keys.Primary, error) {
	key := keys.Primary{
		PK: stringAttr(item, s.schema.PartitionAttr),
		SK: stringAttr(item, s.schema.SortAttr),
	}
	if key.PK == "" {
		return keys.Primary{}, appErrors.NewInvalidKeyInputError(s.schema.PartitionAttr)
	}
	if key.SK == "" {
		return keys.Primary{}, appErrors.NewInvalidKeyInputError(s.schema.SortAttr)
	}
	return key, nil
}

func stringAttr(item repository.Item, name string) string {
	v, ok := item[name]
	if !ok {
		return ""
	}
	return stringValue(v)
}

func stringValue(v types.AttributeValue) string {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value
	case *types.AttributeValueMemberN:
		return tv.Value
	default:
		return ""
	}
}

func numberAttr(item repository.Item, name string) (int64, bool, error) {
	v, ok := item[name]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false, appErrors.Wrapf(err, "attribute %s is not an integer", name)
	}
	return value, true, nil
}
