package store

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process Store used by the test suites. It evaluates
// the bson.M filter and update subset the domain services rely on:
// field equality (including array containment), $regex/$options, $in, $ne,
// $lt, $gt, $exists, $or, $and and the $set, $push ($each), $addToSet, $pull
// update operators with exclusion projections.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]bson.M
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]bson.M)}
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter bson.M, out interface{}, opts *FindOptions) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			return decodeDoc(project(doc, opts), out)
		}
	}
	return ErrNoDocuments
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter bson.M, out interface{}, opts *FindOptions) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []bson.M
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			results = append(results, project(doc, opts))
		}
	}
	if opts != nil && len(opts.Sort) > 0 {
		key := opts.Sort[0].Key
		desc := false
		if ord, ok := opts.Sort[0].Value.(int); ok && ord < 0 {
			desc = true
		}
		sort.SliceStable(results, func(i, j int) bool {
			less := compareValues(results[i][key], results[j][key]) < 0
			if desc {
				return !less
			}
			return less
		})
	}
	if opts != nil && opts.Skip > 0 {
		if opts.Skip >= int64(len(results)) {
			results = nil
		} else {
			results = results[opts.Skip:]
		}
	}
	if opts != nil && opts.Limit > 0 && int64(len(results)) > opts.Limit {
		results = results[:opts.Limit]
	}
	return decodeDocs(results, out)
}

func (s *MemoryStore) InsertOne(ctx context.Context, collection string, doc interface{}) (primitive.ObjectID, error) {
	m, err := toDoc(doc)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, ok := m["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		id = primitive.NewObjectID()
		m["_id"] = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], m)
	return id, nil
}

func (s *MemoryStore) UpdateOne(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	return s.update(collection, filter, update, true)
}

func (s *MemoryStore) UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	return s.update(collection, filter, update, false)
}

func (s *MemoryStore) update(collection string, filter, update bson.M, single bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched int64
	for _, doc := range s.collections[collection] {
		if !matches(doc, filter) {
			continue
		}
		if err := applyUpdate(doc, update); err != nil {
			return matched, err
		}
		matched++
		if single {
			break
		}
	}
	return matched, nil
}

func (s *MemoryStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return s.delete(collection, filter, true)
}

func (s *MemoryStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return s.delete(collection, filter, false)
}

func (s *MemoryStore) delete(collection string, filter bson.M, single bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []bson.M
	var deleted int64
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) && (!single || deleted == 0) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	s.collections[collection] = kept
	return deleted, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.collections[collection] {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

// toDoc round-trips a value through bson so stored documents carry the same
// types the driver would produce (bson.A, primitive.DateTime, ...).
func toDoc(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func normalize(v interface{}) interface{} {
	m, err := toDoc(bson.M{"v": v})
	if err != nil {
		return v
	}
	return m["v"]
}

func decodeDoc(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func decodeDocs(docs []bson.M, out interface{}) error {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("store: out must be a pointer to a slice")
	}
	slice := v.Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(docs))
	for _, d := range docs {
		elem := reflect.New(slice.Type().Elem())
		if err := decodeDoc(d, elem.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return nil
}

func project(doc bson.M, opts *FindOptions) bson.M {
	copied := make(bson.M, len(doc))
	for k, v := range doc {
		copied[k] = v
	}
	if opts == nil || opts.Projection == nil {
		return copied
	}
	for field, v := range opts.Projection {
		if n, ok := toFloat(v); ok && n == 0 {
			delete(copied, field)
		}
	}
	return copied
}

func matches(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$or":
			if !matchAny(doc, cond) {
				return false
			}
		case "$and":
			for _, sub := range toFilters(cond) {
				if !matches(doc, sub) {
					return false
				}
			}
		default:
			if !matchValue(lookup(doc, key), cond) {
				return false
			}
		}
	}
	return true
}

func matchAny(doc bson.M, cond interface{}) bool {
	for _, sub := range toFilters(cond) {
		if matches(doc, sub) {
			return true
		}
	}
	return false
}

func toFilters(cond interface{}) []bson.M {
	var filters []bson.M
	switch list := cond.(type) {
	case bson.A:
		for _, item := range list {
			if m, ok := item.(bson.M); ok {
				filters = append(filters, m)
			}
		}
	case []bson.M:
		filters = list
	}
	return filters
}

// lookup resolves a possibly dotted field path. When an intermediate value
// is an array of documents the remainder is resolved against each element
// and the matches are collected.
func lookup(doc bson.M, path string) interface{} {
	head, rest, dotted := strings.Cut(path, ".")
	val, ok := doc[head]
	if !ok {
		return nil
	}
	if !dotted {
		return val
	}
	switch inner := val.(type) {
	case bson.M:
		return lookup(inner, rest)
	case bson.A:
		var collected bson.A
		for _, elem := range inner {
			if m, ok := elem.(bson.M); ok {
				if v := lookup(m, rest); v != nil {
					collected = append(collected, v)
				}
			}
		}
		return collected
	}
	return nil
}

func matchValue(val, cond interface{}) bool {
	if condM, ok := cond.(bson.M); ok && hasOperator(condM) {
		for op, arg := range condM {
			switch op {
			case "$regex":
				pattern, _ := arg.(string)
				if opts, ok := condM["$options"].(string); ok && strings.Contains(opts, "i") {
					pattern = "(?i)" + pattern
				}
				re, err := regexp.Compile(pattern)
				if err != nil {
					return false
				}
				if !matchRegex(val, re) {
					return false
				}
			case "$options":
				continue
			case "$in":
				if !matchIn(val, arg) {
					return false
				}
			case "$ne":
				if equalOrContains(val, normalize(arg)) {
					return false
				}
			case "$lt":
				if compareValues(val, normalize(arg)) >= 0 {
					return false
				}
			case "$gt":
				if compareValues(val, normalize(arg)) <= 0 {
					return false
				}
			case "$exists":
				want, _ := arg.(bool)
				if (val != nil) != want {
					return false
				}
			default:
				return false
			}
		}
		return true
	}
	return equalOrContains(val, normalize(cond))
}

func hasOperator(m bson.M) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func matchRegex(val interface{}, re *regexp.Regexp) bool {
	switch v := val.(type) {
	case string:
		return re.MatchString(v)
	case bson.A:
		for _, elem := range v {
			if s, ok := elem.(string); ok && re.MatchString(s) {
				return true
			}
		}
	}
	return false
}

func matchIn(val, arg interface{}) bool {
	list, ok := normalize(arg).(bson.A)
	if !ok {
		return false
	}
	for _, candidate := range list {
		if equalOrContains(val, candidate) {
			return true
		}
	}
	return false
}

// equalOrContains follows Mongo semantics: an array field matches a scalar
// condition when any element equals it.
func equalOrContains(val, cond interface{}) bool {
	if valueEq(val, cond) {
		return true
	}
	if arr, ok := val.(bson.A); ok {
		for _, elem := range arr {
			if valueEq(elem, cond) {
				return true
			}
		}
	}
	return false
}

func valueEq(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Equal(bt)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	if oa, ok := a.(primitive.ObjectID); ok {
		if ob, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(oa.Hex(), ob.Hex())
		}
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func applyUpdate(doc bson.M, update bson.M) error {
	for op, fieldsAny := range update {
		fields, ok := fieldsAny.(bson.M)
		if !ok {
			return fmt.Errorf("store: malformed %s document", op)
		}
		switch op {
		case "$set":
			for field, v := range fields {
				doc[field] = normalize(v)
			}
		case "$push":
			for field, v := range fields {
				arr := toArray(doc[field])
				if each, ok := asEach(v); ok {
					arr = append(arr, each...)
				} else {
					arr = append(arr, normalize(v))
				}
				doc[field] = arr
			}
		case "$addToSet":
			for field, v := range fields {
				arr := toArray(doc[field])
				elem := normalize(v)
				if !equalOrContains(arr, elem) {
					arr = append(arr, elem)
				}
				doc[field] = arr
			}
		case "$pull":
			for field, cond := range fields {
				var kept bson.A
				for _, elem := range toArray(doc[field]) {
					if pullMatches(elem, cond) {
						continue
					}
					kept = append(kept, elem)
				}
				if kept == nil {
					kept = bson.A{}
				}
				doc[field] = kept
			}
		default:
			return fmt.Errorf("store: unsupported update operator %q", op)
		}
	}
	return nil
}

func toArray(v interface{}) bson.A {
	if arr, ok := v.(bson.A); ok {
		return arr
	}
	return bson.A{}
}

func asEach(v interface{}) (bson.A, bool) {
	m, ok := v.(bson.M)
	if !ok {
		return nil, false
	}
	each, ok := m["$each"]
	if !ok {
		return nil, false
	}
	arr, ok := normalize(each).(bson.A)
	return arr, ok
}

// pullMatches treats a document condition as a partial match against array
// elements, anything else as plain equality.
func pullMatches(elem, cond interface{}) bool {
	if condM, ok := cond.(bson.M); ok && !hasOperator(condM) {
		elemM, ok := normalize(elem).(bson.M)
		if !ok {
			return false
		}
		for k, v := range condM {
			if !valueEq(elemM[k], normalize(v)) {
				return false
			}
		}
		return true
	}
	return valueEq(elem, normalize(cond))
}
