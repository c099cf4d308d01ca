package dedup

// BucketStore groups identifiers by natural key for one scan window. It is
// owned by a single scanning goroutine and is not safe for concurrent use.
type BucketStore struct {
	buckets map[string][]ID
	ids     int
}

func NewBucketStore() *BucketStore {
	return &BucketStore{
		buckets: make(map[string][]ID),
	}
}

// Insert appends id to the bucket for key, preserving scan order.
func (b *BucketStore) Insert(key string, id ID) {
	b.buckets[key] = append(b.buckets[key], id)
	b.ids++
}

// Size returns the number of distinct keys.
func (b *BucketStore) Size() int {
	return len(b.buckets)
}

// Len returns the number of identifiers held across all buckets.
func (b *BucketStore) Len() int {
	return b.ids
}

// Bucket returns a copy of the identifiers stored under key.
func (b *BucketStore) Bucket(key string) []ID {
	ids := b.buckets[key]
	if ids == nil {
		return nil
	}
	out := make([]ID, len(ids))
	copy(out, ids)
	return out
}

// Drain hands every bucket to fn exactly once and leaves the store empty.
// Iteration order across keys is unspecified.
func (b *BucketStore) Drain(fn func(key string, ids []ID)) {
	buckets := b.buckets
	b.buckets = make(map[string][]ID)
	b.ids = 0
	for key, ids := range buckets {
		fn(key, ids)
	}
}
