package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by snapshotting backends. Each bucket holds one entity
// map of the Snapshot encoded as JSON.
const (
	BucketIngredients = "ingredients"
	BucketCocktails   = "cocktails"
	BucketInventories = "inventories"
	BucketResolutions = "resolutions"
)

// Buckets lists every snapshot bucket in persistence order.
var Buckets = []string{BucketIngredients, BucketCocktails, BucketInventories, BucketResolutions}

// EncodeBucket marshals one bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketIngredients:
		return json.Marshal(s.Ingredients)
	case BucketCocktails:
		return json.Marshal(s.Cocktails)
	case BucketInventories:
		return json.Marshal(s.Inventories)
	case BucketResolutions:
		return json.Marshal(s.Resolutions)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals payload into the matching snapshot field. Unknown
// buckets are ignored so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketIngredients:
		target = &s.Ingredients
	case BucketCocktails:
		target = &s.Cocktails
	case BucketInventories:
		target = &s.Inventories
	case BucketResolutions:
		target = &s.Resolutions
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
