package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by snapshotting drivers, one row per bucket.
const (
	BucketConfig         = "config"
	BucketDatasets       = "datasets"
	BucketPurchases      = "purchases"
	BucketBalances       = "balances"
	BucketLedger         = "ledger"
	BucketEvents         = "events"
	BucketAccessRequests = "access_requests"
)

// Buckets lists every snapshot bucket in a stable order.
var Buckets = []string{
	BucketConfig,
	BucketDatasets,
	BucketPurchases,
	BucketBalances,
	BucketLedger,
	BucketEvents,
	BucketAccessRequests,
}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case BucketConfig:
		return &s.Config, true
	case BucketDatasets:
		return &s.Datasets, true
	case BucketPurchases:
		return &s.Purchases, true
	case BucketBalances:
		return &s.Balances, true
	case BucketLedger:
		return &s.Ledger, true
	case BucketEvents:
		return &s.Events, true
	case BucketAccessRequests:
		return &s.AccessRequests, true
	}
	return nil, false
}

// EncodeBuckets serializes each bucket of the snapshot as JSON.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		target, _ := s.bucketTarget(bucket)
		data, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from stored bucket payloads. Unknown
// buckets and empty payloads are skipped.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var snapshot Snapshot
	for bucket, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		target, ok := snapshot.bucketTarget(bucket)
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	return snapshot, nil
}
