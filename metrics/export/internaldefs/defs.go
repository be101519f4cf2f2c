package internaldefs

import (
	"github.com/MrEthical07/tokenguard"
	internalmetrics "github.com/MrEthical07/tokenguard/internal/metrics"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// BucketCount is the number of latency buckets, +Inf included.
const BucketCount = internalmetrics.HistogramBucketCount

var CounterDefs = []CounterDef{
	{ID: tokenguard.MetricValidateSuccess, Name: "tokenguard_validate_success_total", Help: "Tokens accepted by Validate or ValidateForConsumption."},
	{ID: tokenguard.MetricValidateRejected, Name: "tokenguard_validate_rejected_total", Help: "Tokens rejected by Validate or ValidateForConsumption."},
	{ID: tokenguard.MetricCacheHit, Name: "tokenguard_cache_hit_total", Help: "Validation cache hits."},
	{ID: tokenguard.MetricCacheMiss, Name: "tokenguard_cache_miss_total", Help: "Validation cache misses."},
	{ID: tokenguard.MetricTokenBlacklistHit, Name: "tokenguard_token_blacklist_hit_total", Help: "Validations rejected by the token blacklist."},
	{ID: tokenguard.MetricUserBlacklistHit, Name: "tokenguard_user_blacklist_hit_total", Help: "Validations rejected by the user blacklist."},
	{ID: tokenguard.MetricTrustRejected, Name: "tokenguard_trust_rejected_total", Help: "Validations rejected by the cross-service trust policy."},
	{ID: tokenguard.MetricReplayDetected, Name: "tokenguard_replay_detected_total", Help: "Consumption attempts of an already consumed token id."},
	{ID: tokenguard.MetricConsumeSuccess, Name: "tokenguard_consume_success_total", Help: "Successful single-use consumptions."},
	{ID: tokenguard.MetricRefreshSuccess, Name: "tokenguard_refresh_success_total", Help: "Successful refresh operations."},
	{ID: tokenguard.MetricRefreshFailure, Name: "tokenguard_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: tokenguard.MetricAccessIssued, Name: "tokenguard_access_issued_total", Help: "Issued access tokens."},
	{ID: tokenguard.MetricRefreshIssued, Name: "tokenguard_refresh_issued_total", Help: "Issued refresh tokens."},
	{ID: tokenguard.MetricServiceIssued, Name: "tokenguard_service_issued_total", Help: "Issued service tokens."},
	{ID: tokenguard.MetricTokenBlacklisted, Name: "tokenguard_token_blacklisted_total", Help: "Token revocations."},
	{ID: tokenguard.MetricUserBlacklisted, Name: "tokenguard_user_blacklisted_total", Help: "User revocations."},
	{ID: tokenguard.MetricStoreUnavailable, Name: "tokenguard_store_unavailable_total", Help: "Blacklist or replay store calls that failed closed."},
	{ID: tokenguard.MetricIDTokenAccepted, Name: "tokenguard_id_token_accepted_total", Help: "External identity tokens accepted."},
	{ID: tokenguard.MetricIDTokenRejected, Name: "tokenguard_id_token_rejected_total", Help: "External identity tokens rejected."},
}

var HistogramDefs = []HistogramDef{
	{ID: tokenguard.MetricValidateLatency, Name: "tokenguard_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds of the latency buckets in seconds.
var HistogramBounds = []string{
	"0.001",
	"0.002",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as metric name suffixes.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_002",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling gaps.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
