package transport

import (
	"github.com/cenkalti/backoff/v4"
)

// RetryOptions bounds how a dial or negotiation round-trip is retried.
type RetryOptions struct {
	MaxAttempts uint64 // 0 means unlimited (bounded only by the exponential backoff's own max elapsed time)
}

// WithRetry runs op with exponential backoff, the same pattern
// make-os-kit's object fetcher and DHT announcer use around flaky
// network round-trips (remote/fetcher/object_fetcher.go,
// dht/announcer/announcer.go): only transient Kinds are worth retrying,
// a KindConflict or KindCorrupt should surface immediately instead.
func WithRetry(op func() error, opts RetryOptions) error {
	bo := backoff.NewExponentialBackOff()
	var b backoff.BackOff = bo
	if opts.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(bo, opts.MaxAttempts-1)
	}
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func isRetryable(err error) bool {
	switch kindOf(err) {
	case kindIO, kindTimeout, kindProtocol:
		return true
	default:
		return false
	}
}
