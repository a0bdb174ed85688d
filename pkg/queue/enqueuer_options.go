package queue

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue      string
	defaultMaxRetries int8
	routes            map[string]string
}

// WithDefaultQueue sets the default queue name
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultMaxRetries sets the maximum number of retries (0-10)
// Capped at 10 to prevent infinite retry loops on persistent failures
func WithDefaultMaxRetries(maxRetries int8) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if maxRetries >= 0 && maxRetries <= 10 {
			o.defaultMaxRetries = maxRetries
		}
	}
}

// WithRoute sends envelopes of the named process to a dedicated queue.
func WithRoute(process, queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if process != "" && queue != "" {
			o.routes[process] = queue
		}
	}
}
