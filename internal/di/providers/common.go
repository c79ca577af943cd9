package providers

import "time"

const (
	// defaultShutdownTimeout bounds graceful shutdown when the config leaves it unset.
	defaultShutdownTimeout = 30 * time.Second
)

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultShutdownTimeout
	}
	return d
}
