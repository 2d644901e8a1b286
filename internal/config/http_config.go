package config

import "time"

type HTTP struct {
	timeout time.Duration
}

var _ HTTPConfig = HTTP{}

func (h HTTP) GetHTTPTimeout() time.Duration {
	if h.timeout <= 0 {
		return 10 * time.Second
	}
	return h.timeout
}
