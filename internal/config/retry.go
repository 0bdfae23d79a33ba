package config

import "github.com/ostraco/sendonce/retry"

// Policy converts the retry section into a retry.Policy. Unset fields keep
// the library defaults so a bare deployment still backs off sensibly.
func (c RetryConfig) Policy() retry.Policy {
	p := retry.DefaultPolicy
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.BaseDelay > 0 {
		p.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay
	}
	if c.Jitter > 0 {
		p.Jitter = c.Jitter
	}
	return p
}
