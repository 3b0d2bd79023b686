// Package scheduler provides task dispatching with worker pool management.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of tasks processed concurrently.
	// Tasks beyond the cap stay queued until a worker frees up.
	GlobalMax int `yaml:"global_max" mapstructure:"global_max"`
	// TaskTimeout bounds one pipeline run. Zero means no limit.
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax:   10,
		TaskTimeout: 0,
	}
}

// limit returns the effective worker cap.
func (c *Config) limit() int {
	if c.GlobalMax < 1 {
		return 1
	}
	return c.GlobalMax
}
