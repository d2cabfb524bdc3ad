package task

import (
	"strconv"
)

// Config of a Manager. Pool sizes and the queue capacity are read once by
// Initialize; later UpdateConfig calls change the other flags only.
type Config struct {
	PreferCoroutines bool `hcl:"prefer_coroutines,optional"`
	EnableMonitoring bool `hcl:"enable_monitoring,optional"`
	EnableLogging    bool `hcl:"enable_logging,optional"`
	IOPoolSize       int  `hcl:"io_pool_size,optional"`
	ComputePoolSize  int  `hcl:"compute_pool_size,optional"`
	TaskPoolSize     int  `hcl:"task_pool_size,optional"`
	QueueCapacity    int  `hcl:"queue_capacity,optional"`
}

const (
	DEFAULT_IO_POOL_SIZE      = 4
	DEFAULT_COMPUTE_POOL_SIZE = 2
	DEFAULT_TASK_POOL_SIZE    = 2
	DEFAULT_QUEUE_CAPACITY    = 64
)

func DefaultConfig() Config {
	return Config{
		PreferCoroutines: true,
		EnableMonitoring: true,
		EnableLogging:    true,
		IOPoolSize:       DEFAULT_IO_POOL_SIZE,
		ComputePoolSize:  DEFAULT_COMPUTE_POOL_SIZE,
		TaskPoolSize:     DEFAULT_TASK_POOL_SIZE,
		QueueCapacity:    DEFAULT_QUEUE_CAPACITY,
	}
}

// normalized replaces non-positive sizes with the defaults
func (c Config) normalized() Config {
	if c.IOPoolSize <= 0 {
		c.IOPoolSize = DEFAULT_IO_POOL_SIZE
	}
	if c.ComputePoolSize <= 0 {
		c.ComputePoolSize = DEFAULT_COMPUTE_POOL_SIZE
	}
	if c.TaskPoolSize <= 0 {
		c.TaskPoolSize = DEFAULT_TASK_POOL_SIZE
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DEFAULT_QUEUE_CAPACITY
	}
	return c
}

func (c Config) String() string {
	return "prefer_coroutines=" + strconv.FormatBool(c.PreferCoroutines) +
		" monitoring=" + strconv.FormatBool(c.EnableMonitoring) +
		" logging=" + strconv.FormatBool(c.EnableLogging) +
		" pools(task/io/compute)=" + strconv.Itoa(c.TaskPoolSize) + "/" + strconv.Itoa(c.IOPoolSize) + "/" + strconv.Itoa(c.ComputePoolSize) +
		" queue=" + strconv.Itoa(c.QueueCapacity)
}
