package domain

// SinkType selects what a subscription does with delivered transactions.
type SinkType string

const (
	SinkLog   SinkType = "log"
	SinkStore SinkType = "store"
)

// CheckpointBackend selects where subscription positions are persisted.
type CheckpointBackend string

const (
	CheckpointMemory   CheckpointBackend = "memory"
	CheckpointRedis    CheckpointBackend = "redis"
	CheckpointPostgres CheckpointBackend = "postgres"
)
