package redis

// All keys are prefixed with "chunkjob:" to avoid collisions.
const keyPrefix = "chunkjob:"

// jobKey returns the key for a job record: chunkjob:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// lockKey returns the key for a job's step lock: chunkjob:lock:{id}
func lockKey(id string) string { return keyPrefix + "lock:" + id }
