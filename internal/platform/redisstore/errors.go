package redisstore

import "errors"

// ErrConnection is returned when the Redis server cannot be reached
var ErrConnection = errors.New("failed to connect to redis")
