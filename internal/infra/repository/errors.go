package repository

import "errors"

var (
	ErrRedisConnection    = errors.New("redis connection error")
	ErrInvalidRecordData  = errors.New("invalid reminder record data")
	ErrInvalidQueueData   = errors.New("invalid sync queue data")
	ErrInvalidHealthData  = errors.New("invalid health state data")
	ErrInvalidEventData   = errors.New("invalid error event data")
	ErrInvalidPayloadData = errors.New("invalid payload data")
)
