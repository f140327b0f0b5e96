package rdc

import "errors"

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrInvalidConfig   = errors.New("invalid radio duty cycling configuration")
	ErrOwnSlot         = errors.New("destination falls on this node's own slot, frame dropped")
	ErrQueueFull       = errors.New("send queue for this slot is full")
	ErrSchedulerDown   = errors.New("slot clock is not running")
	ErrClosed          = errors.New("node is closed")
)
