package controller

import (
	"errors"
	"fmt"
)

var (
	QueueFullError        = errors.New("queue is full-")
	NotFoundError         = errors.New("batch not found-")
	AlreadyTerminalError  = errors.New("batch already terminal-")
	NotYetCompleteError   = errors.New("batch not yet complete-")
	InvalidBatchError     = errors.New("invalid batch-")
	TemplateNotFoundError = errors.New("template or test case not found-")
)

func makeTemplateNotFoundError(message string) error {
	return fmt.Errorf("%w%s", TemplateNotFoundError, message)
}

func makeInvalidBatchError(message string) error {
	return fmt.Errorf("%w%s", InvalidBatchError, message)
}

func makeQueueFullError(depth, ceiling int) error {
	return fmt.Errorf("%wdepth %d exceeds ceiling %d", QueueFullError, depth, ceiling)
}

func makeNotFoundError(batchID string) error {
	return fmt.Errorf("%w%s", NotFoundError, batchID)
}

func makeAlreadyTerminalError(batchID string) error {
	return fmt.Errorf("%w%s", AlreadyTerminalError, batchID)
}

func makeNotYetCompleteError(batchID string) error {
	return fmt.Errorf("%w%s", NotYetCompleteError, batchID)
}
