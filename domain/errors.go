package domain

import "errors"

var (
	ErrPollNotFound     = errors.New("poll not found")
	ErrPollClosed       = errors.New("poll is closed")
	ErrAlreadyResponded = errors.New("student already responded to this poll")
	ErrInvalidOption    = errors.New("selected option is out of range")
	ErrInvalidPoll      = errors.New("poll needs a question, at least two options and a positive time limit")
)
