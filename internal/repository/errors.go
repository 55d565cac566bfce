package repository

import "errors"

var (
	ErrFeedClosed = errors.New("feed closed")
	ErrBadCSV     = errors.New("malformed bar file")
	ErrBrokerOpen = errors.New("broker circuit open")
	ErrInvalidBar = errors.New("invalid bar message")
)
