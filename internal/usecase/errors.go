package usecase

import "errors"

// ErrOutOfOrder rejects a snapshot older than the previously processed one.
var ErrOutOfOrder = errors.New("snapshot out of order")
