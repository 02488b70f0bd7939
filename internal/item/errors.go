package item

import "errors"

// ErrItemNotFound is returned when an operation addresses an id that is not
// in the store.
var ErrItemNotFound = errors.New("item not found")
