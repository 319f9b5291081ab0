package gmail

import "errors"

// ErrNotFound is returned when a message ID does not exist in the
// user's mailbox.
var ErrNotFound = errors.New("email not found")
