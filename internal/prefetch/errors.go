package prefetch

import "errors"

// ErrNoRequest means the slot holds no request for the asked question.
var ErrNoRequest = errors.New("no request for this question on the slot")
