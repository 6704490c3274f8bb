// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctask

import (
	"errors"
)

// ErrInvalidThreadPoolSize is returned for a pool size outside [1, MaxThreadPoolSize].
var ErrInvalidThreadPoolSize = errors.New("asynctask: invalid thread pool size")
