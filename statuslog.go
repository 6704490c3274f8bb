// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package renderloop

import (
	"github.com/joeycumines/logiface"
)

// updateStatusLogger logs why the scene engine wants to keep updating,
// every interval frames. Render goroutine only.
type updateStatusLogger struct {
	logger   *logiface.Logger[logiface.Event]
	interval uint32
	count    uint32
}

func (l *updateStatusLogger) log(status KeepUpdating) {
	if l == nil || l.interval == 0 {
		return
	}
	l.count++
	if l.count%l.interval != 0 {
		return
	}
	l.logger.Info().
		Bool(`keep_updating`, status != KeepUpdatingNotRequested).
		Str(`reasons`, status.String()).
		Log(`renderloop: update status`)
}
