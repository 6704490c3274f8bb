// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package mainloop

import (
	"fmt"
	"log"
)

// logCritical reports a failure that stops the loop. Falls back to the
// standard logger, so the failure is never silent.
func (l *Loop) logCritical(msg string, err error) {
	if l.logger == nil {
		log.Printf("CRITICAL: %s: %v", msg, err)
		return
	}
	l.logger.Crit().Err(err).Log(msg)
}

func (l *Loop) logPanic(msg string, r any) {
	if l.logger == nil {
		log.Printf("ERROR: %s: %v", msg, r)
		return
	}
	l.logger.Err().Str(`panic`, fmt.Sprint(r)).Log(msg)
}
