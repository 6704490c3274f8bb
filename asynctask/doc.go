// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package asynctask runs background work on a fixed pool of worker
// goroutines and delivers completion callbacks either on the worker or on
// the event thread.
//
// A [Task] moves through four queues, each guarded by its own mutex:
//
//	not-ready ──NotifyToTaskReady──▶ waiting ──worker pull──▶ running ──▶ completed
//
// Workers pull the oldest ready task they are allowed to run. A number of
// workers (the low priority slots) may run [PriorityLow] tasks, and only while
// no [PriorityHigh] task is waiting. Completed tasks are handed back to the
// event thread through a coalescing trigger, where callbacks owed to the event
// thread are run by [Manager.TasksCompleted].
//
// [Manager.SetCompletedCallback] registers an aggregate callback that fires
// once every task matching a mask, at the time of registration, has finished.
//
// Lock order is waiting, then running, then completed. The callback trace
// and execute mutexes are only ever taken innermost.
package asynctask
