package main

import (
	"time"

	"github.com/rxtech-lab/argo-batch/internal/server"
)

// StatusMsg carries a fresh /status document.
type StatusMsg struct {
	Status server.Status
}

// FetchErrorMsg indicates the status endpoint could not be read.
type FetchErrorMsg struct {
	Err error
}

// TickMsg triggers the next poll.
type TickMsg time.Time
