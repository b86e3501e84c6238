package writer

import (
	"log/slog"
)

// writeState is the progress of one write call.
type writeState int

const (
	stateIdle writeState = iota
	stateTransactionOpen
	stateValidated
	stateTranslated
	stateTicketHeld
	statePersisted
	stateNotified
	stateCommitted
	stateRolledBack
	stateTicketReleased
)

var writeStateNames = [...]string{
	stateIdle:            "idle",
	stateTransactionOpen: "transaction_open",
	stateValidated:       "validated",
	stateTranslated:      "translated",
	stateTicketHeld:      "ticket_held",
	statePersisted:       "persisted",
	stateNotified:        "notified",
	stateCommitted:       "committed",
	stateRolledBack:      "rolled_back",
	stateTicketReleased:  "ticket_released",
}

func (s writeState) String() string {
	if int(s) < len(writeStateNames) {
		return writeStateNames[s]
	}
	return "unknown"
}

// writeCall tracks one attempt of a write call for debug logging.
type writeCall struct {
	logger *slog.Logger
	state  writeState
}

func (w *writeCall) enter(s writeState) {
	w.logger.Debug("write state", "from", w.state.String(), "to", s.String())
	w.state = s
}
