package dispatch

import (
	"errors"

	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/timecontrol"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var (
	errUnauthenticated  = errors.New("no valid identity on this connection")
	errAlreadyInSession = errors.New("already in a session")
	errBadPayload       = errors.New("malformed payload")
	errUnknownEvent     = errors.New("unknown event type")
)

// toDomainError maps package sentinels onto the wire taxonomy.
func toDomainError(err error) arenadto.DomainError {
	var de arenadto.DomainError
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, session.ErrNotFound):
		return arenadto.DomainError{Code: arenadto.CodeNotFound, Message: "room not found"}
	case errors.Is(err, session.ErrNotJoinable):
		return arenadto.DomainError{Code: arenadto.CodeNotJoinable, Message: "room is full or already started"}
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		return arenadto.DomainError{Code: arenadto.CodeAlreadyQueued, Message: "already searching for a match"}
	case errors.Is(err, errAlreadyInSession):
		return arenadto.DomainError{Code: arenadto.CodeAlreadyInSession, Message: "leave your current room first"}
	case errors.Is(err, errUnauthenticated):
		return arenadto.DomainError{Code: arenadto.CodeUnauthenticated, Message: "authentication required"}
	case errors.Is(err, presence.ErrLookupFailed):
		return arenadto.DomainError{Code: arenadto.CodeExternalLookupFailed, Message: "rating unavailable, using default", Retryable: true}
	case errors.Is(err, timecontrol.ErrUnknown):
		return arenadto.DomainError{Code: arenadto.CodeBadRequest, Message: "unknown time control"}
	case errors.Is(err, errBadPayload), errors.Is(err, errUnknownEvent), errors.Is(err, session.ErrInvalidSide):
		return arenadto.DomainError{Code: arenadto.CodeBadRequest, Message: err.Error()}
	default:
		return arenadto.DomainError{Code: arenadto.CodeInternal, Message: "internal error"}
	}
}
