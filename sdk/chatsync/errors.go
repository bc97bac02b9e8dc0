package chatsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbeoliero/jobchat/sdk"
)

var (
	// ErrTransportUnavailable means the push channel or the API could not be
	// reached. Callers degrade to manual refresh.
	ErrTransportUnavailable = errors.New("chatsync: transport unavailable")
	// ErrInvalidParticipant is returned when resolving a conversation with
	// oneself or with an unknown user.
	ErrInvalidParticipant = errors.New("chatsync: invalid participant")
	// ErrDuplicateSubmission is reported by the backend when a retried write
	// already took effect. Callers treat it as success.
	ErrDuplicateSubmission = errors.New("chatsync: duplicate submission")
	// ErrStaleReference is returned when acting on a conversation or message
	// the backend no longer knows.
	ErrStaleReference = errors.New("chatsync: stale reference")
	// ErrSessionClosed is returned by every operation after Session.Close.
	ErrSessionClosed = errors.New("chatsync: session closed")
)

// classify maps backend errors onto the package sentinels. API errors that
// have no sentinel are returned unchanged so callers can inspect sdk codes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sdk.ErrRequestFailed) {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	switch sdk.CodeOf(err) {
	case sdk.CodeInvalidParticipant, sdk.CodeUserNotFound:
		return fmt.Errorf("%w: %w", ErrInvalidParticipant, err)
	case sdk.CodeAlreadyRead, sdk.CodeMessageDuplicate:
		return fmt.Errorf("%w: %w", ErrDuplicateSubmission, err)
	case sdk.CodeConvNotFound, sdk.CodeMessageNotFound, sdk.CodeNotParticipant:
		return fmt.Errorf("%w: %w", ErrStaleReference, err)
	case sdk.CodeInternalServer, sdk.CodeTooManyRequests:
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return err
}

// isTransient reports whether an operation failing with err may be retried
func isTransient(err error) bool {
	return errors.Is(err, ErrTransportUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
