package gateway

import (
	"errors"

	"github.com/mbeoliero/jobchat/pkg/errcode"
)

var (
	ErrConnClosed       = errors.New("gateway: connection closed")
	ErrWriteChannelFull = errors.New("gateway: write channel full")
	ErrPanic            = errors.New("gateway: read loop panic")
)

// replyCode maps a request error onto the code and message sent back in
// the response frame. Errors without a business code are internal.
func replyCode(err error) (int, string) {
	if err == nil {
		return errcode.ErrSuccess.Code, ""
	}
	var e *errcode.Error
	if errors.As(err, &e) {
		return e.Code, e.Msg
	}
	return errcode.ErrInternalServer.Code, err.Error()
}
