// Package response writes the {code,msg,data} envelope every REST endpoint
// answers with. Business failures travel in code; the HTTP status stays 200.
package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/jobchat/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: errcode.ErrSuccess.Code,
		Msg:  errcode.ErrSuccess.Msg,
		Data: data,
	})
}

// Error sends the business code carried by err. Anything else is logged and
// answered as an internal error without its details.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	var e *errcode.Error
	if !errors.As(err, &e) {
		log.CtxError(ctx, "unhandled error: path=%s, error=%v", c.Path(), err)
		e = errcode.ErrInternalServer
	}
	ErrorWithCode(ctx, c, e)
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	c.JSON(http.StatusOK, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// Abort sends e and stops the handler chain
func Abort(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	ErrorWithCode(ctx, c, e)
	c.Abort()
}
