// Package response defines the JSON envelope every wager API handler
// replies with. Round views, wallet balances and admin payloads all travel
// inside the same {code, data, msg} shape so web and mobile clients share
// one decoder.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the wire envelope. Code mirrors the HTTP status; Data is never
// null on the wire, handlers with nothing to return send an empty object.
type Body struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
	Msg  string      `json:"msg"`
}

// Success wraps data in a 200 envelope.
func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

// SuccessWithMsg is Success with a human-readable note, used where the
// outcome needs explaining (a pending withdrawal, a seeded default).
func SuccessWithMsg(c *gin.Context, data interface{}, msg string) {
	JSON(c, http.StatusOK, data, msg)
}

// Error sends an empty-data envelope carrying the failure message.
func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, nil, msg)
}

// JSON writes the envelope with an explicit status.
func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}
