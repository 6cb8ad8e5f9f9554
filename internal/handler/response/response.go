package response

const (
	CodeSuccess    = 0
	CodeUnexpected = -1
)

type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func New(code int, msg string, data interface{}) *Response {
	return &Response{
		Code: code,
		Msg:  msg,
		Data: data,
	}
}

func (r *Response) With(code int) *Response {
	r.Code = code
	return r
}

func Success(data interface{}) *Response {
	return New(CodeSuccess, "success", data)
}

func BusinessError(msg string, data interface{}) *Response {
	return New(CodeUnexpected, msg, data)
}

func UnexpectedError() *Response {
	return New(CodeUnexpected, "internal server error", nil)
}
