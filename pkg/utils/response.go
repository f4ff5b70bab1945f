package utils

// ResponseData is the JSON envelope every REST endpoint answers with.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded hands err to the recovery middleware, which renders it.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
