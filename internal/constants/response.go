package constants

// Standard Response Field Keys
const (
	ResponseFieldMessage = "message"
	ResponseFieldCode    = "code"
	ResponseFieldDetails = "details"
	ResponseFieldData    = "data"
)

// BuildErrorResponse is the body every failed request returns.
func BuildErrorResponse(message string, details any) map[string]any {
	response := map[string]any{
		ResponseFieldMessage: message,
	}

	if details != nil {
		response[ResponseFieldDetails] = details
	}

	return response
}

// BuildCodedErrorResponse adds a machine-readable domain code.
func BuildCodedErrorResponse(code, message string, details any) map[string]any {
	response := BuildErrorResponse(message, details)
	response[ResponseFieldCode] = code
	return response
}

func BuildSuccessResponse(message string) map[string]any {
	return map[string]any{
		ResponseFieldMessage: message,
	}
}

func BuildDataResponse(message string, data any) map[string]any {
	return map[string]any{
		ResponseFieldMessage: message,
		ResponseFieldData:    data,
	}
}
