package tools

import "encoding/json"

// Result is the unified return type from tool execution. Payload carries
// the structured output; ForLLM is its serialized form.
type Result struct {
	ForLLM  string                 `json:"for_llm"`
	Payload map[string]interface{} `json:"-"`
	IsError bool                   `json:"is_error"`
	Err     error                  `json:"-"`
}

// JSONResult marshals a structured payload.
func JSONResult(payload map[string]interface{}) *Result {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ErrorResult("marshal result: " + err.Error())
	}
	return &Result{ForLLM: string(data), Payload: payload}
}

// ErrorResult marks a failed execution. The message is the whole output;
// errors never escape as panics or Go errors across the tool boundary.
func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
