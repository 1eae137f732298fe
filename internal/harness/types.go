package harness

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation matched.
	Pass bool `json:"pass"`

	// Explain is the compiled plan's explain text. Empty when the command
	// failed to compile.
	Explain string `json:"explain,omitempty"`

	// Code is the error code the command failed with, if any.
	Code string `json:"code,omitempty"`

	// Rows holds the executed command's rows rendered as text. Nil unless
	// the scenario expects rows.
	Rows [][]string `json:"rows,omitempty"`

	// Affected and FanOut report an executed write.
	Affected int64 `json:"affected,omitempty"`
	FanOut   int   `json:"fanout,omitempty"`

	// Errors contains one message per failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
