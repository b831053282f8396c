package domain

// ValidationError reports a rejected input field. The boundary maps it to a
// 400 response.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }
