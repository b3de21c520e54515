package httpx

import (
	"errors"
	"net/http"
)

// Status pairs a sentinel error with the HTTP status and title it maps to.
// Handler packages declare one table for their domain taxonomy and pass it
// to RespondError.
type Status struct {
	Err   error
	Code  int
	Title string
}

// RespondError walks the table in order and writes the first match as a
// problem response. Unmatched errors become an opaque 500; the caller is
// expected to have logged the detail already.
func RespondError(w http.ResponseWriter, err error, table []Status) {
	for _, s := range table {
		if errors.Is(err, s.Err) {
			Problem(w, s.Code, s.Title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
