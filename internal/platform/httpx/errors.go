// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Rule maps a domain error to an RFC7807 status. Detail exposes err.Error()
// to the caller; internal failures keep it false.
type Rule struct {
	Target error
	Status int
	Title  string
	Detail bool
}

// Sentinel errors for transport-level failures.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("resource not found")
)

var baseRules = []Rule{
	{Target: ErrBadRequest, Status: http.StatusBadRequest, Title: "Bad Request", Detail: true},
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found", Detail: true},
}

// RespondError maps err against the supplied rules, falling back to 500.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	for _, rule := range append(rules, baseRules...) {
		if rule.Target == nil || !errors.Is(err, rule.Target) {
			continue
		}
		detail := ""
		if rule.Detail {
			detail = err.Error()
		}
		Problem(w, rule.Status, rule.Title, detail)
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
