/*Package core provides the shared kinds of the yrest backend: the error
taxonomy exchanged between the storage layer and the dispatcher, the
uniform response envelope and the collaborator interfaces.
*/
package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error the way handlers declare them: by name.
type Kind string

// The error kinds of the backend and their HTTP codes.
const (
	KindValidation       Kind = "ValidationError"
	KindUnauthorized     Kind = "Unauthorized"
	KindNotFound         Kind = "NotFound"
	KindDuplicateKey     Kind = "DuplicateKey"
	KindURIAlreadyExists Kind = "URIAlreadyExists"
	KindExists           Kind = "ExistException"
	KindAlreadyRequested Kind = "AlreadyRequested"
	KindChildAmbiguity   Kind = "ChildAmbiguity"
	KindInternal         Kind = "InternalError"
)

// Status returns the HTTP status code of the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateKey, KindURIAlreadyExists:
		return http.StatusConflict
	case KindExists:
		return http.StatusUnprocessableEntity
	case KindAlreadyRequested:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified backend error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Errorf builds a classified error.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error; unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusOf maps any error to its HTTP status code.
func StatusOf(err error) int { return KindOf(err).Status() }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsDuplicateKey reports whether err is a uniqueness violation.
func IsDuplicateKey(err error) bool {
	k := KindOf(err)
	return k == KindDuplicateKey || k == KindURIAlreadyExists
}

// ChildAmbiguity builds the error raised when create_child cannot pick
// a unique child-list field. The message enumerates the candidates.
func ChildAmbiguity(parentType, parentName, childType string, candidates []string) *Error {
	if len(candidates) == 0 {
		return Errorf(KindChildAmbiguity, "%s (%s) can't store %s", parentType, parentName, childType)
	}
	last := candidates[len(candidates)-1]
	return Errorf(KindChildAmbiguity,
		"%s (%s) defines %s and %s that can store %s. Use the as parameter to disambiguate it",
		parentType, parentName, strings.Join(candidates[:len(candidates)-1], ", "), last, childType)
}
