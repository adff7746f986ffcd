// Package errors derives low-cardinality error class names for metric tags
// and failure notifications.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"
)

// Classify maps an error to a stable class name. Context errors get fixed
// names; everything else is named after the innermost wrapped error's type,
// lowercased with package qualifiers flattened. Returns "" for nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.NewReplacer("*", "", ".", "_").Replace(t.String())
	name = strings.ToLower(name)
	if name == "" {
		return "unknown"
	}
	return name
}
