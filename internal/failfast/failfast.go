// Package failfast ports pkg/core/failfast's argument-validation helpers,
// used by Builder and Machine constructors to back the ArgumentType error
// kind with descriptive panics for programmer errors (as opposed to the
// runtime transition errors returned as values).
package failfast

import (
	"fmt"
	"reflect"
)

// If panics with message (formatted with args) if condition is false.
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("fail-fast: "+message, args...))
	}
}

// NotEmpty panics if s is the empty string, naming the argument.
func NotEmpty(s, name string) {
	if s == "" {
		panic(fmt.Errorf("fail-fast: %s must not be empty", name))
	}
}

// NotNil panics if v is nil, naming the argument. Mirrors
// pkg/core/failfast.NotNil's use of reflection to also catch typed nils.
func NotNil(v interface{}, name string) {
	if v == nil {
		panic(fmt.Errorf("fail-fast: %s is nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Errorf("fail-fast: %s is nil", name))
		}
	}
}
