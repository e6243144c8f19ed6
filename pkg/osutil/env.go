package osutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DotEnvFile is the file loaded by [LoadDotEnv] when no path is given.
const DotEnvFile = ".env"

// valPtr is a type constraint for pointers to the supported variable types.
// It is used to ensure type safety when passing pointers to EnvVar.
type valPtr interface {
	*string | *int | *bool | *time.Duration
}

// EnvVar represents an environment variable to be loaded.
// It contains the variable's name, a pointer to its value, and whether it is required.
type EnvVar struct {
	name     string // The name of the environment variable.
	value    any    // A pointer to the variable's value.
	required bool   // Whether the variable is required.
}

// NewEnvVar creates an [EnvVar] instance for the given environment variable.
//   - name: the name of the environment variable.
//   - varP: a pointer to the variable where the value will be stored.
//   - required: whether the variable is required.
//
// Panics if varP is nil.
func NewEnvVar[T valPtr](name string, varP T, required bool) EnvVar {
	if varP == nil {
		panic(fmt.Sprintf("variable pointer for var %s must not be nil", name))
	}
	return EnvVar{
		name:     name,
		value:    varP,
		required: required,
	}
}

// Load loads the values of the provided environment variables into their respective pointers.
// Unset or empty variables keep the value already stored behind the pointer.
// Returns an error if any required variable is missing or if a value cannot be converted to the expected type.
func Load(vars ...EnvVar) error {
	var errs error
	for _, ev := range vars {
		v := os.Getenv(ev.name)
		if v == "" {
			if ev.required {
				errs = errors.Join(fmt.Errorf("missing required variable %s", ev.name), errs)
			}
			continue
		}

		if err := assign(ev.value, v); err != nil {
			errs = errors.Join(fmt.Errorf("variable %s: %w", ev.name, err), errs)
		}
	}
	return errs
}

func assign(dst any, v string) error {
	switch typed := dst.(type) {
	case *string:
		*typed = v
	case *int:
		cov, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("unable to convert %s to type int", v)
		}
		*typed = cov
	case *bool:
		cov, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("unable to convert %s to type bool", v)
		}
		*typed = cov
	case *time.Duration:
		cov, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("unable to convert %s to type duration", v)
		}
		*typed = cov
	default:
		return fmt.Errorf("unrecognized env var type %T", dst)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files, or from
// [DotEnvFile] when none is given, into the process environment.
//
// Variables that are already set are not overridden and missing files
// are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DotEnvFile}
	}

	var errs error
	for _, p := range paths {
		err := godotenv.Load(p)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = errors.Join(fmt.Errorf("failed to load %s: %w", p, err), errs)
		}
	}
	return errs
}
