package sources

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"castsync/internal/services"
)

var (
	sourceIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("sourceid", func(fl validator.FieldLevel) bool {
			return sourceIDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// LoadFile parses and validates a single source definition.
func LoadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read source %s: %w", path, err)
	}
	src, err := Parse(data)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	src.Path = path
	return src, nil
}

// Parse decodes and validates a YAML source definition. Unknown fields are
// rejected.
func Parse(data []byte) (Source, error) {
	src := newSource()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&src); err != nil {
		return Source{}, services.Wrap(services.ErrValidation, "sources", "parse", "invalid YAML", err)
	}
	src.applyDefaults()
	if err := Validate(src); err != nil {
		return Source{}, err
	}
	return src, nil
}

// Validate checks a source definition against its field rules.
func Validate(src Source) error {
	err := getValidator().Struct(src)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return services.Wrap(services.ErrValidation, "sources", "validate", "validation failed", err)
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(fe))
	}
	return services.Wrap(services.ErrValidation, "sources", "validate", strings.Join(messages, "; "), nil)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Source.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url":
		return fmt.Sprintf("%s must be an absolute URL (got %q)", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "sourceid":
		return fmt.Sprintf("%s must be lowercase letters, digits, '-' or '_' (got %q)", field, fe.Value())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// FileError records a definition that failed to load.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e FileError) Unwrap() error { return e.Err }

// LoadDir loads every *.yaml and *.yml file in dir. Sources are returned in
// ID order; files that fail to load are reported separately so one broken
// definition does not disable the others. Duplicate IDs and duplicate key
// prefixes are reported as failures for every file after the first.
func LoadDir(dir string) ([]Source, []FileError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read sources dir: %w", err)
	}
	var (
		loaded   []Source
		failures []FileError
		seen     = make(map[string]string)
		prefixes = make(map[string]string)
	)
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		src, err := LoadFile(path)
		if err != nil {
			failures = append(failures, FileError{Path: path, Err: err})
			continue
		}
		if first, dup := seen[src.ID]; dup {
			failures = append(failures, FileError{
				Path: path,
				Err:  services.Wrap(services.ErrValidation, "sources", "load", fmt.Sprintf("duplicate source id %q (first defined in %s)", src.ID, filepath.Base(first)), nil),
			})
			continue
		}
		if first, dup := prefixes[src.Prefix()]; dup {
			failures = append(failures, FileError{
				Path: path,
				Err:  services.Wrap(services.ErrValidation, "sources", "load", fmt.Sprintf("duplicate key prefix %q (first used in %s)", src.Prefix(), filepath.Base(first)), nil),
			})
			continue
		}
		seen[src.ID] = path
		prefixes[src.Prefix()] = path
		loaded = append(loaded, src)
	}
	slices.SortFunc(loaded, func(a, b Source) int { return strings.Compare(a.ID, b.ID) })
	return loaded, failures, nil
}

func isDefinitionFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
