package cli

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/calleja/arbol/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// LoadError represents an error that occurred while loading a model file.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

// LoadModel reads a model spec from a YAML, JSON, or CUE file. CUE models
// are validated against the embedded schema before decoding; YAML and JSON
// rely on the builder's validation alone.
func LoadModel(path string) (*model.ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "model file not found"}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml", ".json":
		var spec model.ModelSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
		}
		return &spec, nil

	case ".cue":
		return loadCUEModel(path, data)

	default:
		return nil, &LoadError{
			Code:    ErrCodeLoadFailed,
			Path:    path,
			Message: fmt.Sprintf("unsupported model format %q (want .yaml, .yml, .json, or .cue)", ext),
		}
	}
}

// loadCUEModel unifies the file's value with the embedded #Model schema so
// malformed models fail with CUE's field-level messages.
func loadCUEModel(path string, data []byte) (*model.ModelSpec, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Path: path, Message: fmt.Sprintf("compiling schema: %v", err)}
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("compiling model: %v", err)}
	}

	unified := schema.LookupPath(cue.ParsePath("#Model")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("validating model: %v", err)}
	}

	var spec model.ModelSpec
	if err := unified.Decode(&spec); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("decoding model: %v", err)}
	}
	return &spec, nil
}
