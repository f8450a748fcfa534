// Package catalog loads activity templates from CUE files.
//
// A catalog directory holds one CUE package. Templates live under the
// top-level jag struct, keyed by a label that doubles as the default urn:
//
//	jag: "rescue-victim": {
//		connector: {execution: "parallel", operator: "AND"}
//		children: [
//			{urn: "access-victim", required: true},
//			{urn: "triage-victim", required: true},
//		]
//	}
//	jag: "triage-victim": estimates: {addressing_ms: 7500}
//
// Compilation checks each template in isolation. Cross-template checks
// (unknown children, recursion) belong to registry.New.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/jagtrack/internal/ir"
)

// Error codes shared by every command that loads a catalog.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeSchema      = "E200" // template does not match the schema
	ErrCodeTemplateURN = "E201" // missing or empty urn
	ErrCodeConnector   = "E202" // invalid connector
	ErrCodeChildren    = "E203" // malformed child list
	ErrCodeEstimates   = "E204" // negative or non-integer estimate
	ErrCodeDuplicate   = "E205" // two templates share a urn
	ErrCodeRegistry    = "E206" // unknown child or recursive template
)

// LoadError is an error that occurred while loading a catalog.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is a loaded catalog.
type Result struct {
	Templates []ir.Template
	FileCount int
}

// Load reads every template in dir. All errors are collected; a non-nil
// Result with errors holds the templates that did compile.
func Load(dir string) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	templates, errs := compileValue(value)
	return &Result{Templates: templates, FileCount: len(files)}, errs
}

func compileValue(value cue.Value) ([]ir.Template, []error) {
	jagVal := value.LookupPath(cue.ParsePath("jag"))
	if !jagVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: "no templates found: missing top-level jag struct"}}
	}
	iter, err := jagVal.Fields()
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating templates: %v", err)}}
	}

	var (
		templates []ir.Template
		errs      []error
		seen      = make(map[string]token.Pos)
	)
	for iter.Next() {
		t, err := CompileTemplate(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "jag."+iter.Selector().String()))
			continue
		}
		if first, dup := seen[t.URN]; dup {
			errs = append(errs, &LoadError{
				Code:    ErrCodeDuplicate,
				Message: fmt.Sprintf("duplicate template urn %s (first declared at %s)", t.URN, first),
				Pos:     iter.Value().Pos(),
			})
			continue
		}
		seen[t.URN] = iter.Value().Pos()
		templates = append(templates, *t)
	}
	if len(templates) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no templates found in catalog"})
	}
	return templates, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: ce.Code, Message: fmt.Sprintf("%s: %s: %s", context, ce.Field, ce.Message), Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", context, err)}
}
