package taxonomy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// LoadError is a definition file error, with a CUE position when one is
// known.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadFile loads a definition, choosing the format by extension, then
// normalizes and validates it.
func LoadFile(path string) (*Taxonomy, error) {
	var (
		t   *Taxonomy
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		t, err = LoadCUE(path)
	case ".yaml", ".yml":
		t, err = LoadYAML(path)
	default:
		return nil, fmt.Errorf("unsupported taxonomy format %q (want .cue, .yaml or .yml)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadYAML decodes a YAML definition. Unknown fields are rejected.
func LoadYAML(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var t Taxonomy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	return &t, nil
}

// LoadCUE builds a CUE definition file and extracts the taxonomy struct.
func LoadCUE(path string) (*Taxonomy, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: filepath.Dir(path)}
	instances := load.Instances([]string{filepath.Base(path)}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Field: "cue", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := value.LookupPath(cue.ParsePath("taxonomy"))
	if !root.Exists() {
		return nil, &LoadError{Field: "taxonomy", Message: "taxonomy struct is required", Pos: value.Pos()}
	}
	return compileTaxonomy(root)
}

func compileTaxonomy(v cue.Value) (*Taxonomy, error) {
	t := &Taxonomy{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &LoadError{Field: "name", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	t.Name = name

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return nil, &LoadError{Field: "version", Message: "version is required", Pos: v.Pos()}
	}
	version, err := versionVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	t.Version = int(version)

	conceptsVal := v.LookupPath(cue.ParsePath("concept"))
	if !conceptsVal.Exists() {
		return t, nil
	}
	iter, err := conceptsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		c, err := compileConcept(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		t.Concepts = append(t.Concepts, c)
	}
	return t, nil
}

func compileConcept(id string, v cue.Value) (Concept, error) {
	c := Concept{ID: id}

	if labelVal := v.LookupPath(cue.ParsePath("label")); labelVal.Exists() {
		label, err := labelVal.String()
		if err != nil {
			return c, formatCUEError(err)
		}
		c.Label = label
	}

	broaderVal := v.LookupPath(cue.ParsePath("broader"))
	if !broaderVal.Exists() {
		return c, nil
	}
	list, err := broaderVal.List()
	if err != nil {
		return c, &LoadError{Field: "broader", Message: fmt.Sprintf("concept %q: broader must be a list of ids", id), Pos: broaderVal.Pos()}
	}
	for list.Next() {
		p, err := list.Value().String()
		if err != nil {
			return c, formatCUEError(err)
		}
		c.Broader = append(c.Broader, p)
	}
	return c, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
