package decl

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/cbinding/errors"
)

// Load decodes a declaration stream. The document is either a File mapping
// or a bare sequence of records; JSON input is accepted as YAML.
func Load(r io.Reader) (*File, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return &File{}, nil
		}
		return nil, errors.ParseFailed("declarations", err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	f := &File{}
	var seq *yaml.Node
	switch doc.Kind {
	case yaml.SequenceNode:
		seq = doc
	case yaml.MappingNode:
		var head struct {
			Library string `yaml:"library"`
			Target  string `yaml:"target"`
		}
		if err := doc.Decode(&head); err != nil {
			return nil, errors.ParseFailed("declarations", err)
		}
		f.Library, f.Target = head.Library, head.Target
		for i := 0; i+1 < len(doc.Content); i += 2 {
			if doc.Content[i].Value == "declarations" {
				seq = doc.Content[i+1]
			}
		}
	default:
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Detail("line %d: expected a mapping or a sequence of declarations", doc.Line).
			Build()
	}
	if seq == nil {
		return f, nil
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Detail("line %d: declarations must be a sequence", seq.Line).
			Build()
	}

	f.Declarations = make([]Record, 0, len(seq.Content))
	for _, n := range seq.Content {
		var rec Record
		if err := n.Decode(&rec); err != nil {
			return nil, errors.ParseFailed("declarations", err)
		}
		rec.Line = n.Line
		if rec.Library == "" {
			rec.Library = f.Library
		}
		f.Declarations = append(f.Declarations, rec)
	}
	return f, nil
}

// LoadFile reads and decodes a declaration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindNotFound, err, "read "+path)
	}
	return Load(bytes.NewReader(data))
}
