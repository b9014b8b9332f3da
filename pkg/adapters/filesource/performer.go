// Package filesource reads file paradigms from a confined directory tree.
package filesource

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// Performer resolves file paradigms against a root directory. Paths are
// confined to the root: absolute paths and paths that climb out of it are
// rejected before the filesystem is touched.
type Performer struct {
	root string
}

// New builds a Performer rooted at dir. An empty dir means the current
// working directory.
func New(dir string) *Performer {
	if dir == "" {
		dir = "."
	}
	return &Performer{root: dir}
}

// Perform implements ports.Performer for file paradigms. Inference values
// are not consumed; a file paradigm sources its data from disk.
func (p *Performer) Perform(ctx context.Context, paradigm domain.Paradigm, _ []any) (any, error) {
	if paradigm.Kind != domain.ParadigmFile || paradigm.File == nil {
		return nil, errors.Newf("filesource performer handles file paradigms, got %q", paradigm.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file := paradigm.File
	path, err := p.resolve(file.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", file.Path)
	}

	switch file.Format {
	case "", "raw":
		return string(data), nil
	case "json":
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, errors.Wrapf(err, "parse %s as json", file.Path)
		}
		return decoded, nil
	case "yaml":
		var decoded any
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			return nil, errors.Wrapf(err, "parse %s as yaml", file.Path)
		}
		return decoded, nil
	default:
		return nil, errors.Newf("unsupported file format %q", file.Format)
	}
}

func (p *Performer) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("file paradigm has an empty path")
	}
	clean := filepath.Clean(path)
	if !filepath.IsLocal(clean) {
		return "", errors.Newf("path %q escapes the source root", path)
	}
	return filepath.Join(p.root, clean), nil
}
