package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/docbridge/internal/schema"
)

// Loaded is a schema model built from a directory of CUE files.
type Loaded struct {
	Model     *schema.Model
	Warnings  []CycleWarning
	FileCount int
	// SourceVersion hashes the raw file contents. It changes whenever any
	// file changes, even if the resulting model does not.
	SourceVersion string
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
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
	sort.Strings(files)
	return files, err
}

// SourceVersion hashes the named files' paths and contents.
func SourceVersion(files []string) (string, error) {
	h := sha256.New()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", filepath.Base(f), len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// LoadSchemaDir compiles every .cue file in dir as one instance and builds
// the model. When cache is non-nil, the model for an unchanged directory is
// built at most once, even under concurrent callers.
func LoadSchemaDir(dir string, cache *schema.Cache) (*Loaded, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning schema directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	version, err := SourceVersion(files)
	if err != nil {
		return nil, fmt.Errorf("reading schema files: %w", err)
	}

	build := func() (*schema.Model, error) {
		return buildModel(dir)
	}

	var m *schema.Model
	if cache != nil {
		m, err = cache.Get(version, build)
	} else {
		m, err = build()
	}
	if err != nil {
		return nil, err
	}

	return &Loaded{
		Model:         m,
		Warnings:      AnalyzeEmbeddings(m),
		FileCount:     len(files),
		SourceVersion: version,
	}, nil
}

func buildModel(dir string) (*schema.Model, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	tables, err := CompileSchema(value)
	if err != nil {
		return nil, err
	}
	return schema.NewModel(tables...)
}
