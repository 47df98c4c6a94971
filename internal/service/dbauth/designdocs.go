package dbauth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/target/docauth/internal/domain/model"
	"github.com/target/docauth/internal/errors"
)

const designDocIDPrefix = "_design/"

// DesignDocSource resolves a named design document bundle into the documents to seed.
// A bundle that does not exist yields a NotFound error.
type DesignDocSource interface {
	Load(ctx context.Context, name string) ([]model.DesignDoc, error)
}

// DirDesignDocs loads bundles from <Dir>/<name>.json. Each file is a JSON object mapping
// design document names to their bodies, e.g. {"notes":{"views":{...}}}.
type DirDesignDocs struct {
	Dir string
}

// Load reads and decodes the named bundle.
func (d DirDesignDocs) Load(_ context.Context, name string) ([]model.DesignDoc, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, errors.ValidationField("designDocs", fmt.Sprintf("invalid design doc name %q", name))
	}
	path := filepath.Join(d.Dir, name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("design doc %s not found", path)
		}
		return nil, fmt.Errorf("read design doc %s: %w", path, err)
	}
	var bundle map[string]map[string]any
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode design doc %s: %w", path, err)
	}
	return BundleDocs(bundle), nil
}

// StaticDesignDocs serves bundles from memory.
type StaticDesignDocs map[string]map[string]map[string]any

// Load returns the named bundle.
func (s StaticDesignDocs) Load(_ context.Context, name string) ([]model.DesignDoc, error) {
	bundle, ok := s[name]
	if !ok {
		return nil, errors.NotFoundf("design doc %s not found", name)
	}
	return BundleDocs(bundle), nil
}

// BundleDocs converts a name-to-body bundle into design documents ordered by id.
func BundleDocs(bundle map[string]map[string]any) []model.DesignDoc {
	names := make([]string, 0, len(bundle))
	for n := range bundle {
		names = append(names, n)
	}
	sort.Strings(names)
	docs := make([]model.DesignDoc, 0, len(names))
	for _, n := range names {
		id := n
		if !strings.HasPrefix(id, designDocIDPrefix) {
			id = designDocIDPrefix + id
		}
		docs = append(docs, model.DesignDoc{ID: id, Body: bundle[n]})
	}
	return docs
}
