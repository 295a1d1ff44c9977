package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brutella/hc/log"
	"gopkg.in/yaml.v3"
)

// document is one config file, normalized to JSON
type document struct {
	Name string // file name without extension
	Path string
	JSON []byte
}

// readDir loads every .json, .yaml and .yml file in dir, sorted by name.
// A missing directory is not an error.
func readDir(dir string) ([]document, error) {
	files, err := ioutil.ReadDir(dir)
	if os.IsNotExist(err) {
		log.Debug.Printf("no %s directory", dir)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []document
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, f.Name())
		raw, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		j, err := toJSON(ext, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		docs = append(docs, document{
			Name: strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())),
			Path: path,
			JSON: j,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// toJSON lets YAML files share the JSON decoders
func toJSON(ext string, raw []byte) ([]byte, error) {
	if ext == ".json" {
		return raw, nil
	}
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
