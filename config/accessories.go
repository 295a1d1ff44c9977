package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/ifthen/accessory"
)

// LoadAccessories reads <dir>/accessories. Broken files are logged and skipped.
func (c *Config) LoadAccessories() ([]*accessory.Accessory, error) {
	docs, err := readDir(filepath.Join(c.ConfigDir, "accessories"))
	if err != nil {
		return nil, err
	}

	var out []*accessory.Accessory
	for _, d := range docs {
		acc, err := parseAccessory(d)
		if err != nil {
			log.Info.Println(err)
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

func parseAccessory(d document) (*accessory.Accessory, error) {
	var acc accessory.Accessory
	if err := json.Unmarshal(d.JSON, &acc); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Path, err)
	}
	if acc.Name == "" {
		acc.Name = d.Name
	}
	if err := acc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Path, err)
	}
	return &acc, nil
}
