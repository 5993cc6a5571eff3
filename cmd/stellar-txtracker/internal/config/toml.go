package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml"
)

const maxLineWidth = 80

func parseToml(r io.Reader, strict bool, cfg *Config) error {
	tree, err := toml.LoadReader(r)
	if err != nil {
		return err
	}

	validKeys := map[string]struct{}{}
	for _, option := range cfg.options() {
		key, ok := option.getTomlKey()
		if !ok {
			continue
		}
		validKeys[key] = struct{}{}
		value := tree.Get(key)
		if value == nil {
			continue
		}
		if err := option.setValue(value); err != nil {
			return err
		}
	}

	if strict {
		for _, key := range tree.Keys() {
			if _, ok := validKeys[key]; !ok {
				return fmt.Errorf("invalid config: unexpected entry specified in toml file %q", key)
			}
		}
	}
	return nil
}

// MarshalTOML renders the current configuration as a commented TOML document.
// Options without a TOML key, such as the signing secret, are left out.
func (cfg *Config) MarshalTOML() ([]byte, error) {
	tree, err := toml.TreeFromMap(map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	for _, option := range cfg.options() {
		key, ok := option.getTomlKey()
		if !ok {
			continue
		}
		value, err := option.marshalTOML()
		if err != nil {
			return nil, err
		}
		tree.SetWithOptions(
			key,
			toml.SetOptions{Comment: strings.ReplaceAll(wordWrap(option.Usage, maxLineWidth-2), "\n", "\n ")},
			value,
		)
	}

	return tree.Marshal()
}

func wordWrap(text string, width int) string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		if line != "" && len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		if line == "" {
			line = word
		} else {
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
