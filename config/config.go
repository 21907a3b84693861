// Package config parses the INI-like model configuration format: bracketed
// section headers, "key = value" pairs, "#" and ";" comments, and backslash
// line continuation. Keys outside any header land in the "default" section.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultSection holds keys declared before any section header.
	DefaultSection = "default"

	lineContinuation = "\\"
)

// Config is a parsed section -> key -> value view of a configuration text.
type Config struct {
	data map[string]map[string]string
}

// NewConfig parses the configuration file at path.
func NewConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parse(f)
}

// NewConfigFromText parses a configuration held in memory.
func NewConfigFromText(text string) (*Config, error) {
	return parse(strings.NewReader(text))
}

func parse(r io.Reader) (*Config, error) {
	c := &Config{data: make(map[string]map[string]string)}

	scanner := bufio.NewScanner(r)
	section := ""
	var buf strings.Builder

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if buf.Len() == 0 {
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
				continue
			}
			if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
				section = line[1 : len(line)-1]
				continue
			}
		}

		if strings.HasSuffix(line, lineContinuation) {
			buf.WriteString(strings.TrimSpace(strings.TrimSuffix(line, lineContinuation)))
			continue
		}

		buf.WriteString(line)
		if err := c.addLine(section, buf.String()); err != nil {
			return nil, err
		}
		buf.Reset()
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if buf.Len() > 0 {
		if err := c.addLine(section, buf.String()); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Config) addLine(section, line string) error {
	key, value, found := strings.Cut(line, "=")
	if !found {
		return fmt.Errorf("config: parse error on line %q", line)
	}
	c.Set(section, strings.TrimSpace(key), strings.TrimSpace(value))
	return nil
}

// Set stores a value, overwriting any previous value for the key. An empty
// section name targets the default section. Section and key lookups are
// case-insensitive, so both are stored lowercased.
func (c *Config) Set(section, key, value string) {
	if section == "" {
		section = DefaultSection
	}
	section = strings.ToLower(section)
	key = strings.ToLower(key)

	sec, ok := c.data[section]
	if !ok {
		sec = make(map[string]string)
		c.data[section] = sec
	}
	sec[key] = value
}

// Get looks a value up by "section::key" (or a bare key in the default
// section). Missing keys return the empty string.
func (c *Config) Get(key string) string {
	section := DefaultSection
	option := strings.ToLower(key)
	if s, o, found := strings.Cut(option, "::"); found {
		section, option = s, o
	}
	return c.data[section][option]
}

// GetString is Get under its typed-accessor name.
func (c *Config) GetString(key string) string {
	return c.Get(key)
}

// GetBool parses the stored value as a boolean.
func (c *Config) GetBool(key string) (bool, error) {
	v, err := strconv.ParseBool(c.Get(key))
	if err != nil {
		return false, fmt.Errorf("config: key %q: %w", key, err)
	}
	return v, nil
}

// GetInt parses the stored value as an integer.
func (c *Config) GetInt(key string) (int64, error) {
	v, err := strconv.ParseInt(c.Get(key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: key %q: %w", key, err)
	}
	return v, nil
}

// GetFloat parses the stored value as a float.
func (c *Config) GetFloat(key string) (float64, error) {
	v, err := strconv.ParseFloat(c.Get(key), 64)
	if err != nil {
		return 0, fmt.Errorf("config: key %q: %w", key, err)
	}
	return v, nil
}

// GetStrings splits the stored value on commas with trimming. Missing keys
// return nil.
func (c *Config) GetStrings(key string) []string {
	v := c.Get(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
