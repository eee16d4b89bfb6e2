// File: extension/config.go
// Package extension implements extension parameter parsing.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grammar: name *( ";" key [ "=" value ] ). Names and keys are
// case-insensitive tokens, values are tokens or quoted strings.
// Duplicate keys within one config are rejected.

package extension

import (
	"fmt"
	"strings"
)

// Param is one key[=value] pair. A bare key has an empty Value.
type Param struct {
	Key   string
	Value string
}

// Config is one parsed extension offer or response.
type Config struct {
	name   string
	params []Param
}

// NewConfig builds a config programmatically.
func NewConfig(name string, params ...Param) Config {
	return Config{name: strings.ToLower(name), params: params}
}

// Name returns the lower-cased extension token.
func (c Config) Name() string { return c.name }

// Params returns the parameters in source order.
func (c Config) Params() []Param { return c.params }

// Param looks a key up, case already folded at parse time.
func (c Config) Param(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, p := range c.params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SetParam replaces the value for key, appending when absent.
func (c *Config) SetParam(key, value string) {
	key = strings.ToLower(key)
	for i := range c.params {
		if c.params[i].Key == key {
			c.params[i].Value = value
			return
		}
	}
	c.params = append(c.params, Param{Key: key, Value: value})
}

// RemoveParam drops key from the parameter list.
func (c *Config) RemoveParam(key string) {
	key = strings.ToLower(key)
	for i := range c.params {
		if c.params[i].Key == key {
			c.params = append(c.params[:i], c.params[i+1:]...)
			return
		}
	}
}

// String re-serializes the config to its header form.
func (c Config) String() string {
	var b strings.Builder
	b.WriteString(c.name)
	for _, p := range c.params {
		b.WriteString("; ")
		b.WriteString(p.Key)
		if p.Value != "" {
			b.WriteByte('=')
			if isToken(p.Value) {
				b.WriteString(p.Value)
			} else {
				b.WriteByte('"')
				for i := 0; i < len(p.Value); i++ {
					if p.Value[i] == '"' || p.Value[i] == '\\' {
						b.WriteByte('\\')
					}
					b.WriteByte(p.Value[i])
				}
				b.WriteByte('"')
			}
		}
	}
	return b.String()
}

// ParseConfig parses a single extension config.
func ParseConfig(s string) (Config, error) {
	cfg, rest, err := parseOne(s)
	if err != nil {
		return Config{}, err
	}
	if rest = skipSpace(rest); rest != "" {
		return Config{}, fmt.Errorf("extension config: trailing %q", rest)
	}
	return cfg, nil
}

// ParseList parses a comma-separated Sec-WebSocket-Extensions value.
func ParseList(header string) ([]Config, error) {
	var out []Config
	s := header
	for {
		s = skipSpace(s)
		if s == "" {
			break
		}
		cfg, rest, err := parseOne(s)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
		rest = skipSpace(rest)
		if rest == "" {
			break
		}
		if rest[0] != ',' {
			return nil, fmt.Errorf("extension list: expected ',' before %q", rest)
		}
		s = rest[1:]
	}
	return out, nil
}

// parseOne consumes one config and returns the unparsed remainder,
// which starts with ',' when more configs follow.
func parseOne(s string) (Config, string, error) {
	s = skipSpace(s)
	name, rest := nextToken(s)
	if name == "" {
		return Config{}, "", fmt.Errorf("extension config: missing name in %q", s)
	}
	cfg := Config{name: strings.ToLower(name)}
	s = rest
	for {
		s = skipSpace(s)
		if s == "" || s[0] == ',' {
			return cfg, s, nil
		}
		if s[0] != ';' {
			return Config{}, "", fmt.Errorf("extension config: expected ';' before %q", s)
		}
		s = skipSpace(s[1:])
		key, rest := nextToken(s)
		if key == "" {
			return Config{}, "", fmt.Errorf("extension config: missing parameter name in %q", s)
		}
		key = strings.ToLower(key)
		if _, dup := cfg.Param(key); dup {
			return Config{}, "", fmt.Errorf("extension config: duplicate parameter %q", key)
		}
		s = skipSpace(rest)
		var value string
		if strings.HasPrefix(s, "=") {
			var ok bool
			value, s, ok = nextTokenOrQuoted(skipSpace(s[1:]))
			if !ok {
				return Config{}, "", fmt.Errorf("extension config: bad value for %q", key)
			}
		}
		cfg.params = append(cfg.params, Param{Key: key, Value: value})
	}
}

// isTokenChar reports whether c is an RFC 2616 token octet.
func isTokenChar(c byte) bool {
	if c <= 0x20 || c >= 0x7F {
		return false
	}
	switch c {
	case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}':
		return false
	}
	return true
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func skipSpace(s string) string {
	i := 0
	for ; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			break
		}
	}
	return s[i:]
}

func nextToken(s string) (token, rest string) {
	i := 0
	for ; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			break
		}
	}
	return s[:i], s[i:]
}

// nextTokenOrQuoted reads a token or a double-quoted string with
// backslash escapes. ok is false when no value is present or a quote
// is unterminated.
func nextTokenOrQuoted(s string) (value, rest string, ok bool) {
	if !strings.HasPrefix(s, `"`) {
		token, rest := nextToken(s)
		return token, rest, token != ""
	}
	s = s[1:]
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			return b.String(), s[i+1:], true
		case '\\':
			i++
			if i == len(s) {
				return "", "", false
			}
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", false
}
