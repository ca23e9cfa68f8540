// Package profile loads probe profiles: small INI files naming the
// transport to a debug probe and its parameters.
package profile

import (
	"bufio"
	"io"
	"strings"

	"github.com/cesanta/errors"
)

// IniFile maps section names to key-value pairs. Keys appearing before any
// section header land in the "" section.
type IniFile struct {
	Sections map[string]map[string]string
}

// ParseIni reads INI text: [section] headers, key = value lines, ';' or
// '#' comments. Later duplicates win.
func ParseIni(r io.Reader) (*IniFile, error) {
	ini := &IniFile{Sections: make(map[string]map[string]string)}
	section := ""
	ini.Sections[section] = make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := ini.Sections[section]; !ok {
				ini.Sections[section] = make(map[string]string)
			}
			continue
		}
		if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			ini.Sections[section][key] = strings.TrimSpace(parts[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return ini, nil
}

// GetSection returns the key-value map for a section, or nil if absent.
func (ini *IniFile) GetSection(name string) map[string]string {
	return ini.Sections[name]
}
