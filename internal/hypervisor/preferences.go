package hypervisor

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// preferencesDefaultVMPathKey is where VMware Workstation records a custom
// default VM directory.
const preferencesDefaultVMPathKey = "prefvmx.defaultVMPath"

// ParsePreferences reads a VMware preferences file. The format is flat
// `key = "value"` lines; unparseable lines are skipped.
func ParsePreferences(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open preferences file: %w", err)
	}
	defer file.Close()

	prefs := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "" {
			continue
		}
		prefs[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading preferences file: %w", err)
	}

	return prefs, nil
}

// defaultVMPathFromPreferences returns the configured custom default VM
// directory, or "" when the preferences file is absent or has none
// configured. Absence is not an error: the file only exists once the user
// changed a setting.
func defaultVMPathFromPreferences(path string) string {
	prefs, err := ParsePreferences(path)
	if err != nil {
		return ""
	}
	return prefs[preferencesDefaultVMPathKey]
}
