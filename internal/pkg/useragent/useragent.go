// Package useragent classifies raw user-agent strings into the browser, OS
// and device type recorded on each click. Parsing is total: any input,
// including an empty string, yields a usable result.
package useragent

import (
	"embed"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types recorded on clicks.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Info is the classification result for a single user-agent string.
type Info struct {
	Browser    string
	OS         string
	DeviceType string
}

//go:embed patterns/browsers.yml
//go:embed patterns/oss.yml
var patternFiles embed.FS

type patternEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type compiledEntry struct {
	regex *pcre.Regexp
	name  string
}

var (
	parser *patternParser
	once   sync.Once
)

type patternParser struct {
	browsers []compiledEntry
	oss      []compiledEntry
}

func getParser() *patternParser {
	once.Do(func() {
		parser = &patternParser{
			browsers: loadPatterns("patterns/browsers.yml"),
			oss:      loadPatterns("patterns/oss.yml"),
		}
	})
	return parser
}

func loadPatterns(file string) []compiledEntry {
	data, err := patternFiles.ReadFile(file)
	if err != nil {
		return nil
	}

	var entries []patternEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil
	}

	compiled := make([]compiledEntry, 0, len(entries))
	for _, entry := range entries {
		regex, err := pcre.Compile(entry.Regex)
		if err != nil {
			continue
		}
		compiled = append(compiled, compiledEntry{regex: regex, name: entry.Name})
	}
	return compiled
}

func matchFirst(entries []compiledEntry, userAgent string) string {
	for _, entry := range entries {
		if entry.regex.MatchString(userAgent) {
			return entry.name
		}
	}
	return "Unknown"
}

// Pattern order matters for device detection: tablets often advertise
// "Mobile" too, so tablet indicators are checked first.
func detectDeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)

	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return DeviceTablet
	}

	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") || strings.Contains(ua, "ipod") ||
		strings.Contains(ua, "blackberry") || strings.Contains(ua, "windows phone") {
		return DeviceMobile
	}

	return DeviceDesktop
}

// Parse classifies the given user-agent string. Unrecognized browsers and
// operating systems come back as "Unknown"; the device type always falls
// back to desktop.
func Parse(userAgent string) Info {
	p := getParser()

	return Info{
		Browser:    matchFirst(p.browsers, userAgent),
		OS:         matchFirst(p.oss, userAgent),
		DeviceType: detectDeviceType(userAgent),
	}
}
