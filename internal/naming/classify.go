package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

// MediaType is the asset classification the planner caps renditions by.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
	MediaExtra MediaType = "extra"
)

var (
	reSxxExx = regexp.MustCompile(
		`(^|[^[:alnum:]])[Ss]([0-9]{1,2})[Ee]([0-9]{1,3})([Vv][0-9]+)?([^[:alnum:]]|$)`)

	re1x01 = regexp.MustCompile(
		`(^|[^0-9])([0-9]{1,2})[xX]([0-9]{1,3})([Vv][0-9]+)?([^0-9]|$)`)

	reOPED = regexp.MustCompile(
		`(?i)(^|[^[:alnum:]])NC(OP|ED)[0-9]{0,2}([^[:alnum:]]|$)`)

	reSeasonDir = regexp.MustCompile(`(?i)^(season|series|staffel)[\s_.\-]*[0-9]{1,2}$`)
)

// extraSuffixes are the "-trailer" style name suffixes media servers use for
// bonus material kept beside the main feature.
var extraSuffixes = []string{
	"-trailer", "-featurette", "-behindthescenes", "-deleted", "-interview",
	"-scene", "-short", "-other", "-sample",
}

// Classify derives the media type from an asset path. Extras win over TV:
// a creditless opening inside a season folder is still an extra.
func Classify(assetPath string) MediaType {
	base := Base(assetPath)
	lower := strings.ToLower(base)
	parent := strings.ToLower(filepath.Base(filepath.Dir(assetPath)))

	if isSpecialsFolder(parent) || reOPED.MatchString(base) {
		return MediaExtra
	}
	for _, s := range extraSuffixes {
		if strings.HasSuffix(lower, s) {
			return MediaExtra
		}
	}
	if reSxxExx.MatchString(base) || re1x01.MatchString(base) || reSeasonDir.MatchString(parent) {
		return MediaTV
	}
	return MediaMovie
}

func isSpecialsFolder(name string) bool {
	switch name {
	case "extras", "extra", "specials", "bonus", "featurettes", "trailers",
		"behind the scenes", "deleted scenes", "interviews", "shorts", "nc":
		return true
	}
	return strings.HasPrefix(name, "ncop") || strings.HasPrefix(name, "nced")
}
