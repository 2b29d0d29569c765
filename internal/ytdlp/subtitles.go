package ytdlp

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// PickSubtitleFile chooses the best subtitle file for the preferred
// languages. Files are expected to follow yt-dlp's naming, e.g.
// subs.en.srt or subs.id-orig.srt; the tag before the extension is
// matched against the preference list with BCP 47 semantics, so "en"
// prefers "en-US" over "id". Returns "" when files is empty.
func PickSubtitleFile(files []string, langs []string) string {
	if len(files) == 0 {
		return ""
	}

	prefs := make([]language.Tag, 0, len(langs))
	for _, l := range langs {
		if tag, err := language.Parse(l); err == nil {
			prefs = append(prefs, tag)
		}
	}
	if len(prefs) == 0 {
		return files[0]
	}
	matcher := language.NewMatcher(prefs)

	best := ""
	bestIdx := len(prefs)
	bestConf := language.No
	for _, file := range files {
		tag, ok := fileLanguage(file)
		if !ok {
			continue
		}
		_, idx, conf := matcher.Match(tag)
		if conf == language.No {
			continue
		}
		// earlier preference wins; within a preference, higher confidence
		if idx < bestIdx || (idx == bestIdx && conf > bestConf) {
			best = file
			bestIdx = idx
			bestConf = conf
		}
	}
	if best == "" {
		return files[0]
	}
	return best
}

// fileLanguage extracts the language tag from a subtitle filename like
// subs.en.srt.
func fileLanguage(file string) (language.Tag, bool) {
	name := filepath.Base(file)
	parts := strings.Split(name, ".")
	if len(parts) < 3 {
		return language.Und, false
	}
	tag, err := language.Parse(parts[len(parts)-2])
	if err != nil {
		return language.Und, false
	}
	return tag, true
}
