// Package stats formats the per-group banners and the end-of-run summary.
package stats

import "strings"

// BannerWidth is the width of justified group banners and the summary rule.
const BannerWidth = 70

// Justify places ltext on the left and rtext on the right of a line of the
// given width, padding between them with fill. When the texts are wider
// than width they are joined by single spaces.
func Justify(ltext, rtext string, width int, fill rune) string {
	ltext += " "
	rtext = " " + rtext
	pad := width - len(ltext) - len(rtext)
	if pad < 0 {
		pad = 0
	}
	return ltext + strings.Repeat(string(fill), pad) + rtext
}

// GroupLabel is the "<program> test group: <section>" prefix of banners.
func GroupLabel(program, section string) string {
	return program + " test group: " + section
}

// GroupBanner is the justified result line printed for a group in
// concurrent runs and for groups that were not run.
func GroupBanner(program, section, result string) string {
	return Justify(GroupLabel(program, section), result, BannerWidth, '-')
}
