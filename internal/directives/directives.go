// Package directives strips inline agent directives (/think, /verbose)
// from user text and reports the effective levels for the current turn.
package directives

import (
	"regexp"
	"strings"
)

// Result is the outcome of parsing one message for inline directives.
type Result struct {
	CleanedText   string
	ThinkLevel    string // "" if absent or unrecognized argument
	VerboseLevel  string // "" if absent or unrecognized argument
	HasDirectives bool
}

var thinkAliasRe = regexp.MustCompile(`(?i)(^|\s)/(?:think(?:ing)?|t)\b:?\s*([a-z-]*)`)
var verboseAliasRe = regexp.MustCompile(`(?i)(^|\s)/(?:verbose|v)\b:?\s*([a-z0-9]*)`)

var thinkLevels = map[string]string{
	"off":         "off",
	"min":         "minimal",
	"minimal":     "minimal",
	"low":         "low",
	"thinkhard":   "medium",
	"think-hard":  "medium",
	"medium":      "medium",
	"mid":         "medium",
	"med":         "medium",
	"thinkharder": "high",
	"high":        "high",
	"ultra":       "max",
	"ultrathink":  "max",
	"max":         "max",
}

var verboseLevels = map[string]string{
	"on":   "on",
	"off":  "off",
	"true": "on",
	"false": "off",
	"yes":  "on",
	"no":   "off",
	"0":    "off",
	"1":    "on",
	"full": "on",
}

// Parse strips at most one /think and one /verbose directive from text
// and returns the cleaned text plus any recognized levels. Never fails:
// an unknown argument leaves hasDirectives true but the level undefined.
func Parse(text string) Result {
	res := Result{CleanedText: text}

	if loc := thinkAliasRe.FindStringSubmatchIndex(text); loc != nil {
		res.HasDirectives = true
		arg := text[loc[4]:loc[5]]
		res.ThinkLevel = thinkLevels[strings.ToLower(arg)]
		res.CleanedText = res.CleanedText[:matchStart(loc)] + " " + res.CleanedText[loc[1]:]
		text = res.CleanedText
	}

	if loc := verboseAliasRe.FindStringSubmatchIndex(text); loc != nil {
		res.HasDirectives = true
		arg := text[loc[4]:loc[5]]
		res.VerboseLevel = verboseLevels[strings.ToLower(arg)]
		res.CleanedText = res.CleanedText[:matchStart(loc)] + " " + res.CleanedText[loc[1]:]
	}

	res.CleanedText = collapseWhitespace(res.CleanedText)
	return res
}

// matchStart returns the offset where the match itself begins, skipping
// the optional leading whitespace/start-of-string captured in group 1.
func matchStart(loc []int) int {
	if loc[2] == loc[3] {
		return loc[0]
	}
	return loc[2]
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
