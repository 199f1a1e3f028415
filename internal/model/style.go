package model

import "strings"

// Style is a key of the fixed style table.
type Style string

const (
	StyleAnime   Style = "anime"
	StyleCartoon Style = "cartoon"
	StyleGhibli  Style = "ghibli"
	StyleComic   Style = "comic"

	DefaultStyle = StyleAnime
	StyleUnknown = Style("unknown")
)

var stylePrompts = map[Style]string{
	StyleAnime:   "anime style, anime artwork, vibrant colors, detailed anime illustration, high quality anime art",
	StyleCartoon: "cartoon style, disney pixar style, 3d rendered, colorful, smooth shading, cartoon character",
	StyleGhibli:  "studio ghibli style, ghibli anime, hayao miyazaki style, soft colors, detailed background, whimsical",
	StyleComic:   "comic book style, marvel dc comics, bold lines, halftone dots, dynamic, superhero comic art",
}

// Styles returns the supported styles in a stable order.
func Styles() []Style {
	return []Style{StyleAnime, StyleCartoon, StyleGhibli, StyleComic}
}

// ParseStyle returns the style for s, falling back to DefaultStyle.
func ParseStyle(s string) Style {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := stylePrompts[st]; ok {
		return st
	}
	return DefaultStyle
}

// BasePrompt is the canned phrase of a style.
func (s Style) BasePrompt() string {
	if p, ok := stylePrompts[s]; ok {
		return p
	}
	return stylePrompts[DefaultStyle]
}

// ComposePrompt returns "<base>, <user>" or the base alone.
func ComposePrompt(style Style, user string) string {
	base := style.BasePrompt()
	user = strings.TrimSpace(user)
	if user == "" {
		return base
	}
	return base + ", " + user
}
