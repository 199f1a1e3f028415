package model_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/CZERTAINLY/Atelier/internal/model"
	"github.com/stretchr/testify/require"
)

func TestNewJobID(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)
	id := model.NewJobID(now)
	require.Regexp(t, regexp.MustCompile(`^img_20261014_153000_[0-9a-f]{13}$`), id)
	require.True(t, model.ValidJobID(id))
	require.NotEqual(t, id, model.NewJobID(now))
	require.Equal(t, id, model.JobIDFromInput(id+".jpg"))
	require.Equal(t, "gen_"+id+"_ghibli.png", model.OutputName(id, model.StyleGhibli))
}

func TestValidJobID(t *testing.T) {
	t.Parallel()
	for _, id := range []string{"", ".", "..", "../etc", "a/b", `a\b`, "a b"} {
		require.False(t, model.ValidJobID(id), id)
	}
	require.True(t, model.ValidJobID("img_20261014_153000_abc"))
}

func TestParseStyle(t *testing.T) {
	t.Parallel()
	require.Equal(t, model.StyleGhibli, model.ParseStyle("ghibli"))
	require.Equal(t, model.StyleComic, model.ParseStyle(" Comic "))
	require.Equal(t, model.StyleAnime, model.ParseStyle(""))
	require.Equal(t, model.StyleAnime, model.ParseStyle("watercolor"))
	require.Equal(t, model.StyleAnime.BasePrompt(), model.Style("watercolor").BasePrompt())
}

func TestComposePrompt(t *testing.T) {
	t.Parallel()
	require.Equal(t,
		"studio ghibli style, ghibli anime, hayao miyazaki style, soft colors, detailed background, whimsical",
		model.ComposePrompt(model.StyleGhibli, ""),
	)
	require.Equal(t,
		"comic book style, marvel dc comics, bold lines, halftone dots, dynamic, superhero comic art, a cat",
		model.ComposePrompt(model.StyleComic, "a cat"),
	)
	require.Equal(t, model.StyleAnime.BasePrompt(), model.ComposePrompt(model.StyleAnime, "   "))
}

func TestParseStrength(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		given string
		then  float64
	}{
		{"", 0.75},
		{"0.8", 0.8},
		{"1.7", 1},
		{"-2", 0},
		{"strong", 0.75},
		{"NaN", 0.75},
	}
	for _, tt := range testCases {
		require.Equal(t, tt.then, model.ParseStrength(tt.given), tt.given)
	}
	require.Equal(t, "0.800000", model.FormatStrength(0.8))
}

func TestValidationError(t *testing.T) {
	t.Parallel()
	err := model.NewValidationError("image", "unsupported type %s", "text/plain")
	require.ErrorIs(t, err, model.ErrValidation)
	require.EqualError(t, err, "validation failed: image: unsupported type text/plain")

	var verr *model.ValidationError
	require.True(t, errors.As(error(err), &verr))
	require.Equal(t, "image", verr.Field)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()
	require.True(t, model.StatusComplete.Terminal())
	require.True(t, model.StatusFailed.Terminal())
	require.False(t, model.StatusProcessing.Terminal())
	require.False(t, model.StatusUploaded.Terminal())
	require.False(t, model.StatusUnknown.Terminal())
	require.Equal(t, 100, model.Processing(time.Now(), 140, "").Progress)
	require.Equal(t, "processing", model.Processing(time.Now(), 10, "").Message)
}
