package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusNew, StatusQueued},
		{StatusNew, StatusIgnored},
		{StatusIgnored, StatusNew},
		{StatusIgnored, StatusQueued},
		{StatusQueued, StatusDownloading},
		{StatusDownloading, StatusDownloaded},
		{StatusDownloading, StatusError},
		{StatusDownloading, StatusQueued},
		{StatusError, StatusQueued},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s should be allowed", tr[0], tr[1])
	}

	rejected := [][2]Status{
		{StatusNew, StatusDownloaded},
		{StatusNew, StatusDownloading},
		{StatusQueued, StatusDownloaded},
		{StatusDownloaded, StatusQueued},
		{StatusDownloaded, StatusNew},
		{StatusError, StatusDownloaded},
		{StatusQueued, StatusQueued},
	}
	for _, tr := range rejected {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s should be rejected", tr[0], tr[1])
	}
}

func TestCheckTransitionError(t *testing.T) {
	err := CheckTransition(7, StatusDownloaded, StatusQueued)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, int64(7), te.VideoID)
	assert.Equal(t, "video 7: cannot change status from Downloaded to Queued", err.Error())

	assert.NoError(t, CheckTransition(7, StatusNew, StatusQueued))
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"NE":          StatusNew,
		"qu":          StatusQueued,
		"Downloading": StatusDownloading,
		"grabbed":     StatusDownloaded,
		"GE":          StatusError,
		" ignored ":   StatusIgnored,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStatus("XX")
	assert.Error(t, err)

	list, err := ParseStatusList("GE,NE")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusError, StatusNew}, list)
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(StatusDownloaded)
	require.NoError(t, err)
	assert.Equal(t, `"GR"`, string(b))

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"queued"`), &s))
	assert.Equal(t, StatusQueued, s)
	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &s))
}

func TestParseService(t *testing.T) {
	s, err := ParseService("YouTube")
	require.NoError(t, err)
	assert.Equal(t, ServiceYoutube, s)

	s, err = ParseService("vimeo")
	require.NoError(t, err)
	assert.Equal(t, ServiceVimeo, s)

	_, err = ParseService("dailymotion")
	assert.Error(t, err)
}
