package maps

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNaver_ScriptURL(t *testing.T) {
	n := NewNaver(DefaultNaverConfig("abc123"))

	u, err := url.Parse(n.ScriptURL())
	require.NoError(t, err)
	assert.Equal(t, "oapi.map.naver.com", u.Host)
	assert.Equal(t, "/openapi/v3/maps.js", u.Path)
	assert.Equal(t, "abc123", u.Query().Get("ncpKeyId"))
	assert.Equal(t, "visualization,geocoder,drawing", u.Query().Get("submodules"))
	assert.Equal(t, "initNaverMap", u.Query().Get("callback"))
}

func TestNaver_NotLoaded(t *testing.T) {
	n := NewNaver(DefaultNaverConfig("abc"))

	_, err := n.Instance()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, n.CenterOn(DefaultCenter), ErrNotLoaded)

	_, err = n.Widget()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestNaver_LoadAndCenter(t *testing.T) {
	n := NewNaver(NaverConfig{ClientID: "abc"})
	require.NoError(t, n.Load(context.Background()))
	require.NoError(t, n.Load(context.Background()))

	m, err := n.Instance()
	require.NoError(t, err)
	assert.Equal(t, DefaultCenter, m.Center)
	assert.Equal(t, DefaultZoom, m.Zoom)
	assert.Equal(t, "map", m.ElementID)

	seoul := LatLng{Lat: 37.5665, Lng: 126.978}
	require.NoError(t, n.CenterOn(seoul))

	m2, err := n.Instance()
	require.NoError(t, err)
	assert.Equal(t, seoul, m2.Center)
	assert.Equal(t, DefaultCenter, m.Center, "Instance returns a copy")

	assert.ErrorIs(t, n.CenterOn(LatLng{Lat: 91}), ErrInvalidCoordinate)
	assert.ErrorIs(t, n.CenterOn(LatLng{Lng: -181}), ErrInvalidCoordinate)
}

func TestNaver_LoadErrors(t *testing.T) {
	assert.Error(t, NewNaver(NaverConfig{}).Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewNaver(DefaultNaverConfig("abc")).Load(ctx), context.Canceled)
}

func TestNaver_Widget(t *testing.T) {
	n := NewNaver(DefaultNaverConfig("abc"))
	require.NoError(t, n.Load(context.Background()))

	w, err := n.Widget()
	require.NoError(t, err)
	assert.Equal(t, "naver", w.Provider)
	assert.Equal(t, "initNaverMap", w.Callback)
	assert.Equal(t, n.ScriptURL(), w.ScriptURL)
	assert.Equal(t, 10, w.Map.Zoom)
}
