// Package maps wraps the third-party map widget behind a narrow typed
// interface. The widget itself runs in the browser; the server side owns
// its configuration and the view state handed to it.
package maps

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrNotLoaded is returned when the map is used before Load succeeded
	ErrNotLoaded = errors.New("maps: map not loaded")
	// ErrInvalidCoordinate is returned for a latitude or longitude out of range
	ErrInvalidCoordinate = errors.New("maps: invalid coordinate")
)

// LatLng is a WGS84 coordinate
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate ranges
func (p LatLng) Validate() error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: (%g, %g)", ErrInvalidCoordinate, p.Lat, p.Lng)
	}
	return nil
}

// Map is the view state of a loaded map
type Map struct {
	ElementID string `json:"elementId"`
	Center    LatLng `json:"center"`
	Zoom      int    `json:"zoom"`
}

// Provider is a map widget
type Provider interface {
	// Load prepares the widget; it is idempotent
	Load(ctx context.Context) error
	// Instance returns the current view state
	Instance() (*Map, error)
	// CenterOn moves the view
	CenterOn(p LatLng) error
}

// Widget is the configuration a browser needs to boot the widget
type Widget struct {
	Provider  string `json:"provider"`
	ScriptURL string `json:"scriptUrl"`
	Callback  string `json:"callback"`
	Map       Map    `json:"map"`
}

const (
	naverScriptURL = "https://oapi.map.naver.com/openapi/v3/maps.js"
	naverCallback  = "initNaverMap"
)

// DefaultCenter is where the map opens
var DefaultCenter = LatLng{Lat: 37.3595704, Lng: 127.105399}

// DefaultZoom is the zoom the map opens at
const DefaultZoom = 10

// NaverConfig configures the Naver provider
type NaverConfig struct {
	ClientID   string
	Submodules []string
	ElementID  string
	Center     LatLng
	Zoom       int
}

// DefaultNaverConfig returns the stock configuration for clientID
func DefaultNaverConfig(clientID string) NaverConfig {
	return NaverConfig{
		ClientID:   clientID,
		Submodules: []string{"visualization", "geocoder", "drawing"},
		ElementID:  "map",
		Center:     DefaultCenter,
		Zoom:       DefaultZoom,
	}
}

// Naver is the Naver Maps provider
type Naver struct {
	cfg    NaverConfig
	mu     sync.RWMutex
	loaded bool
	view   Map
}

var _ Provider = (*Naver)(nil)

// NewNaver creates an unloaded Naver provider
func NewNaver(cfg NaverConfig) *Naver {
	if cfg.ElementID == "" {
		cfg.ElementID = "map"
	}
	if cfg.Zoom == 0 {
		cfg.Zoom = DefaultZoom
	}
	if cfg.Center == (LatLng{}) {
		cfg.Center = DefaultCenter
	}
	return &Naver{cfg: cfg}
}

// ScriptURL is the loader script the browser appends to the page
func (n *Naver) ScriptURL() string {
	q := url.Values{}
	q.Set("ncpKeyId", n.cfg.ClientID)
	if len(n.cfg.Submodules) > 0 {
		q.Set("submodules", strings.Join(n.cfg.Submodules, ","))
	}
	q.Set("callback", naverCallback)
	return naverScriptURL + "?" + q.Encode()
}

// Load validates the configuration and initializes the view
func (n *Naver) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.cfg.ClientID == "" {
		return errors.New("maps: naver client id is required")
	}
	if err := n.cfg.Center.Validate(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded {
		n.view = Map{ElementID: n.cfg.ElementID, Center: n.cfg.Center, Zoom: n.cfg.Zoom}
		n.loaded = true
	}
	return nil
}

// Instance returns a copy of the view state
func (n *Naver) Instance() (*Map, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.loaded {
		return nil, ErrNotLoaded
	}
	m := n.view
	return &m, nil
}

// CenterOn moves the view to p
func (n *Naver) CenterOn(p LatLng) error {
	if err := p.Validate(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded {
		return ErrNotLoaded
	}
	n.view.Center = p
	return nil
}

// Widget returns the boot configuration for browsers
func (n *Naver) Widget() (*Widget, error) {
	m, err := n.Instance()
	if err != nil {
		return nil, err
	}
	return &Widget{
		Provider:  "naver",
		ScriptURL: n.ScriptURL(),
		Callback:  naverCallback,
		Map:       *m,
	}, nil
}
