package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/roach88/sometimes/internal/ambient"
)

// DefaultEndpoint is the Open-Meteo forecast API.
const DefaultEndpoint = "https://api.open-meteo.com/v1/forecast"

// maxResponseSize caps the response body read from the provider.
const maxResponseSize = 1 << 20

// OpenMeteo reads current conditions from the Open-Meteo API.
type OpenMeteo struct {
	client    *http.Client
	endpoint  string
	latitude  float64
	longitude float64
}

// NewOpenMeteo returns a source for the given coordinates. An empty
// endpoint uses DefaultEndpoint.
func NewOpenMeteo(client *http.Client, endpoint string, latitude, longitude float64) *OpenMeteo {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &OpenMeteo{
		client:    client,
		endpoint:  endpoint,
		latitude:  latitude,
		longitude: longitude,
	}
}

type openMeteoResponse struct {
	Current struct {
		WeatherCode *int `json:"weather_code"`
	} `json:"current"`
}

// CurrentCondition fetches the current WMO weather code and maps it.
func (o *OpenMeteo) CurrentCondition(ctx context.Context) (ambient.Weather, error) {
	u, err := url.Parse(o.endpoint)
	if err != nil {
		return ambient.WeatherUnknown, fmt.Errorf("open-meteo: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(o.latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(o.longitude, 'f', 4, 64))
	q.Set("current", "weather_code")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ambient.WeatherUnknown, fmt.Errorf("open-meteo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return ambient.WeatherUnknown, fmt.Errorf("open-meteo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ambient.WeatherUnknown, fmt.Errorf("open-meteo: unexpected status %d", resp.StatusCode)
	}

	var body openMeteoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return ambient.WeatherUnknown, fmt.Errorf("open-meteo: decode: %w", err)
	}
	if body.Current.WeatherCode == nil {
		return ambient.WeatherUnknown, fmt.Errorf("open-meteo: response has no weather_code")
	}

	w, ok := FromWMO(*body.Current.WeatherCode)
	if !ok {
		return ambient.WeatherUnknown, fmt.Errorf("open-meteo: unmapped weather code %d", *body.Current.WeatherCode)
	}
	return w, nil
}

// FromWMO maps a WMO 4677 weather interpretation code to a condition.
func FromWMO(code int) (ambient.Weather, bool) {
	switch {
	case code == 0 || code == 1:
		return ambient.Clear, true
	case code == 2 || code == 3:
		return ambient.Cloudy, true
	case code == 45 || code == 48:
		return ambient.Foggy, true
	case code >= 51 && code <= 67, code >= 80 && code <= 82:
		return ambient.Rainy, true
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return ambient.Snowy, true
	case code >= 95 && code <= 99:
		return ambient.Stormy, true
	default:
		return ambient.WeatherUnknown, false
	}
}
