package config

import (
	"fmt"
	"strings"

	"github.com/fieldwater/irrigaudit/internal/models"
)

// CustomLocation is the default coordinate offered when no scheme is picked.
var CustomLocation = models.Coordinate{Latitude: 6.67, Longitude: -1.56}

// Schemes returns the built-in irrigation scheme presets. The slice is fresh
// on every call.
func Schemes() []models.Scheme {
	return []models.Scheme{
		{Name: "Tono Dam (Navrongo)", Coordinate: models.Coordinate{Latitude: 10.866, Longitude: -1.166}},
		{Name: "Vea Dam (Bolgatanga)", Coordinate: models.Coordinate{Latitude: 10.85, Longitude: -0.85}},
		{Name: "Bontanga (Tamale)", Coordinate: models.Coordinate{Latitude: 9.57, Longitude: -1.02}},
		{Name: "Asutsuare (Banana Hub)", Coordinate: models.Coordinate{Latitude: 6.07, Longitude: 0.22}},
		{Name: "Kpong (Akuse)", Coordinate: models.Coordinate{Latitude: 6.10, Longitude: 0.05}},
		{Name: "Weija (Accra)", Coordinate: models.Coordinate{Latitude: 5.58, Longitude: -0.35}},
		{Name: "Twifo Praso (Central)", Coordinate: models.Coordinate{Latitude: 5.61, Longitude: -1.55}},
	}
}

// FindScheme matches a scheme by name, case-insensitively. A bare prefix such
// as "tono dam" also matches when it is unambiguous.
func FindScheme(name string) (models.Scheme, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return models.Scheme{}, fmt.Errorf("scheme name is empty")
	}
	var matches []models.Scheme
	for _, s := range Schemes() {
		n := strings.ToLower(s.Name)
		if n == want {
			return s, nil
		}
		if strings.HasPrefix(n, want) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Scheme{}, fmt.Errorf("unknown scheme %q", name)
	default:
		return models.Scheme{}, fmt.Errorf("scheme %q is ambiguous (%d matches)", name, len(matches))
	}
}
