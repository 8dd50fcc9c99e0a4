package telescope

import "fmt"

// NCH is the default observer location (New Campbell Hall rooftop).
var NCH = Location{
	Lat: 37.8732,
	Lon: -122.2573,
	Alt: 123.1,
}

// Pointing is the horn's horizontal pointing at capture time
type Pointing struct {
	Alt float64 `yaml:"alt" json:"alt" mapstructure:"alt"` // Altitude (elevation) in degrees
	Az  float64 `yaml:"az" json:"az" mapstructure:"az"`    // Azimuth in degrees
}

func (p Pointing) Validate() error {
	if p.Alt < -90 || p.Alt > 90 {
		return fmt.Errorf("telescope.Pointing: altitude must be within [-90, 90]: %0.2f given", p.Alt)
	}
	if p.Az < 0 || p.Az >= 360 {
		return fmt.Errorf("telescope.Pointing: azimuth must be within [0, 360): %0.2f given", p.Az)
	}
	return nil
}

func (p Pointing) String() string {
	return fmt.Sprintf("alt=%0.2f  az=%0.2f", p.Alt, p.Az)
}

// Location is the observer's geodetic position
type Location struct {
	Lat float64 `yaml:"lat" json:"lat" mapstructure:"lat"` // Latitude in degrees, north positive
	Lon float64 `yaml:"lon" json:"lon" mapstructure:"lon"` // Longitude in degrees, east positive
	Alt float64 `yaml:"alt" json:"alt" mapstructure:"alt"` // Altitude above sea level in metres
}

func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("telescope.Location: latitude must be within [-90, 90]: %0.4f given", l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("telescope.Location: longitude must be within [-180, 180]: %0.4f given", l.Lon)
	}
	return nil
}
