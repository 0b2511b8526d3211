package geo

import (
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"gullin-backend/utils"
)

const Unknown = "Unknown"

type Locator interface {
	Locate(ip string) string
}

// MaxMindLocator resolves IPs against a GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	reader *geoip2.Reader
}

func OpenMaxMind(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindLocator{reader: reader}, nil
}

// Locate returns "City, Country", or Unknown when the lookup fails.
func (l *MaxMindLocator) Locate(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Unknown
	}
	record, err := l.reader.City(parsed)
	if err != nil {
		utils.Logger().Debug("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		return Unknown
	}
	var parts []string
	if city := record.City.Names["en"]; city != "" {
		parts = append(parts, city)
	}
	if country := record.Country.Names["en"]; country != "" {
		parts = append(parts, country)
	}
	if len(parts) == 0 {
		return Unknown
	}
	return strings.Join(parts, ", ")
}

func (l *MaxMindLocator) Close() error {
	return l.reader.Close()
}

// NoopLocator is used when no database is configured.
type NoopLocator struct{}

func (NoopLocator) Locate(string) string { return Unknown }
