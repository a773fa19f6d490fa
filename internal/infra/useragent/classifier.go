package useragent

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/core/port"
)

// Device classes.
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceBot     = "Bot"
	DeviceUnknown = "Unknown"
)

// Classifier derives a coarse device descriptor from a User-Agent header.
type Classifier struct{}

// NewClassifier constructs a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify never fails; unrecognised agents yield DeviceUnknown.
func (c *Classifier) Classify(userAgent string) domain.DeviceInfo {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return domain.DeviceInfo{Device: DeviceUnknown}
	}

	ua := useragent.New(userAgent)

	info := domain.DeviceInfo{Platform: strings.TrimSpace(ua.OS())}
	if name, version := ua.Browser(); name != "" {
		info.Browser = strings.TrimSpace(name + " " + majorVersion(version))
	}

	switch {
	case ua.Bot():
		info.Device = DeviceBot
	case ua.Mobile():
		info.Device = DeviceMobile
	case info.Platform != "" || info.Browser != "":
		info.Device = DeviceDesktop
	default:
		info.Device = DeviceUnknown
	}

	return info
}

func majorVersion(version string) string {
	if idx := strings.IndexByte(version, '.'); idx > 0 {
		return version[:idx]
	}
	return version
}

var _ port.DeviceClassifier = (*Classifier)(nil)
