package port

import "github.com/arklim/pos-auth-gateway/internal/core/domain"

// DeviceClassifier derives device, browser and platform names from a user agent.
type DeviceClassifier interface {
	Classify(userAgent string) domain.DeviceInfo
}
