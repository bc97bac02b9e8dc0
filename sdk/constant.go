package sdk

import "github.com/mbeoliero/jobchat/pkg/constant"

// Platform ids sent at login and on the push channel handshake
const (
	PlatformIdUnknown = constant.PlatformIdUnknown
	PlatformIdIOS     = constant.PlatformIdIOS
	PlatformIdAndroid = constant.PlatformIdAndroid
	PlatformIdWindows = constant.PlatformIdWindows
	PlatformIdMacOS   = constant.PlatformIdMacOS
	PlatformIdWeb     = constant.PlatformIdWeb
)

func PlatformIdToName(platformId int) string {
	return constant.PlatformIdToName(platformId)
}

// Notification classification tags
const (
	NotificationJobMatch           = constant.NotificationJobMatch
	NotificationInterviewScheduled = constant.NotificationInterviewScheduled
	NotificationApplicationUpdate  = constant.NotificationApplicationUpdate
	NotificationSystem             = constant.NotificationSystem
)

const DefaultPageSize = constant.DefaultPageSize
