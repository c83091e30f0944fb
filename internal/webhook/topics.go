package webhook

import "strings"

const (
	TopicGuestCheckedIn      = "guest_checked_in"
	TopicGuestCheckedOut     = "guest_checked_out"
	TopicMaintenanceReported = "maintenance_reported"
)

// NormalizeTopic converts PMS topic strings into a stable internal form.
// Examples:
// - "guest/checked-out" -> "guest_checked_out"
// - "Maintenance.Reported" -> "maintenance_reported"
func NormalizeTopic(topic string) string {
	t := strings.TrimSpace(strings.ToLower(topic))
	t = strings.ReplaceAll(t, "/", "_")
	t = strings.ReplaceAll(t, ".", "_")
	t = strings.ReplaceAll(t, "-", "_")
	for strings.Contains(t, "__") {
		t = strings.ReplaceAll(t, "__", "_")
	}
	return strings.Trim(t, "_")
}
