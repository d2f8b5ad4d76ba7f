package mqtt

import "fmt"

// Topic prefixes for the Printwatch MQTT namespace.
//
// All topics live under a single root: printwatch/{category}/{printer_id}.
// Status and job topics are published retained so dashboards joining late
// immediately see the current state of every printer.
const (
	// TopicPrefixStatus is the base for per-printer connection status topics.
	TopicPrefixStatus = "printwatch/status"

	// TopicPrefixJob is the base for per-printer job event topics.
	TopicPrefixJob = "printwatch/job"

	// TopicPrefixSystem is the base for service-level topics.
	TopicPrefixSystem = "printwatch/system"
)

// Topics provides builders for Printwatch MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.PrinterStatus("voron-350")
//	// Returns: "printwatch/status/voron-350"
type Topics struct{}

// PrinterStatus returns the topic for a printer's connection status snapshot.
//
// Example: printwatch/status/voron-350
func (Topics) PrinterStatus(printerID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixStatus, printerID)
}

// PrinterJob returns the topic for a printer's job lifecycle events.
//
// Example: printwatch/job/voron-350
func (Topics) PrinterJob(printerID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixJob, printerID)
}

// SystemStatus returns the service status topic. The broker publishes the
// Last Will here if the service dies without a graceful shutdown.
//
// Example: printwatch/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllPrinterStatuses returns a pattern matching all printer status topics.
//
// Pattern: printwatch/status/+
func (Topics) AllPrinterStatuses() string {
	return fmt.Sprintf("%s/+", TopicPrefixStatus)
}

// AllPrinterJobs returns a pattern matching all printer job topics.
//
// Pattern: printwatch/job/+
func (Topics) AllPrinterJobs() string {
	return fmt.Sprintf("%s/+", TopicPrefixJob)
}
