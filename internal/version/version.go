// ABOUTME: Version information for klok binaries
// ABOUTME: Reported in startup logs and the terminal UI header
package version

const (
	Version      = "0.3.1"
	Product      = "klok"
	Manufacturer = "SIDN Labs"
)

// String returns product and version, e.g. "klok 0.3.1"
func String() string {
	return Product + " " + Version
}
