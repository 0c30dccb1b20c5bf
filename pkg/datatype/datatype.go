// Package datatype classifies filesets into data-type groups and resolves
// the route key used to pick a landing zone.
package datatype

import "strings"

const (
	GroupWCSD      = "WCSD"
	GroupMultibeam = "Multibeam"
	GroupTrackline = "Trackline"
)

const (
	RouteSplitbeam    = "Splitbeam Sonar"
	RouteWCDMultibeam = "WCD Multibeam"
	RouteMultibeam    = "Multibeam Sonar"
	RouteGravimeter   = "Gravimeter"
	RouteMagnetometer = "Magnetometer"
	RouteSinglebeam   = "Singlebeam Sonar"
	RouteSubbottom    = "Subbottom"
)

var waterColumnMarkers = []string{"[water column]", "[Watercolumn]", "[Water Column]", "[watercolumn]"}

const subbottomMarker = "[includes subbottom]"

// Classify maps a fileset's device and make/model names to a data-type
// group. Multibeam sonars carrying a water-column marker in the instrument
// name are water column sonar data, not bathymetry.
func Classify(deviceName string, makeModelName string) string {
	switch deviceName {
	case "Multibeam Sonar":
		for _, marker := range waterColumnMarkers {
			if strings.Contains(makeModelName, marker) {
				return GroupWCSD
			}
		}
		return GroupMultibeam
	case "Splitbeam Sonar":
		return GroupWCSD
	default:
		return GroupTrackline
	}
}

// Route resolves the landing-zone route key for a classified record.
// Trackline instruments without a dedicated zone fall through to their
// lower-cased device name so operator-defined mappings still resolve.
func Route(group string, deviceName string, instrumentName string) string {
	switch group {
	case GroupWCSD:
		if deviceName == "Splitbeam Sonar" {
			return RouteSplitbeam
		}
		return RouteWCDMultibeam
	case GroupMultibeam:
		return RouteMultibeam
	default:
		switch deviceName {
		case "Gravimeter":
			return RouteGravimeter
		case "Magnetometer":
			return RouteMagnetometer
		case "Singlebeam Sonar":
			if strings.Contains(instrumentName, subbottomMarker) {
				return RouteSubbottom
			}
			return RouteSinglebeam
		default:
			return strings.ToLower(deviceName)
		}
	}
}
